package core

import (
	"slices"
	"sync"
)

// Topics emitted by the layer servers and the lifecycle coordinator.
// Listeners registered on an Emitter run synchronously: by the time the
// mutating call returns, every listener has observed the change.
const (
	TopicVirtualAgentUpdated = "virtual-agent:updated"
	TopicVirtualArenaUpdated = "virtual-arena:updated"
	TopicVirtualSynced       = "virtual:synced"
	TopicPhaseComplete       = "phase:complete"
	TopicCycleComplete       = "cycle:complete"
	TopicCycleError          = "cycle:error"
	TopicCoherenceLow        = "coherence:low"
)

// Handler receives the payload attached to an emitted topic.
type Handler func(payload any)

type subscription struct {
	id int
	fn Handler
}

// Emitter is a minimal synchronous observer registry. Emit invokes the
// listeners of a topic in registration order on the calling goroutine,
// preserving the guarantee that observers never see a mutation without
// having already received the corresponding notification.
//
// It is safe for concurrent use; listeners registered or removed during an
// Emit do not affect the in-flight dispatch.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	topics map[string][]subscription
}

// NewEmitter constructs an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{topics: make(map[string][]subscription)}
}

// On registers fn for topic and returns a cancel function that removes the
// subscription. Cancel is idempotent.
func (e *Emitter) On(topic string, fn Handler) (cancel func()) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.topics[topic] = append(e.topics[topic], subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.topics[topic]
		e.topics[topic] = slices.DeleteFunc(subs, func(s subscription) bool { return s.id == id })
	}
}

// Emit delivers payload to every listener of topic, synchronously and in
// registration order. The listener slice is snapshotted under the read lock
// so handlers may register or cancel subscriptions without deadlocking.
func (e *Emitter) Emit(topic string, payload any) {
	e.mu.RLock()
	subs := slices.Clone(e.topics[topic])
	e.mu.RUnlock()

	for _, s := range subs {
		s.fn(payload)
	}
}
