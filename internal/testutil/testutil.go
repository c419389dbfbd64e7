// Package testutil provides shared helpers for package tests: deterministic
// membrane builders and an event recorder.
package testutil

import (
	"sync"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/membrane"
)

// NewAgentMembrane returns an agent membrane with a fixed identity and facet
// set, so dominant-facet expectations are stable across tests.
func NewAgentMembrane() *membrane.Agent {
	return membrane.NewAgent(func(o *membrane.AgentOptions) {
		o.Identity = core.CoreIdentity{
			Name:       "test-echo",
			Essence:    "a test presence",
			CoreValues: []string{"determinism"},
			Origin:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		o.Facets = core.CharacterFacets{
			"explorer": {Name: "explorer", Activation: 0.7},
			"sage":     {Name: "sage", Activation: 0.4},
			"guardian": {Name: "guardian", Activation: 0.2},
		}
	})
}

// NewArenaMembrane returns an arena membrane with a fixed phase distribution
// dominated by exploration.
func NewArenaMembrane() *membrane.Arena {
	return membrane.NewArena(func(o *membrane.ArenaOptions) {
		o.Phases = map[string]float64{
			"emergence":   0.2,
			"exploration": 0.6,
			"return":      0.2,
		}
	})
}

// EventRecorder captures emitted events for assertion.
type EventRecorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// RecordedEvent is one captured emission.
type RecordedEvent struct {
	Topic   string
	Payload any
}

// Subscribe attaches the recorder to every given topic on the emitter.
func (r *EventRecorder) Subscribe(emitter *core.Emitter, topics ...string) {
	for _, topic := range topics {
		topic := topic
		emitter.On(topic, func(payload any) {
			r.mu.Lock()
			r.events = append(r.events, RecordedEvent{Topic: topic, Payload: payload})
			r.mu.Unlock()
		})
	}
}

// Events returns the captured events in emission order.
func (r *EventRecorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Topics returns just the captured topic names in order.
func (r *EventRecorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Topic
	}
	return out
}

// Count returns how many events were captured for the topic.
func (r *EventRecorder) Count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Topic == topic {
			n++
		}
	}
	return n
}
