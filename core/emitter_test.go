package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterDeliversInRegistrationOrder(t *testing.T) {
	e := NewEmitter()

	var order []string
	e.On("topic", func(any) { order = append(order, "first") })
	e.On("topic", func(any) { order = append(order, "second") })
	e.On("other", func(any) { order = append(order, "never") })

	e.Emit("topic", nil)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEmitterEmitIsSynchronous(t *testing.T) {
	e := NewEmitter()

	seen := false
	e.On("topic", func(payload any) {
		seen = true
		assert.Equal(t, 42, payload)
	})

	e.Emit("topic", 42)
	assert.True(t, seen, "listener must run before Emit returns")
}

func TestEmitterCancel(t *testing.T) {
	e := NewEmitter()

	count := 0
	cancel := e.On("topic", func(any) { count++ })

	e.Emit("topic", nil)
	cancel()
	cancel() // idempotent
	e.Emit("topic", nil)

	assert.Equal(t, 1, count)
}

func TestEmitterListenerMayCancelDuringEmit(t *testing.T) {
	e := NewEmitter()

	var cancel func()
	count := 0
	cancel = e.On("topic", func(any) {
		count++
		cancel()
	})

	e.Emit("topic", nil)
	e.Emit("topic", nil)

	assert.Equal(t, 1, count)
}
