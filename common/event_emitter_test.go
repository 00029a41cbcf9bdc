package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEmitterOrder(t *testing.T) {
	t.Parallel()

	e := NewBaseEventEmitter()

	var order []int
	e.On([]string{"ev"}, func(Event) { order = append(order, 1) })
	e.On([]string{"ev"}, func(Event) { order = append(order, 2) })
	e.On([]string{"ev"}, func(Event) { order = append(order, 3) })

	e.Emit("ev", nil)
	assert.Equal(t, []int{1, 2, 3}, order, "handlers run in registration order")
}

func TestEventEmitterMultipleEvents(t *testing.T) {
	t.Parallel()

	e := NewBaseEventEmitter()

	var seen []Event
	e.On([]string{"one", "two"}, func(ev Event) { seen = append(seen, ev) })

	e.Emit("one", "a")
	e.Emit("two", "b")
	e.Emit("three", "c")

	require.Len(t, seen, 2)
	assert.Equal(t, "one", seen[0].Type())
	assert.Equal(t, "a", seen[0].Data())
	assert.Equal(t, "two", seen[1].Type())
	assert.Equal(t, "b", seen[1].Data())
}

func TestEventEmitterOff(t *testing.T) {
	t.Parallel()

	e := NewBaseEventEmitter()

	var count int
	h := e.On([]string{"one", "two"}, func(Event) { count++ })
	keep := 0
	e.On([]string{"one"}, func(Event) { keep++ })

	e.Emit("one", nil)
	e.Off(h)
	e.Emit("one", nil)
	e.Emit("two", nil)

	assert.Equal(t, 1, count, "removed handle receives nothing")
	assert.Equal(t, 2, keep, "other handlers are unaffected")

	// Unknown handles are ignored.
	e.Off(ListenerHandle(42))
}
