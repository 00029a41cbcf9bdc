package common

import (
	"sync"
)

const (
	// FrameRegistry

	// EventFrameAddedToTarget is emitted every time a frame gets attached
	// to a target. A frame transferring between two targets produces two
	// of these for the same frame ID over its lifetime. Data: *Frame.
	EventFrameAddedToTarget string = "frameaddedtotarget"
	// EventFrameNavigated is a republish of a source navigation.
	// Data: *Frame.
	EventFrameNavigated string = "framenavigated"
	// EventFrameRemoved fires once a frame is gone from every attached
	// target. Data: cdp.FrameID.
	EventFrameRemoved string = "frameremoved"
	// EventResourceAdded is a republish of a source resource.
	// Data: *ResourceAddedEvent.
	EventResourceAdded string = "resourceadded"
	// EventTopFrameNavigated fires in addition to EventFrameNavigated
	// when the navigated frame is the current top frame. Data: *Frame.
	EventTopFrameNavigated string = "topframenavigated"

	// FrameSource

	EventSourceFrameAdded     string = "sourceframeadded"
	EventSourceFrameDetached  string = "sourceframedetached"
	EventSourceFrameNavigated string = "sourceframenavigated"
	EventSourceResourceAdded  string = "sourceresourceadded"
)

// Event as emitted by an EventEmitter.
type Event struct {
	typ  string
	data any
}

// Type returns the event name.
func (e Event) Type() string { return e.typ }

// Data returns the event payload.
func (e Event) Data() any { return e.data }

// ListenerHandle identifies a single event handler registration. It is
// returned by On and passed back to Off to remove the registration.
type ListenerHandle int64

type eventHandler struct {
	handle ListenerHandle
	fn     func(Event)
}

// EventEmitter that all event emitters need to implement.
type EventEmitter interface {
	Emit(event string, data any)
	On(events []string, fn func(Event)) ListenerHandle
	Off(handle ListenerHandle)
}

// BaseEventEmitter emits events to registered handlers.
//
// Handlers run synchronously on the emitting goroutine, in registration
// order. A handler must not call Emit, On or Off on the same emitter
// from within its own invocation.
type BaseEventEmitter struct {
	handlersMu sync.Mutex
	handlers   map[string][]eventHandler
	lastHandle ListenerHandle
}

// NewBaseEventEmitter creates a new instance of a base event emitter.
func NewBaseEventEmitter() BaseEventEmitter {
	return BaseEventEmitter{
		handlers: make(map[string][]eventHandler),
	}
}

// Emit invokes the handlers registered for the given event, in the
// order they were registered.
func (e *BaseEventEmitter) Emit(event string, data any) {
	e.handlersMu.Lock()
	handlers := make([]eventHandler, len(e.handlers[event]))
	copy(handlers, e.handlers[event])
	e.handlersMu.Unlock()

	for _, h := range handlers {
		h.fn(Event{typ: event, data: data})
	}
}

// On registers a handler for the given events and returns a handle
// which removes the registration when passed to Off.
func (e *BaseEventEmitter) On(events []string, fn func(Event)) ListenerHandle {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()

	e.lastHandle++
	h := e.lastHandle
	for _, event := range events {
		e.handlers[event] = append(e.handlers[event], eventHandler{handle: h, fn: fn})
	}
	return h
}

// Off removes every registration made under the given handle. Removing
// an unknown handle is a no-op.
func (e *BaseEventEmitter) Off(handle ListenerHandle) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()

	for event, handlers := range e.handlers {
		for i := 0; i < len(handlers); {
			if handlers[i].handle == handle {
				handlers = append(handlers[:i], handlers[i+1:]...)
				continue
			}
			i++
		}
		if len(handlers) == 0 {
			delete(e.handlers, event)
		} else {
			e.handlers[event] = handlers
		}
	}
}
