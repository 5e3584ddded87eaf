package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for typed event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers an event to all subscribers of its concrete type.
// Usage: bus.Publish(SessionStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case CameraStartedEvent:
		event.Publish(b.dispatcher, e)
	case CameraStoppedEvent:
		event.Publish(b.dispatcher, e)
	case CameraSwitchFailedEvent:
		event.Publish(b.dispatcher, e)
	case SessionStartedEvent:
		event.Publish(b.dispatcher, e)
	case SessionStoppedEvent:
		event.Publish(b.dispatcher, e)
	case SessionErrorEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler; the handler's parameter type selects
// which events it receives. Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e SessionStartedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraSwitchFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges callback subscriptions to a channel, for
// SSE handlers that want a select loop. Full channels drop events rather
// than block the dispatcher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
