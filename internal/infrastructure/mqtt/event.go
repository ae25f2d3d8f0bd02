package mqtt

import "time"

// EventType identifies the kind of Event delivered to listeners.
type EventType int

// Event types.
const (
	// EventConnected is emitted after a (re)connect once all tracked topics
	// are active on the broker.
	EventConnected EventType = iota + 1

	// EventDisconnected is emitted whenever the connection is lost, a
	// connection attempt fails, or a publish finds no connection.
	EventDisconnected

	// EventMessage is emitted for every inbound message.
	EventMessage
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a connection lifecycle transition or an inbound message.
//
// Events are immutable once constructed. The same Event value, including its
// Payload slice, is handed to every listener; listeners must treat Payload as
// read-only and copy it if they need to keep or modify it.
type Event struct {
	Type EventType

	// Topic is set for EventMessage only.
	Topic string

	// Payload is set for EventMessage only.
	Payload []byte

	// Time is when the event was raised.
	Time time.Time
}

// ConnectedEvent returns a new EventConnected.
func ConnectedEvent() Event {
	return Event{Type: EventConnected, Time: time.Now()}
}

// DisconnectedEvent returns a new EventDisconnected.
func DisconnectedEvent() Event {
	return Event{Type: EventDisconnected, Time: time.Now()}
}

// MessageEvent returns a new EventMessage for topic and payload.
func MessageEvent(topic string, payload []byte) Event {
	return Event{Type: EventMessage, Topic: topic, Payload: payload, Time: time.Now()}
}
