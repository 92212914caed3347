package eventstore

import "time"

// Event is one lifecycle transition recorded in the journal.
type Event interface {
	// ID returns the journal sequence number (0 until stored).
	ID() int64
	// OpID returns the operation identifier this event belongs to.
	OpID() string
	Type() string
	// Version returns the content version the event concerns, if any.
	Version() string
	Timestamp() time.Time
	// Payload returns the event data as JSON.
	Payload() []byte
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64
	EventOpID      string
	EventType      string
	EventVersion   string
	EventTimestamp time.Time
	EventPayload   []byte
	EventMetadata  map[string]string
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) OpID() string                { return e.EventOpID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Version() string             { return e.EventVersion }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
