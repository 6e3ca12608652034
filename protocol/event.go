package protocol

// EventType is the wire name of an event.
type EventType string

const (
	EventWrite   EventType = "write"
	EventWriteln EventType = "writeln"
	EventError   EventType = "error"
	EventSystem  EventType = "system"
	EventLock    EventType = "lock"
	EventUnlock  EventType = "unlock"
)

// Event is a worker -> controller message. Events for one command arrive in
// program order.
type Event interface {
	EventType() EventType
	isEvent()
}

// EvWrite appends text without a trailing newline.
type EvWrite struct{ Text string }

// EvWriteln appends text followed by a newline.
type EvWriteln struct{ Text string }

// EvError appends error-styled text.
type EvError struct{ Text string }

// EvSystem appends system-notice text.
type EvSystem struct{ Text string }

// EvLock marks the start of an engine-busy window.
type EvLock struct{}

// EvUnlock marks the end of an engine-busy window.
type EvUnlock struct{}

// EvUnknown is produced by DecodeEvent for event names this version does not
// know. Controllers ignore it.
type EvUnknown struct {
	Type EventType
	Text string
}

func (EvWrite) EventType() EventType     { return EventWrite }
func (EvWriteln) EventType() EventType   { return EventWriteln }
func (EvError) EventType() EventType     { return EventError }
func (EvSystem) EventType() EventType    { return EventSystem }
func (EvLock) EventType() EventType      { return EventLock }
func (EvUnlock) EventType() EventType    { return EventUnlock }
func (e EvUnknown) EventType() EventType { return e.Type }

func (EvWrite) isEvent()   {}
func (EvWriteln) isEvent() {}
func (EvError) isEvent()   {}
func (EvSystem) isEvent()  {}
func (EvLock) isEvent()    {}
func (EvUnlock) isEvent()  {}
func (EvUnknown) isEvent() {}
