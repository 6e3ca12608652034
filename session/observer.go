package session

import "github.com/tailored-agentic-units/pyide/observability"

const (
	EventCommand           observability.EventType = "session.command"
	EventCommandFailed     observability.EventType = "session.command.failed"
	EventTransition        observability.EventType = "session.transition"
	EventInvalidTransition observability.EventType = "session.transition.invalid"
	EventServeStart        observability.EventType = "session.serve.start"
	EventServeStop         observability.EventType = "session.serve.stop"
	EventPanic             observability.EventType = "session.panic"
)
