package server

import "github.com/tailored-agentic-units/pyide/observability"

const (
	EventRequest    observability.EventType = "server.request"
	EventConnect    observability.EventType = "server.ws.connect"
	EventDisconnect observability.EventType = "server.ws.disconnect"
	EventDropped    observability.EventType = "server.ws.dropped"
	EventStart      observability.EventType = "server.start"
	EventStop       observability.EventType = "server.stop"
)
