package engine

import "github.com/tailored-agentic-units/pyide/observability"

const (
	EventInitialize    observability.EventType = "engine.initialize"
	EventRunStart      observability.EventType = "engine.run.start"
	EventRunComplete   observability.EventType = "engine.run.complete"
	EventPush          observability.EventType = "engine.push"
	EventAwaitComplete observability.EventType = "engine.await.complete"
	EventInterrupt     observability.EventType = "engine.interrupt"
	EventDelivered     observability.EventType = "engine.interrupt.delivered"
	EventSync          observability.EventType = "engine.sync"
	EventImports       observability.EventType = "engine.imports"
	EventCrash         observability.EventType = "engine.crash"
	EventRecover       observability.EventType = "engine.recover"
	EventDestroy       observability.EventType = "engine.destroy"
)
