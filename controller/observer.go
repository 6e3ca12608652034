package controller

import "github.com/tailored-agentic-units/pyide/observability"

const (
	EventSpawn      observability.EventType = "controller.spawn"
	EventRun        observability.EventType = "controller.run"
	EventExecute    observability.EventType = "controller.execute"
	EventStop       observability.EventType = "controller.stop"
	EventRestart    observability.EventType = "controller.restart"
	EventClose      observability.EventType = "controller.close"
	EventIgnored    observability.EventType = "controller.event.ignored"
	EventWorkerLost observability.EventType = "controller.worker.lost"
)
