package worker

import "github.com/tailored-agentic-units/pyide/observability"

const (
	EventSpawn     observability.EventType = "worker.spawn"
	EventTerminate observability.EventType = "worker.terminate"
	EventExit      observability.EventType = "worker.exit"
	EventRPC       observability.EventType = "worker.rpc"
)
