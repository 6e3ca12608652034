package ide

import "github.com/tailored-agentic-units/pyide/observability"

// Observer names understood in Config.Observers.
const (
	ObserverNoop       = "noop"
	ObserverSlog       = "slog"
	ObserverPrometheus = "prometheus"
)

const (
	EventStart observability.EventType = "ide.start"
	EventClose observability.EventType = "ide.close"
)
