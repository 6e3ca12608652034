package workspace

import "github.com/tailored-agentic-units/pyide/observability"

const (
	EventOpen   observability.EventType = "workspace.open"
	EventSave   observability.EventType = "workspace.save"
	EventDelete observability.EventType = "workspace.delete"
	EventRename observability.EventType = "workspace.rename"
)
