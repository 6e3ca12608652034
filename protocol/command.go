// Package protocol defines the messages exchanged between a session
// controller and the worker that hosts its interpreter session.
//
// Commands flow controller -> worker, events flow worker -> controller. Both
// are closed sum types: callers switch on the concrete type. Envelope is the
// flat wire form used when a message crosses a process boundary.
package protocol

// File is one named text document visible to running code.
type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// CommandType is the wire name of a command.
type CommandType string

const (
	CommandInitialize CommandType = "initialize"
	CommandRun        CommandType = "run"
	CommandReplInput  CommandType = "replInput"
	CommandReplClear  CommandType = "replClear"
)

// Command is a controller -> worker message.
type Command interface {
	CommandType() CommandType
	isCommand()
}

// CmdInitialize prepares the engine and optionally attaches an interrupt
// buffer. Sending it again with a buffer re-attaches the buffer.
type CmdInitialize struct {
	Interrupt *InterruptBuffer
}

// CmdRun executes Code as a standalone script after mirroring Exports into
// the sandbox filesystem.
type CmdRun struct {
	Code    string
	Exports []File
}

// CmdReplInput feeds one or more lines to the REPL.
type CmdReplInput struct {
	Code    string
	Exports []File
}

// CmdReplClear requests a cooperative interrupt and discards pending REPL
// input.
type CmdReplClear struct{}

func (CmdInitialize) CommandType() CommandType { return CommandInitialize }
func (CmdRun) CommandType() CommandType        { return CommandRun }
func (CmdReplInput) CommandType() CommandType  { return CommandReplInput }
func (CmdReplClear) CommandType() CommandType  { return CommandReplClear }

func (CmdInitialize) isCommand() {}
func (CmdRun) isCommand()        {}
func (CmdReplInput) isCommand()  {}
func (CmdReplClear) isCommand()  {}
