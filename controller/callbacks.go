package controller

import "github.com/tailored-agentic-units/pyide/protocol"

// Callbacks receive worker output. Any field may be nil. Calls are never
// concurrent with each other.
type Callbacks struct {
	Write   func(text string)
	Writeln func(text string)
	Error   func(text string)
	System  func(text string)
	Lock    func()
	Unlock  func()
}

// FileSource supplies the exported files sent with each run or REPL input.
type FileSource interface {
	ExportedFiles() []protocol.File
}

// FileSourceFunc adapts a function to FileSource.
type FileSourceFunc func() []protocol.File

func (f FileSourceFunc) ExportedFiles() []protocol.File {
	return f()
}

type noFiles struct{}

func (noFiles) ExportedFiles() []protocol.File {
	return nil
}
