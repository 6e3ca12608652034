package protocol

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

var (
	ErrUnknownCommand = errors.New("protocol: unknown command")
	ErrMalformed      = errors.New("protocol: malformed envelope")
)

// Envelope is the flat wire form of a command or an event.
//
// Interrupt records whether an initialize command carried a buffer. The
// buffer itself never crosses a process boundary.
type Envelope struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	Text      string `json:"text,omitempty"`
	Exports   []File `json:"exports,omitempty"`
	Interrupt bool   `json:"interrupt,omitempty"`
}

func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{ID: %s, Type: %s}", e.ID, e.Type)
}

// EncodeCommand flattens cmd into an envelope with a fresh ID.
func EncodeCommand(cmd Command) (*Envelope, error) {
	env := &Envelope{ID: generateID()}
	switch c := cmd.(type) {
	case CmdInitialize:
		env.Type = string(CommandInitialize)
		env.Interrupt = c.Interrupt != nil
	case CmdRun:
		env.Type = string(CommandRun)
		env.Code = c.Code
		env.Exports = slices.Clone(c.Exports)
	case CmdReplInput:
		env.Type = string(CommandReplInput)
		env.Code = c.Code
		env.Exports = slices.Clone(c.Exports)
	case CmdReplClear:
		env.Type = string(CommandReplClear)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return env, nil
}

// DecodeCommand rebuilds a command from env. An initialize envelope always
// decodes with a nil buffer.
func DecodeCommand(env *Envelope) (Command, error) {
	if env == nil {
		return nil, ErrMalformed
	}
	switch CommandType(env.Type) {
	case CommandInitialize:
		return CmdInitialize{}, nil
	case CommandRun:
		return CmdRun{Code: env.Code, Exports: env.Exports}, nil
	case CommandReplInput:
		return CmdReplInput{Code: env.Code, Exports: env.Exports}, nil
	case CommandReplClear:
		return CmdReplClear{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
}

// EncodeEvent flattens ev into an envelope with a fresh ID.
func EncodeEvent(ev Event) *Envelope {
	env := &Envelope{ID: generateID(), Type: string(ev.EventType())}
	switch e := ev.(type) {
	case EvWrite:
		env.Text = e.Text
	case EvWriteln:
		env.Text = e.Text
	case EvError:
		env.Text = e.Text
	case EvSystem:
		env.Text = e.Text
	case EvUnknown:
		env.Text = e.Text
	}
	return env
}

// DecodeEvent rebuilds an event from env. Unrecognised types decode to
// EvUnknown so newer workers can talk to older controllers.
func DecodeEvent(env *Envelope) (Event, error) {
	if env == nil {
		return nil, ErrMalformed
	}
	switch EventType(env.Type) {
	case EventWrite:
		return EvWrite{Text: env.Text}, nil
	case EventWriteln:
		return EvWriteln{Text: env.Text}, nil
	case EventError:
		return EvError{Text: env.Text}, nil
	case EventSystem:
		return EvSystem{Text: env.Text}, nil
	case EventLock:
		return EvLock{}, nil
	case EventUnlock:
		return EvUnlock{}, nil
	default:
		return EvUnknown{Type: EventType(env.Type), Text: env.Text}, nil
	}
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}
