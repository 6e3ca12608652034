package worker

import (
	"encoding"
	"fmt"

	"connectrpc.com/connect"
)

// ServiceName is the Connect service worker procedures live under.
const ServiceName = "pyide.worker.v1.Worker"

const (
	SpawnProcedure     = "/" + ServiceName + "/Spawn"
	PostProcedure      = "/" + ServiceName + "/Post"
	EventsProcedure    = "/" + ServiceName + "/Events"
	TerminateProcedure = "/" + ServiceName + "/Terminate"
)

// HeaderWorker carries the worker id on every call after Spawn.
const HeaderWorker = "Pyide-Worker"

// envelopeCodec moves protocol.Envelope values in protobuf wire format. It
// registers under the "proto" name so the Connect content type stays
// application/proto.
type envelopeCodec struct{}

func (envelopeCodec) Name() string {
	return "proto"
}

func (envelopeCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("worker: cannot marshal %T", v)
	}
	return m.MarshalBinary()
}

func (envelopeCodec) Unmarshal(data []byte, v any) error {
	u, ok := v.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("worker: cannot unmarshal into %T", v)
	}
	return u.UnmarshalBinary(data)
}

func withCodec() connect.Option {
	return connect.WithCodec(envelopeCodec{})
}
