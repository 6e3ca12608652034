package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers on the wire.
const (
	fieldID        protowire.Number = 1
	fieldType      protowire.Number = 2
	fieldCode      protowire.Number = 3
	fieldText      protowire.Number = 4
	fieldExports   protowire.Number = 5
	fieldInterrupt protowire.Number = 6

	fieldFileName    protowire.Number = 1
	fieldFileContent protowire.Number = 2
)

// MarshalBinary encodes the envelope in protobuf wire format. Empty fields
// are omitted.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, fieldID, e.ID)
	b = appendString(b, fieldType, e.Type)
	b = appendString(b, fieldCode, e.Code)
	b = appendString(b, fieldText, e.Text)
	for _, f := range e.Exports {
		var fb []byte
		fb = appendString(fb, fieldFileName, f.Name)
		fb = appendString(fb, fieldFileContent, f.Content)
		b = protowire.AppendTag(b, fieldExports, protowire.BytesType)
		b = protowire.AppendBytes(b, fb)
	}
	if e.Interrupt {
		b = protowire.AppendTag(b, fieldInterrupt, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b, nil
}

// UnmarshalBinary decodes b into e, replacing its contents. Unknown fields
// are skipped.
func (e *Envelope) UnmarshalBinary(b []byte) error {
	*e = Envelope{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldInterrupt && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			e.Interrupt = v != 0
			n = m
		case typ == protowire.BytesType && num >= fieldID && num <= fieldExports:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			n = m
			switch num {
			case fieldID:
				e.ID = string(v)
			case fieldType:
				e.Type = string(v)
			case fieldCode:
				e.Code = string(v)
			case fieldText:
				e.Text = string(v)
			case fieldExports:
				f, err := unmarshalFile(v)
				if err != nil {
					return err
				}
				e.Exports = append(e.Exports, f)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}

func unmarshalFile(b []byte) (File, error) {
	var f File
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if typ == protowire.BytesType && (num == fieldFileName || num == fieldFileContent) {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return f, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			if num == fieldFileName {
				f.Name = string(v)
			} else {
				f.Content = string(v)
			}
			b = b[m:]
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return f, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return f, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}
