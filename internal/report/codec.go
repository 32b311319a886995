package report

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Payload formats.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// encMode produces deterministic CBOR with integer keys.
var encMode cbor.EncMode

func init() {
	opts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnixMicro,
	}
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("report: building CBOR encoder: %v", err))
	}
}

// Encoder turns readings and alarms into message payloads.
type Encoder struct {
	format string
}

// NewEncoder returns an encoder for format ("json" or "cbor").
func NewEncoder(format string) (*Encoder, error) {
	switch format {
	case "", FormatJSON:
		return &Encoder{format: FormatJSON}, nil
	case FormatCBOR:
		return &Encoder{format: FormatCBOR}, nil
	default:
		return nil, fmt.Errorf("report: unknown payload format %q", format)
	}
}

// Format returns the payload format.
func (e *Encoder) Format() string { return e.format }

// Encode marshals v.
func (e *Encoder) Encode(v any) ([]byte, error) {
	if e.format == FormatCBOR {
		return encMode.Marshal(v)
	}
	return json.Marshal(v)
}
