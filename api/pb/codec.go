package pb

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype the store API is served under.
const CodecName = "lethe"

// Codec marshals Message values for gRPC transport.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("pb: cannot marshal %T", v)
	}
	return m.MarshalWire(), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("pb: cannot unmarshal into %T", v)
	}
	return m.UnmarshalWire(data)
}

func (Codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
