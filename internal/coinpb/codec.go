package coinpb

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype served by Codec.
const CodecName = "coinflipper"

// Codec marshals coinflipper messages for gRPC.
type Codec struct{}

func init() { encoding.RegisterCodec(Codec{}) }

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedMessage, v)
	}

	return Marshal(m), nil
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedMessage, v)
	}

	return Unmarshal(data, m)
}

// Name implements encoding.Codec.
func (Codec) Name() string { return CodecName }
