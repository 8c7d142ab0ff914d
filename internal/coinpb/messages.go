// Package coinpb holds the coinflipper wire messages and the CoinFlipper gRPC
// service. Messages use the protobuf wire format of the coinflipper proto
// package so existing snapshots and peers stay readable.
package coinpb

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrUnsupportedMessage is returned by the codec for values that are not
// coinflipper messages.
var ErrUnsupportedMessage = errors.New("coinpb: unsupported message type")

// Message is implemented by every wire message.
type Message interface {
	AppendWire(b []byte) []byte
	UnmarshalWire(b []byte) error
}

// Marshal encodes m.
func Marshal(m Message) []byte { return m.AppendWire(nil) }

// Unmarshal decodes b into m, replacing its contents.
func Unmarshal(b []byte, m Message) error { return m.UnmarshalWire(b) }

// Coinflip is one non-zero histogram bucket.
type Coinflip struct {
	Position uint32 `json:"position"`
	Flips    uint64 `json:"flips"`
}

// Coinbatch is a drained histogram fragment sent by one worker.
type Coinbatch struct {
	Hash       int64      `json:"hash"`
	Flips      []Coinflip `json:"flips"`
	TotalFlips int64      `json:"total_flips"`
}

// SubmitResponse acknowledges a Coinbatch.
type SubmitResponse struct{}

// StatusRequest asks for the collector status.
type StatusRequest struct{}

// Coinstats is the throughput of one connected worker.
type Coinstats struct {
	Hash           int64 `json:"hash"`
	FlipsPerSecond int64 `json:"flips_per_second"`
}

// Coinstatus is the merged collector state.
type Coinstatus struct {
	Flips          []Coinflip  `json:"flips"`
	TotalFlips     int64       `json:"total_flips"`
	FlipsPerSecond float64     `json:"flips_per_second"`
	Stats          []Coinstats `json:"stats"`
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, v)
}

func appendMessageField(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, m.AppendWire(nil))
}

// fieldFunc handles one field; it returns the number of bytes consumed or a
// negative protowire error code.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walkFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}

		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}

		if m < 0 {
			return protowire.ParseError(m)
		}

		b = b[m:]
	}

	return nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return protowire.ConsumeFieldValue(num, typ, b), nil
}

func wrongType(num protowire.Number, typ protowire.Type) error {
	return fmt.Errorf("coinpb: field %d: unexpected wire type %d", num, typ)
}

func consumeVarint(num protowire.Number, typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, wrongType(num, typ)
	}

	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = v
	}

	return n, nil
}

func consumeMessage(num protowire.Number, typ protowire.Type, b []byte, m Message) (int, error) {
	if typ != protowire.BytesType {
		return 0, wrongType(num, typ)
	}

	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}

	if err := m.UnmarshalWire(v); err != nil {
		return 0, fmt.Errorf("coinpb: field %d: %w", num, err)
	}

	return n, nil
}

// AppendWire implements Message.
func (m *Coinflip) AppendWire(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(m.Position))

	return appendVarintField(b, 2, m.Flips)
}

// UnmarshalWire implements Message.
func (m *Coinflip) UnmarshalWire(b []byte) error {
	*m = Coinflip{}

	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64

		switch num {
		case 1:
			n, err := consumeVarint(num, typ, b, &v)
			m.Position = uint32(v)

			return n, err
		case 2:
			return consumeVarint(num, typ, b, &m.Flips)
		default:
			return skipField(num, typ, b)
		}
	})
}

// AppendWire implements Message.
func (m *Coinbatch) AppendWire(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(m.Hash))
	for i := range m.Flips {
		b = appendMessageField(b, 2, &m.Flips[i])
	}

	return appendVarintField(b, 3, uint64(m.TotalFlips))
}

// UnmarshalWire implements Message.
func (m *Coinbatch) UnmarshalWire(b []byte) error {
	*m = Coinbatch{}

	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64

		switch num {
		case 1:
			n, err := consumeVarint(num, typ, b, &v)
			m.Hash = int64(v)

			return n, err
		case 2:
			var f Coinflip

			n, err := consumeMessage(num, typ, b, &f)
			if err == nil && n >= 0 {
				m.Flips = append(m.Flips, f)
			}

			return n, err
		case 3:
			n, err := consumeVarint(num, typ, b, &v)
			m.TotalFlips = int64(v)

			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
}

// AppendWire implements Message.
func (m *SubmitResponse) AppendWire(b []byte) []byte { return b }

// UnmarshalWire implements Message.
func (m *SubmitResponse) UnmarshalWire(b []byte) error { return walkFields(b, skipField) }

// AppendWire implements Message.
func (m *StatusRequest) AppendWire(b []byte) []byte { return b }

// UnmarshalWire implements Message.
func (m *StatusRequest) UnmarshalWire(b []byte) error { return walkFields(b, skipField) }

// AppendWire implements Message.
func (m *Coinstats) AppendWire(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(m.Hash))

	return appendVarintField(b, 2, uint64(m.FlipsPerSecond))
}

// UnmarshalWire implements Message.
func (m *Coinstats) UnmarshalWire(b []byte) error {
	*m = Coinstats{}

	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64

		switch num {
		case 1:
			n, err := consumeVarint(num, typ, b, &v)
			m.Hash = int64(v)

			return n, err
		case 2:
			n, err := consumeVarint(num, typ, b, &v)
			m.FlipsPerSecond = int64(v)

			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
}

// AppendWire implements Message.
func (m *Coinstatus) AppendWire(b []byte) []byte {
	for i := range m.Flips {
		b = appendMessageField(b, 1, &m.Flips[i])
	}

	b = appendVarintField(b, 2, uint64(m.TotalFlips))

	if m.FlipsPerSecond != 0 {
		b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(m.FlipsPerSecond))
	}

	for i := range m.Stats {
		b = appendMessageField(b, 4, &m.Stats[i])
	}

	return b
}

// UnmarshalWire implements Message.
func (m *Coinstatus) UnmarshalWire(b []byte) error {
	*m = Coinstatus{}

	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var f Coinflip

			n, err := consumeMessage(num, typ, b, &f)
			if err == nil && n >= 0 {
				m.Flips = append(m.Flips, f)
			}

			return n, err
		case 2:
			var v uint64

			n, err := consumeVarint(num, typ, b, &v)
			m.TotalFlips = int64(v)

			return n, err
		case 3:
			if typ != protowire.Fixed64Type {
				return 0, wrongType(num, typ)
			}

			v, n := protowire.ConsumeFixed64(b)
			m.FlipsPerSecond = math.Float64frombits(v)

			return n, nil
		case 4:
			var s Coinstats

			n, err := consumeMessage(num, typ, b, &s)
			if err == nil && n >= 0 {
				m.Stats = append(m.Stats, s)
			}

			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
}
