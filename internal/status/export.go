package status

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/coinflipper/coinflipper/internal/coinpb"
)

// Export formats.
const (
	FormatText = "text"
	FormatRaw  = "raw"
	FormatJSON = "json"
)

// Encoder writes one status response.
type Encoder interface {
	Encode(st *coinpb.Coinstatus) error
}

// NewEncoder returns the Encoder for format writing to w. An empty format
// means raw.
func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch format {
	case FormatText:
		return encoderFunc(func(st *coinpb.Coinstatus) error { return WriteText(w, st) }), nil
	case FormatRaw, "":
		return &RawEncoder{w: w}, nil
	case FormatJSON:
		return NewJSONEncoder(w), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

type encoderFunc func(st *coinpb.Coinstatus) error

func (f encoderFunc) Encode(st *coinpb.Coinstatus) error { return f(st) }

// RawEncoder writes the serialized Coinstatus message, byte for byte what
// the collector returned and what it persists.
type RawEncoder struct {
	w io.Writer
}

func (e *RawEncoder) Encode(st *coinpb.Coinstatus) error {
	_, err := e.w.Write(coinpb.Marshal(st))
	return err
}

// Snapshot is the JSON document form of a status response.
type Snapshot struct {
	TotalFlips     int64    `json:"total_flips"`
	FlipsPerSecond float64  `json:"flips_per_second"`
	Histogram      []uint64 `json:"histogram"`
	Clients        []Client `json:"clients"`
	Dropped        int      `json:"dropped_positions,omitempty"`
}

// Client is one entry of Snapshot.Clients.
type Client struct {
	ID             string `json:"id"`
	FlipsPerSecond int64  `json:"flips_per_second"`
}

// NewSnapshot converts st, expanding the sparse histogram to all buckets.
func NewSnapshot(st *coinpb.Coinstatus) Snapshot {
	h, dropped := coinpb.HistogramFromFlips(st.Flips)

	snap := Snapshot{
		TotalFlips:     st.TotalFlips,
		FlipsPerSecond: st.FlipsPerSecond,
		Histogram:      h[:],
		Clients:        make([]Client, 0, len(st.Stats)),
		Dropped:        dropped,
	}

	for _, s := range st.Stats {
		snap.Clients = append(snap.Clients, Client{ID: fmt.Sprintf("%08x", uint64(s.Hash)), FlipsPerSecond: s.FlipsPerSecond})
	}

	return snap
}

// JSONEncoder writes snapshots as single-line JSON.
type JSONEncoder struct {
	w io.Writer
}

// NewJSONEncoder creates a JSON encoder writing to the provided writer.
func NewJSONEncoder(w io.Writer) *JSONEncoder { return &JSONEncoder{w: w} }

// Encode marshals the snapshot as JSON and writes it with a trailing newline.
func (e *JSONEncoder) Encode(st *coinpb.Coinstatus) error {
	return json.NewEncoder(e.w).Encode(NewSnapshot(st))
}
