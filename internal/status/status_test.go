package status

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/coinflipper/coinflipper/internal/aggregator"
	"github.com/coinflipper/coinflipper/internal/coinpb"
	"github.com/coinflipper/coinflipper/internal/orchestrator"
	"github.com/coinflipper/coinflipper/internal/orchestrator/mocks"
	"github.com/coinflipper/coinflipper/internal/rpcsrv"
)

func fixture() *coinpb.Coinstatus {
	return &coinpb.Coinstatus{
		Flips: []coinpb.Coinflip{
			{Position: 0, Flips: 1234567},
			{Position: 1, Flips: 617000},
			{Position: 2, Flips: 308123},
			{Position: 31, Flips: 5},
			{Position: 64, Flips: 1},
			{Position: 127, Flips: 2},
		},
		TotalFlips:     4000000,
		FlipsPerSecond: 123456.7,
		Stats: []coinpb.Coinstats{
			{Hash: 0xA, FlipsPerSecond: 1000},
			{Hash: 0x1234567890, FlipsPerSecond: 123456},
			{Hash: -1, FlipsPerSecond: 5},
		},
	}
}

func TestWriteText_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, fixture()))

	g := goldie.New(t)
	g.Assert(t, "status_text", buf.Bytes())
}

func TestJSONEncoder_Golden(t *testing.T) {
	var buf bytes.Buffer

	enc, err := NewEncoder(FormatJSON, &buf)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(fixture()))

	g := goldie.New(t)
	g.Assert(t, "status_json", buf.Bytes())
}

func TestWriteText_EmptyStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, &coinpb.Coinstatus{}))

	out := buf.String()
	require.Contains(t, out, "Total coins flipped: 0\n")
	require.NotContains(t, out, "Connected clients")
	require.NotContains(t, out, "milestone")
	require.Contains(t, out, "128: 0\n")
}

func TestRawEncoder_RoundTrips(t *testing.T) {
	var buf bytes.Buffer

	enc, err := NewEncoder("", &buf)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(fixture()))

	var got coinpb.Coinstatus
	require.NoError(t, coinpb.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, fixture(), &got)
}

func TestNewEncoder_UnknownFormat(t *testing.T) {
	_, err := NewEncoder("xml", &bytes.Buffer{})
	require.Error(t, err)
}

func TestUntilMilestone(t *testing.T) {
	tests := []struct {
		total, want uint64
	}{
		{1, 9},
		{150, 850},
		{1000, 9000},
		{999, 1},
	}

	for _, tt := range tests {
		got, ok := untilMilestone(tt.total)
		require.True(t, ok)
		require.Equal(t, tt.want, got, "total=%d", tt.total)
	}

	_, ok := untilMilestone(10_000_000_000_000_000_000)
	require.False(t, ok)
}

func TestTimeify(t *testing.T) {
	require.Equal(t, "0 seconds", timeify(0))
	require.Equal(t, "1 minutes 5 seconds", timeify(65))
	require.Equal(t, "2 days 3 hours", timeify(2*86400+3*3600))
}

func TestFetch_OverBufconn(t *testing.T) {
	ctrl := gomock.NewController(t)
	orch := mocks.NewMockOrchestrator(ctrl)

	var h aggregator.Histogram
	h[5] = 9

	orch.EXPECT().Status(gomock.Any()).Return(orchestrator.Status{Histogram: h, TotalFlips: 9})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	coinpb.RegisterCoinFlipperServer(srv, rpcsrv.NewServer(orch))

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := Fetch(ctx, "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)
	require.NoError(t, err)
	require.EqualValues(t, 9, st.TotalFlips)
	require.Equal(t, []coinpb.Coinflip{{Position: 5, Flips: 9}}, st.Flips)
}

func TestFetch_FailsFastWhenUnreachable(t *testing.T) {
	lis := bufconn.Listen(1024)
	require.NoError(t, lis.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Fetch(ctx, "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)
	require.Error(t, err)
}
