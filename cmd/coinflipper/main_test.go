package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/coinflipper/coinflipper/internal/aggregator"
	"github.com/coinflipper/coinflipper/internal/coinpb"
	cfgpkg "github.com/coinflipper/coinflipper/internal/config"
	"github.com/coinflipper/coinflipper/internal/orchestrator"
	"github.com/coinflipper/coinflipper/internal/persistence"
	"github.com/coinflipper/coinflipper/internal/sender"
	"github.com/coinflipper/coinflipper/internal/status"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testServerConfig(t *testing.T) cfgpkg.Server {
	t.Helper()

	return cfgpkg.Server{
		ListenAddr:            "localhost:50051",
		MaxReceiveMessageSize: 16 * 1024 * 1024,
		StoragePath:           t.TempDir(),
		PersistInterval:       time.Hour,
		TallyWindow:           10 * time.Second,
		LogLevel:              "info",
		GracefulTimeout:       time.Second,
	}
}

type testCollector struct {
	lis    *bufconn.Listener
	server *grpc.Server
	svc    orchestrator.Orchestrator
}

func (c *testCollector) dialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return c.lis.DialContext(ctx) })
}

func startTestCollector(t *testing.T, lis net.Listener) *testCollector {
	t.Helper()

	cfg := testServerConfig(t)

	svc, err := orchestrator.New(cfg, discardLogger(), orchestrator.WithBackend(persistence.NewFilesystem(cfg.StoragePath)))
	require.NoError(t, err)

	baseServer := newGRPCServer(cfg, svc)

	go func() {
		if err := baseServer.Serve(lis); err != nil {
			log.Printf("error serving test server: %v", err)
		}
	}()

	t.Cleanup(func() {
		_ = lis.Close()

		baseServer.Stop()
	})

	c := &testCollector{server: baseServer, svc: svc}
	if bl, ok := lis.(*bufconn.Listener); ok {
		c.lis = bl
	}

	return c
}

func newTestClient(t *testing.T, c *testCollector) coinpb.CoinFlipperClient {
	t.Helper()

	conn, err := grpc.NewClient("localhost:50051",
		c.dialOption(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return coinpb.NewCoinFlipperClient(conn)
}

func TestCollector_TwoWorkersMerge(t *testing.T) {
	ctx := context.Background()
	c := startTestCollector(t, bufconn.Listen(1024*1024))
	client := newTestClient(t, c)

	_, err := client.SubmitBatch(ctx, &coinpb.Coinbatch{Hash: 0xA, Flips: []coinpb.Coinflip{{Position: 0, Flips: 100}}, TotalFlips: 100})
	require.NoError(t, err)

	_, err = client.SubmitBatch(ctx, &coinpb.Coinbatch{Hash: 0xB, Flips: []coinpb.Coinflip{{Position: 1, Flips: 50}}, TotalFlips: 50})
	require.NoError(t, err)

	st, err := client.GetStatus(ctx, &coinpb.StatusRequest{})
	require.NoError(t, err)

	h, _ := coinpb.HistogramFromFlips(st.Flips)
	require.EqualValues(t, 100, h[0])
	require.EqualValues(t, 50, h[1])
	require.EqualValues(t, 150, st.TotalFlips)
	require.Len(t, st.Stats, 2)
}

// flakyDialer fails the first n dials, then delegates.
type flakyDialer struct {
	failures atomic.Int32
	next     sender.Dialer
}

func (d *flakyDialer) Dial(ctx context.Context) (sender.Conn, error) {
	if d.failures.Add(-1) >= 0 {
		return nil, errors.New("collector unreachable")
	}

	return d.next.Dial(ctx)
}

func TestSender_ReconnectDeliversQueuedBatchesOnce(t *testing.T) {
	ctx := context.Background()
	c := startTestCollector(t, bufconn.Listen(1024*1024))

	dialer := &flakyDialer{next: sender.NewGRPCDialer("localhost:50051", 5*time.Second, c.dialOption())}
	dialer.failures.Store(3)

	acc := aggregator.NewAccumulator()

	s, err := sender.New(sender.Config{ClientID: 0xC0FFEE, Tick: time.Hour}, acc, dialer, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.SetSleep(func(context.Context, time.Duration) error { return nil })

	var want uint64

	for i, n := range []uint64{11, 22, 33} {
		var h aggregator.Histogram
		h[i] = n
		acc.Push(&h, n)
		want += n

		s.Step(ctx)
	}

	require.Equal(t, 3, s.Queue().Len())

	s.Step(ctx)
	require.Zero(t, s.Queue().Len())

	st := c.svc.Status(ctx)
	require.Equal(t, want, st.TotalFlips)
	require.EqualValues(t, 11, st.Histogram[0])
	require.EqualValues(t, 22, st.Histogram[1])
	require.EqualValues(t, 33, st.Histogram[2])
	require.Len(t, st.Clients, 1)
	require.EqualValues(t, 0xC0FFEE, st.Clients[0].ClientID)
}

func TestRun_StatusAndExportCommands(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := startTestCollector(t, lis)

	var h aggregator.Histogram
	h[0] = 7
	c.svc.Submit(context.Background(), 0x42, &h, 7)

	ctx := context.Background()
	addr := lis.Addr().String()

	var text bytes.Buffer
	require.NoError(t, run(ctx, []string{"status", addr}, &text))
	require.Contains(t, text.String(), "Total coins flipped: 7")
	require.Contains(t, text.String(), "  1: 7")

	var raw bytes.Buffer
	require.NoError(t, run(ctx, []string{"export", addr}, &raw))

	var st coinpb.Coinstatus
	require.NoError(t, coinpb.Unmarshal(raw.Bytes(), &st))
	require.EqualValues(t, 7, st.TotalFlips)

	var js bytes.Buffer
	require.NoError(t, run(ctx, []string{"export", "--format", "json", addr}, &js))

	var snap status.Snapshot
	require.NoError(t, json.Unmarshal(js.Bytes(), &snap))
	require.EqualValues(t, 7, snap.Histogram[0])
	require.Len(t, snap.Histogram, aggregator.Buckets)
}

func TestRun_StatusFailsWhenCollectorIsDown(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	err = run(context.Background(), []string{"status", "--timeout", "2s", addr}, io.Discard)
	require.Error(t, err)
}

func TestRun_Usage(t *testing.T) {
	require.ErrorIs(t, run(context.Background(), nil, io.Discard), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"bogus"}, io.Discard), errUsage)

	var buf bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"help"}, &buf))
	require.Contains(t, buf.String(), "flipper <address>")
}

func TestRunServer_PersistsOnShutdown(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- run(ctx, []string{"server", "--listen", "127.0.0.1:0", "--storage-path", dir, "--graceful-timeout", "2s"}, io.Discard)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "status.cf"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	entries, err := os.ReadDir(filepath.Join(dir, "history"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestOpenBackend_Selection(t *testing.T) {
	t.Setenv("AWS_REGION", "us-east-1")

	cfg := testServerConfig(t)

	b, closeFn, err := openBackend(cfg)
	require.NoError(t, err)
	require.IsType(t, &persistence.Filesystem{}, b)
	require.NoError(t, closeFn())

	cfg.RedisAddr = "127.0.0.1:6379"
	b, closeFn, err = openBackend(cfg)
	require.NoError(t, err)
	require.IsType(t, &persistence.Redis{}, b)
	require.NoError(t, closeFn())

	cfg.S3Bucket = "flips"
	b, closeFn, err = openBackend(cfg)
	require.NoError(t, err)
	require.IsType(t, &persistence.S3{}, b)
	require.NoError(t, closeFn())
}

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)

	_, err = parseLevel("loud")
	require.Error(t, err)
}
