package rpcsrv

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/coinflipper/coinflipper/internal/coinpb"
	"github.com/coinflipper/coinflipper/internal/orchestrator"
)

type coinFlipperServer struct {
	orchestratorSvc orchestrator.Orchestrator
	coinpb.UnimplementedCoinFlipperServer
}

// NewServer returns a CoinFlipperServer backed by the provided Orchestrator.
func NewServer(svc orchestrator.Orchestrator) coinpb.CoinFlipperServer {
	return &coinFlipperServer{orchestratorSvc: svc}
}

// SubmitBatch merges a worker batch. Out-of-range positions are dropped
// individually; the rest of the batch is still merged and acknowledged.
func (c *coinFlipperServer) SubmitBatch(ctx context.Context, batch *coinpb.Coinbatch) (*coinpb.SubmitResponse, error) {
	// Use the span started by the gRPC OTel stats handler.
	span := oteltrace.SpanFromContext(ctx)

	slog.DebugContext(ctx, "Received Coinbatch")

	fragment, dropped := coinpb.HistogramFromFlips(batch.Flips)

	var count uint64
	if batch.TotalFlips > 0 {
		count = uint64(batch.TotalFlips)
	}

	c.orchestratorSvc.Submit(ctx, batch.Hash, &fragment, count)

	// Update metrics once per request.
	c.orchestratorSvc.IncrMetric(ctx, orchestrator.MetricBatchesReceived, 1)
	c.orchestratorSvc.IncrMetric(ctx, orchestrator.MetricFlipsReceived, int64(count))
	c.orchestratorSvc.IncrMetric(ctx, orchestrator.MetricPositionsDropped, int64(dropped))

	span.SetAttributes(
		attribute.Int64("batch.client", batch.Hash),
		attribute.Int64("batch.flips", int64(count)),
		attribute.Int("batch.positions", len(batch.Flips)),
		attribute.Int("batch.dropped_positions", dropped),
	)
	slog.DebugContext(
		ctx,
		"Completed Coinbatch",
		slog.Int64("client", batch.Hash),
		slog.Uint64("flips", count),
		slog.Int("positions", len(batch.Flips)),
		slog.Int("dropped_positions", dropped),
	)

	return &coinpb.SubmitResponse{}, nil
}

// GetStatus returns the merged histogram and the live per-client speeds.
func (c *coinFlipperServer) GetStatus(ctx context.Context, _ *coinpb.StatusRequest) (*coinpb.Coinstatus, error) {
	span := oteltrace.SpanFromContext(ctx)

	st := c.orchestratorSvc.Status(ctx)

	span.SetAttributes(
		attribute.Int64("status.total_flips", int64(st.TotalFlips)),
		attribute.Int("status.clients", len(st.Clients)),
	)
	slog.DebugContext(ctx, "Served status", slog.Uint64("total_flips", st.TotalFlips), slog.Int("clients", len(st.Clients)))

	return st.Proto(), nil
}
