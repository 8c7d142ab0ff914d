package orchestrator

//go:generate mockgen -source=orchestrator.go -destination=./mocks/mock_orchestrator.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/coinflipper/coinflipper/internal/aggregator"
	"github.com/coinflipper/coinflipper/internal/coinpb"
	cfgpkg "github.com/coinflipper/coinflipper/internal/config"
	"github.com/coinflipper/coinflipper/internal/persistence"
)

const instrumentationName = "github.com/coinflipper/coinflipper"

// Orchestrator is the collector state the RPC layer depends on.
type Orchestrator interface {
	Submit(ctx context.Context, clientID int64, fragment *aggregator.Histogram, count uint64)
	Status(ctx context.Context) Status
	IncrMetric(ctx context.Context, mt MetricType, n int64)
}

// Status is a point-in-time view of the collector.
type Status struct {
	Histogram      aggregator.Histogram
	TotalFlips     uint64
	FlipsPerSecond uint64
	Clients        []aggregator.TallyEntry
}

// Proto converts s to its wire form.
func (s Status) Proto() *coinpb.Coinstatus {
	out := &coinpb.Coinstatus{
		Flips:          coinpb.FlipsFromHistogram(&s.Histogram),
		TotalFlips:     int64(s.TotalFlips),
		FlipsPerSecond: float64(s.FlipsPerSecond),
	}

	for _, c := range s.Clients {
		out.Stats = append(out.Stats, coinpb.Coinstats{Hash: c.ClientID, FlipsPerSecond: int64(c.Speed())})
	}

	return out
}

// orchestratorSvc holds all collector-scoped state, dependencies and metrics.
type orchestratorSvc struct {
	Cfg    cfgpkg.Server
	Logger *slog.Logger
	Tracer oteltrace.Tracer
	Meter  otelmetric.Meter

	// Metrics
	BatchesReceived  otelmetric.Int64Counter
	FlipsReceived    otelmetric.Int64Counter
	PositionsDropped otelmetric.Int64Counter
	PersistSaved     otelmetric.Int64Counter
	PersistFailed    otelmetric.Int64Counter

	Results   *aggregator.Accumulator
	Tally     *aggregator.WindowedTally
	Persister *persistence.Loop

	backend persistence.Backend

	restoreOnce sync.Once
	restoreErr  error

	loopCancel context.CancelFunc
}

// Option customizes a collector at construction.
type Option func(*orchestratorSvc) error

// WithBackend sets the persistence backend. The default is the filesystem
// backend at Cfg.StoragePath.
func WithBackend(b persistence.Backend) Option {
	return func(svc *orchestratorSvc) error {
		if b == nil {
			return errors.New("nil persistence backend")
		}

		svc.backend = b

		return nil
	}
}

// New constructs the collector with instance-level instruments.
func New(cfg cfgpkg.Server, logger *slog.Logger, opts ...Option) (*orchestratorSvc, error) {
	s := &orchestratorSvc{
		Cfg:    cfg,
		Logger: logger,
		Tracer: otel.Tracer(instrumentationName),
		Meter:  otel.Meter(instrumentationName),
	}

	var err error
	if s.BatchesReceived, err = s.Meter.Int64Counter(
		"coinflipper.batches.received",
		otelmetric.WithDescription("Number of batches accepted from workers"),
		otelmetric.WithUnit("{batch}"),
	); err != nil {
		return nil, err
	}

	if s.FlipsReceived, err = s.Meter.Int64Counter(
		"coinflipper.flips.received",
		otelmetric.WithDescription("Number of coin flips merged from workers"),
		otelmetric.WithUnit("{flip}"),
	); err != nil {
		return nil, err
	}

	if s.PositionsDropped, err = s.Meter.Int64Counter(
		"coinflipper.positions.dropped",
		otelmetric.WithDescription("Number of out-of-range histogram positions ignored"),
		otelmetric.WithUnit("{position}"),
	); err != nil {
		return nil, err
	}

	if s.PersistSaved, err = s.Meter.Int64Counter(
		"coinflipper.persist.saved",
		otelmetric.WithDescription("Number of successful persistence cycles"),
		otelmetric.WithUnit("{cycle}"),
	); err != nil {
		return nil, err
	}

	if s.PersistFailed, err = s.Meter.Int64Counter(
		"coinflipper.persist.failed",
		otelmetric.WithDescription("Number of failed persistence cycles"),
		otelmetric.WithUnit("{cycle}"),
	); err != nil {
		return nil, err
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.backend == nil {
		s.backend = persistence.NewFilesystem(cfg.StoragePath)
	}

	s.Results = aggregator.NewAccumulator()
	s.Tally = aggregator.NewWindowedTally(cfg.TallyWindow)

	s.Persister = s.newPersister()

	return s, nil
}

func (s *orchestratorSvc) newPersister() *persistence.Loop {
	l := persistence.NewLoop(s.backend, s, s.Cfg.PersistInterval, s.Logger)
	l.SetMetricsCallbacks(
		func(n int64) { s.IncrMetric(context.Background(), MetricPersistSaved, n) },
		func(n int64) { s.IncrMetric(context.Background(), MetricPersistFailed, n) },
	)

	return l
}

// Restore merges the backend's current state into the accumulator. It runs
// at most once per instance; later calls return the first result. A missing
// or corrupt snapshot starts from zero; any other load error is returned.
func (s *orchestratorSvc) Restore(ctx context.Context) error {
	s.restoreOnce.Do(func() {
		ctx, span := s.Tracer.Start(ctx, "orchestrator.Restore")
		defer span.End()

		total, err := persistence.Restore(ctx, s.backend, s.Results)

		switch {
		case err == nil:
			s.Logger.InfoContext(ctx, "Loaded previous state", slog.Uint64("total_flips", total))
		case errors.Is(err, persistence.ErrNotFound):
			s.Logger.InfoContext(ctx, "No previous state found; starting from zero")
		case errors.Is(err, persistence.ErrCorruptSnapshot):
			s.Logger.WarnContext(ctx, "Ignoring unreadable previous state", slog.String("err", err.Error()))
		default:
			s.restoreErr = fmt.Errorf("load previous state: %w", err)
		}
	})

	return s.restoreErr
}

// Start starts the persistence loop.
// It is safe to call more than once; subsequent calls are no-ops until Close.
func (s *orchestratorSvc) Start(ctx context.Context) {
	if s.Persister == nil || s.loopCancel != nil {
		return
	}

	ctx, span := s.Tracer.Start(ctx, "orchestrator.Start")
	defer span.End()

	s.Logger.DebugContext(ctx, "orchestrator.Start: begin")
	loopCtx, cancel := context.WithCancel(ctx)
	s.loopCancel = cancel
	s.Persister.Start(loopCtx)
	s.Logger.DebugContext(ctx, "orchestrator.Start: started persistence loop", slog.Duration("period", s.Cfg.PersistInterval))
}

// Close stops the persistence loop, which writes one final snapshot.
func (s *orchestratorSvc) Close(ctx context.Context) error {
	ctx, span := s.Tracer.Start(ctx, "orchestrator.Close")
	defer span.End()

	s.Logger.DebugContext(ctx, "orchestrator.Close: begin")

	if s.loopCancel != nil {
		s.loopCancel()
		s.Persister.Stop(ctx)
		s.loopCancel = nil
		// A stopped loop cannot be restarted.
		s.Persister = s.newPersister()
	}

	s.Logger.DebugContext(ctx, "orchestrator.Close: end")

	return ctx.Err()
}

// Submit merges one worker batch into the global histogram and the tally.
func (s *orchestratorSvc) Submit(ctx context.Context, clientID int64, fragment *aggregator.Histogram, count uint64) {
	ctx, span := s.Tracer.Start(ctx, "orchestrator.Submit")
	defer span.End()

	span.SetAttributes(attribute.Int64("client.id", clientID), attribute.Int64("batch.flips", int64(count)))

	s.Results.Push(fragment, count)
	s.Tally.Push(clientID, count)

	s.Logger.DebugContext(ctx, "orchestrator.Submit", slog.String("client", fmt.Sprintf("%016x", uint64(clientID))), slog.Uint64("flips", count))
}

// Status reads the merged histogram and the per-client tally.
func (s *orchestratorSvc) Status(ctx context.Context) Status {
	_, span := s.Tracer.Start(ctx, "orchestrator.Status")
	defer span.End()

	h, total := s.Results.Get()
	clients := s.Tally.Tally()

	var speed uint64
	for _, c := range clients {
		speed += c.Speed()
	}

	span.SetAttributes(attribute.Int("clients", len(clients)))

	return Status{Histogram: h, TotalFlips: total, FlipsPerSecond: speed, Clients: clients}
}

// Snapshot implements persistence.Snapshotter.
func (s *orchestratorSvc) Snapshot(ctx context.Context) ([]byte, error) {
	return coinpb.Marshal(s.Status(ctx).Proto()), nil
}

// MetricType enumerates orchestrator metric counters.
type MetricType int

const (
	MetricBatchesReceived MetricType = iota
	MetricFlipsReceived
	MetricPositionsDropped
	MetricPersistSaved
	MetricPersistFailed
)

// IncrMetric increments the selected metric by n (if n > 0).
func (s *orchestratorSvc) IncrMetric(ctx context.Context, mt MetricType, n int64) {
	if n <= 0 {
		return
	}

	switch mt {
	case MetricBatchesReceived:
		s.BatchesReceived.Add(ctx, n)
	case MetricFlipsReceived:
		s.FlipsReceived.Add(ctx, n)
	case MetricPositionsDropped:
		s.PositionsDropped.Add(ctx, n)
	case MetricPersistSaved:
		s.PersistSaved.Add(ctx, n)
	case MetricPersistFailed:
		s.PersistFailed.Add(ctx, n)
	}
}
