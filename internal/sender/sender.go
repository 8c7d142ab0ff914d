package sender

//go:generate mockgen -source=sender.go -destination=./mocks/mock_sender.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/coinflipper/coinflipper/internal/aggregator"
	"github.com/coinflipper/coinflipper/internal/coinpb"
)

const instrumentationName = "github.com/coinflipper/coinflipper/sender"

// Conn is an open channel to the collector.
type Conn interface {
	Submit(ctx context.Context, batch *coinpb.Coinbatch) error
	Close() error
}

// Dialer opens channels to the collector.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Source is drained once per tick. *aggregator.Accumulator satisfies it.
type Source interface {
	Pop() (aggregator.Histogram, uint64)
}

// Config tunes a Sender.
type Config struct {
	ClientID       int64
	Tick           time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Sender drains a Source on every tick and delivers the drained batches to
// the collector in order, at least once. A batch leaves the queue only after
// the collector acknowledged it.
type Sender struct {
	cfg    Config
	source Source
	dialer Dialer
	logger *slog.Logger

	queue   *Queue
	state   State
	conn    Conn
	backoff *backoff.ExponentialBackOff

	sleepFn func(ctx context.Context, d time.Duration) error

	batchesSent   otelmetric.Int64Counter
	sendFailed    otelmetric.Int64Counter
	connectFailed otelmetric.Int64Counter
	queueGauge    otelmetric.Registration
}

// New constructs a Sender. It does not dial until the first non-empty tick.
func New(cfg Config, source Source, dialer Dialer, logger *slog.Logger) (*Sender, error) {
	if source == nil || dialer == nil {
		return nil, errors.New("sender: nil source or dialer")
	}

	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}

	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}

	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = 30 * cfg.BackoffInitial
	}

	s := &Sender{
		cfg:     cfg,
		source:  source,
		dialer:  dialer,
		logger:  logger,
		queue:   &Queue{},
		state:   StateIdle,
		backoff: newBackoff(cfg.BackoffInitial, cfg.BackoffMax),
		sleepFn: sleepCtx,
	}

	meter := otel.Meter(instrumentationName)

	var err error
	if s.batchesSent, err = meter.Int64Counter(
		"coinflipper.batches.sent",
		otelmetric.WithDescription("Number of batches acknowledged by the collector"),
		otelmetric.WithUnit("{batch}"),
	); err != nil {
		return nil, err
	}

	if s.sendFailed, err = meter.Int64Counter(
		"coinflipper.send.failed",
		otelmetric.WithDescription("Number of failed batch submissions"),
		otelmetric.WithUnit("{batch}"),
	); err != nil {
		return nil, err
	}

	if s.connectFailed, err = meter.Int64Counter(
		"coinflipper.connect.failed",
		otelmetric.WithDescription("Number of failed connection attempts"),
		otelmetric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}

	gauge, err := meter.Int64ObservableGauge(
		"coinflipper.queue.length",
		otelmetric.WithDescription("Number of batches waiting for acknowledgment"),
		otelmetric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, err
	}

	if s.queueGauge, err = meter.RegisterCallback(func(_ context.Context, o otelmetric.Observer) error {
		o.ObserveInt64(gauge, int64(s.queue.Len()))
		return nil
	}, gauge); err != nil {
		return nil, err
	}

	return s, nil
}

func newBackoff(initial, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetSleep replaces the function used to wait out a backoff interval.
func (s *Sender) SetSleep(fn func(ctx context.Context, d time.Duration) error) { s.sleepFn = fn }

// State returns the current connection state. It is not synchronized with
// Step and is meant for the goroutine that drives the Sender.
func (s *Sender) State() State { return s.state }

// Queue exposes the retry queue.
func (s *Sender) Queue() *Queue { return s.queue }

// Run calls Step on every tick until ctx is done. It does not flush; call
// Flush afterwards to deliver what is left.
func (s *Sender) Run(ctx context.Context) error {
	s.logger.DebugContext(ctx, "sender.Run: begin", slog.Duration("tick", s.cfg.Tick))

	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.DebugContext(ctx, "sender.Run: end", slog.Int("queue_len", s.queue.Len()))
			return nil
		case <-t.C:
			s.Step(ctx)
		}
	}
}

// Step performs one tick: drain the source into the queue, make sure a
// connection exists, then send queued batches head first until the queue is
// empty or a send fails. A failed connect waits out the current backoff.
func (s *Sender) Step(ctx context.Context) {
	s.drain(ctx)

	if s.queue.Len() == 0 {
		return
	}

	if !s.ensureConn(ctx) {
		d := s.backoff.NextBackOff()
		s.logger.WarnContext(ctx, "Waiting before reconnecting", slog.Duration("backoff", d), slog.Int("queue_len", s.queue.Len()))
		_ = s.sleepFn(ctx, d)

		return
	}

	s.sendQueued(ctx)
}

// Flush drains the source one last time and makes a single attempt to
// deliver the queue without backing off. It closes the connection and
// returns what is still unacknowledged.
func (s *Sender) Flush(ctx context.Context) (pending int, flips uint64) {
	s.drain(ctx)

	if s.queue.Len() > 0 && s.ensureConn(ctx) {
		s.sendQueued(ctx)
	}

	s.disconnect(StateIdle)

	pending, flips = s.queue.Len(), s.queue.Flips()
	if pending > 0 {
		s.logger.ErrorContext(ctx, "Batches left unacknowledged at shutdown",
			slog.Int("queue_len", pending),
			slog.Uint64("flips", flips),
		)
	} else {
		s.logger.InfoContext(ctx, "All batches acknowledged")
	}

	return pending, flips
}

// Close releases the metric registration and any open connection.
func (s *Sender) Close() error {
	s.disconnect(StateIdle)

	if s.queueGauge != nil {
		return s.queueGauge.Unregister()
	}

	return nil
}

func (s *Sender) drain(ctx context.Context) {
	h, total := s.source.Pop()
	if total == 0 {
		return
	}

	s.queue.Push(coinpb.NewBatch(s.cfg.ClientID, &h, total))
	s.logger.DebugContext(ctx, "Queued batch", slog.Uint64("flips", total), slog.Int("queue_len", s.queue.Len()))
}

func (s *Sender) ensureConn(ctx context.Context) bool {
	if s.conn != nil {
		return true
	}

	s.state = StateConnecting

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		s.state = StateDisconnected
		s.connectFailed.Add(ctx, 1)
		s.logger.WarnContext(ctx, "Failed to connect to collector", slog.String("err", err.Error()))

		return false
	}

	s.conn = conn
	s.state = StateConnected
	s.backoff.Reset()
	s.logger.InfoContext(ctx, "Connected to collector", slog.String("client", fmt.Sprintf("%016x", uint64(s.cfg.ClientID))))

	return true
}

func (s *Sender) sendQueued(ctx context.Context) {
	for {
		batch, ok := s.queue.Head()
		if !ok {
			s.state = StateConnected
			return
		}

		s.state = StateSending

		if err := s.conn.Submit(ctx, batch); err != nil {
			s.sendFailed.Add(ctx, 1)
			s.logger.WarnContext(ctx, "Failed to send batch", slog.String("err", err.Error()), slog.Int("queue_len", s.queue.Len()))
			s.disconnect(StateDisconnected)

			return
		}

		s.queue.Ack()
		s.batchesSent.Add(ctx, 1)
	}
}

func (s *Sender) disconnect(next State) {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("Closing collector connection", slog.String("err", err.Error()))
		}

		s.conn = nil
	}

	s.state = next
}
