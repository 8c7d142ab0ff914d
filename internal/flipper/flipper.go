package flipper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/coinflipper/coinflipper/internal/aggregator"
	cfgpkg "github.com/coinflipper/coinflipper/internal/config"
	"github.com/coinflipper/coinflipper/internal/sender"
)

// WordsPerPush is the number of 64-bit words a generator consumes between
// pushes into the local accumulator.
const WordsPerPush = 0xffff

// Pusher receives generator output. *aggregator.Accumulator satisfies it.
type Pusher interface {
	Push(fragment *aggregator.Histogram, count uint64)
}

// Flip draws words from src until ctx is done, pushing the completed runs
// and the number of flips every WordsPerPush words.
func Flip(ctx context.Context, src rand.Source, dst Pusher) {
	var rc RunCounter

	for ctx.Err() == nil {
		for range WordsPerPush {
			rc.Feed(src.Uint64())
		}

		h := rc.Take()
		dst.Push(&h, WordsPerPush*64)
	}
}

// Worker runs generator goroutines and a Sender against one collector.
type Worker struct {
	cfg      cfgpkg.Flipper
	dialer   sender.Dialer
	logger   *slog.Logger
	clientID int64
	newSrc   func() rand.Source

	Results *aggregator.Accumulator
}

// Option customizes a Worker at construction.
type Option func(*Worker)

// WithClientID fixes the client id instead of drawing a random one.
func WithClientID(id int64) Option {
	return func(w *Worker) { w.clientID = id }
}

// WithSource sets the generator factory, called once per thread.
func WithSource(fn func() rand.Source) Option {
	return func(w *Worker) { w.newSrc = fn }
}

// NewWorker builds a worker. A zero cfg.Threads means one thread per CPU.
func NewWorker(cfg cfgpkg.Flipper, dialer sender.Dialer, logger *slog.Logger, opts ...Option) *Worker {
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}

	w := &Worker{
		cfg:      cfg,
		dialer:   dialer,
		logger:   logger,
		clientID: int64(rand.Uint64()),
		newSrc:   func() rand.Source { return rand.NewPCG(rand.Uint64(), rand.Uint64()) },
		Results:  aggregator.NewAccumulator(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// ClientID returns the id sent with every batch.
func (w *Worker) ClientID() int64 { return w.clientID }

// Run flips coins until ctx is done. Generators stop first; the sender then
// gets one bounded flush of everything still queued.
func (w *Worker) Run(ctx context.Context) error {
	snd, err := sender.New(sender.Config{
		ClientID:       w.clientID,
		Tick:           w.cfg.Tick,
		BackoffInitial: w.cfg.BackoffInitial,
		BackoffMax:     w.cfg.BackoffMax,
	}, w.Results, w.dialer, w.logger)
	if err != nil {
		return err
	}
	defer snd.Close()

	w.logger.InfoContext(ctx, "Started flipping the coins",
		slog.String("client", fmt.Sprintf("%x", uint64(w.clientID))),
		slog.Int("threads", w.cfg.Threads),
		slog.String("collector", w.cfg.Server),
	)

	g, gctx := errgroup.WithContext(ctx)

	for range w.cfg.Threads {
		src := w.newSrc()
		g.Go(func() error {
			Flip(gctx, src, w.Results)
			return nil
		})
	}

	g.Go(func() error { return snd.Run(gctx) })

	runErr := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.GracefulTimeout)
	defer cancel()

	snd.Flush(flushCtx)

	return runErr
}
