package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Loop periodically writes a history entry and then the current state.
// Failures are logged and retried on the next period.
type Loop struct {
	backend Backend
	source  Snapshotter
	period  time.Duration
	logger  *slog.Logger

	nowFn func() time.Time

	done chan struct{}

	// Optional metric callbacks provided by the owner (e.g., orchestrator).
	incrSaved  func(int64)
	incrFailed func(int64)
}

// NewLoop creates a loop writing source's state to backend every period.
func NewLoop(backend Backend, source Snapshotter, period time.Duration, logger *slog.Logger) *Loop {
	l := &Loop{
		backend: backend,
		source:  source,
		period:  period,
		logger:  logger,
		done:    make(chan struct{}),
	}
	l.nowFn = time.Now

	return l
}

// SetMetricsCallbacks installs optional callbacks for metrics updates.
func (l *Loop) SetMetricsCallbacks(incrSaved, incrFailed func(int64)) {
	l.incrSaved = incrSaved
	l.incrFailed = incrFailed
}

// RunOnce performs one persistence cycle: history entry first, then the
// current slot. Both writes are attempted even if the first fails.
func (l *Loop) RunOnce(ctx context.Context) error {
	data, err := l.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	ts := Timestamp(l.nowFn())

	var errs []error

	if err := l.backend.SaveSnapshot(ctx, ts, data); err != nil {
		errs = append(errs, fmt.Errorf("save snapshot %s: %w", ts, err))
	}

	if err := l.backend.Save(ctx, data); err != nil {
		errs = append(errs, fmt.Errorf("save status: %w", err))
	}

	return errors.Join(errs...)
}

// Start runs one cycle immediately and then one per period until ctx is
// canceled, after which a final cycle is written.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		defer close(l.done)

		l.cycle(ctx)

		ticker := time.NewTicker(l.period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				l.cycle(context.WithoutCancel(ctx))
				return
			case <-ticker.C:
				l.cycle(ctx)
			}
		}
	}()
}

// Stop waits for the loop to finish; the caller cancels the context passed
// to Start.
func (l *Loop) Stop(ctx context.Context) {
	select {
	case <-l.done:
	case <-ctx.Done():
	}
}

func (l *Loop) cycle(ctx context.Context) {
	start := l.nowFn()

	if err := l.RunOnce(ctx); err != nil {
		l.logger.ErrorContext(ctx, "failed to persist state",
			slog.String("err", err.Error()),
			slog.String("backend", fmt.Sprint(l.backend)),
		)

		if l.incrFailed != nil {
			l.incrFailed(1)
		}

		return
	}

	l.logger.DebugContext(ctx, "persisted state", slog.Duration("took", l.nowFn().Sub(start)))

	if l.incrSaved != nil {
		l.incrSaved(1)
	}
}
