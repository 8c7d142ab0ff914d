package persistence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/coinflipper/coinflipper/internal/aggregator"
	"github.com/coinflipper/coinflipper/internal/coinpb"
	"github.com/coinflipper/coinflipper/internal/persistence/mocks"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLoop_RunOnce_WritesHistoryThenCurrent(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	source := mocks.NewMockSnapshotter(ctrl)

	data := []byte{0x10, 0x01}
	source.EXPECT().Snapshot(gomock.Any()).Return(data, nil)

	gomock.InOrder(
		backend.EXPECT().SaveSnapshot(gomock.Any(), "2024_03_09_16_05_07", data).Return(nil),
		backend.EXPECT().Save(gomock.Any(), data).Return(nil),
	)

	l := NewLoop(backend, source, time.Hour, discardLogger())
	l.nowFn = func() time.Time { return time.Date(2024, 3, 9, 16, 5, 7, 0, time.UTC) }

	require.NoError(t, l.RunOnce(context.Background()))
}

func TestLoop_RunOnce_HistoryFailureStillSavesCurrent(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	source := mocks.NewMockSnapshotter(ctrl)

	boom := errors.New("disk full")

	source.EXPECT().Snapshot(gomock.Any()).Return([]byte("x"), nil)
	backend.EXPECT().SaveSnapshot(gomock.Any(), gomock.Any(), gomock.Any()).Return(boom)
	backend.EXPECT().Save(gomock.Any(), []byte("x")).Return(nil)

	l := NewLoop(backend, source, time.Hour, discardLogger())
	require.ErrorIs(t, l.RunOnce(context.Background()), boom)
}

func TestLoop_Start_PersistsImmediatelyPeriodicallyAndOnStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	source := mocks.NewMockSnapshotter(ctrl)

	var saves atomic.Int64

	source.EXPECT().Snapshot(gomock.Any()).Return([]byte("x"), nil).MinTimes(3)
	backend.EXPECT().SaveSnapshot(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).MinTimes(3)
	backend.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, []byte) error {
		saves.Add(1)
		return nil
	}).MinTimes(3)

	var saved, failed atomic.Int64

	l := NewLoop(backend, source, 20*time.Millisecond, discardLogger())
	l.SetMetricsCallbacks(func(n int64) { saved.Add(n) }, func(n int64) { failed.Add(n) })

	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)

	require.Eventually(t, func() bool { return saves.Load() >= 2 }, time.Second, 5*time.Millisecond)

	before := saves.Load()

	cancel()
	l.Stop(context.Background())

	require.Greater(t, saves.Load(), before, "final cycle on stop")
	require.Equal(t, saves.Load(), saved.Load())
	require.Zero(t, failed.Load())
}

func TestLoop_FailuresAreCountedAndNonFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	source := mocks.NewMockSnapshotter(ctrl)

	source.EXPECT().Snapshot(gomock.Any()).Return([]byte("x"), nil).AnyTimes()
	backend.EXPECT().SaveSnapshot(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("offline")).AnyTimes()
	backend.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("offline")).AnyTimes()

	var failed atomic.Int64

	l := NewLoop(backend, source, 10*time.Millisecond, discardLogger())
	l.SetMetricsCallbacks(nil, func(n int64) { failed.Add(n) })

	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)

	require.Eventually(t, func() bool { return failed.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	l.Stop(context.Background())
}

func TestRestore_PushesDecodedStateOnce(t *testing.T) {
	ctx := context.Background()
	b := NewFilesystem(t.TempDir())

	var h aggregator.Histogram
	h[0], h[9] = 100, 3

	require.NoError(t, b.Save(ctx, coinpb.Marshal(&coinpb.Coinstatus{
		Flips:      coinpb.FlipsFromHistogram(&h),
		TotalFlips: 206,
		Stats:      []coinpb.Coinstats{{Hash: 1, FlipsPerSecond: 9}},
	})))

	acc := aggregator.NewAccumulator()
	total, err := Restore(ctx, b, acc)
	require.NoError(t, err)
	require.EqualValues(t, 206, total)

	got, gotTotal := acc.Get()
	require.Equal(t, h, got)
	require.EqualValues(t, 206, gotTotal)
}

func TestRestore_MissingAndCorruptLeaveAccumulatorEmpty(t *testing.T) {
	ctx := context.Background()
	b := NewFilesystem(t.TempDir())
	acc := aggregator.NewAccumulator()

	_, err := Restore(ctx, b, acc)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Save(ctx, []byte{0x0a, 0xff}))
	_, err = Restore(ctx, b, acc)
	require.ErrorIs(t, err, ErrCorruptSnapshot)

	_, total := acc.Get()
	require.Zero(t, total)
}

func TestTimestamp_IsUTCAndSortable(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	require.Equal(t, "2024_12_31_21_00_00", Timestamp(time.Date(2025, 1, 1, 0, 0, 0, 0, loc)))
}
