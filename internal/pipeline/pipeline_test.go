package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBlobArchiver struct {
	cutoffs []time.Time
	posErr  error
	logCall int
}

func (f *fakeBlobArchiver) ArchivePositions(_ context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	return 3, f.posErr
}

func (f *fakeBlobArchiver) ArchiveTradeLogs(_ context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	f.logCall++
	return 7, nil
}

func TestArchiverRunUsesRetentionCutoff(t *testing.T) {
	blob := &fakeBlobArchiver{}
	a := NewArchiver(blob, 90, discard())
	now := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	require.NoError(t, a.Run(context.Background()))
	want := time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{want, want}, blob.cutoffs)
}

func TestArchiverStopsOnPositionFailure(t *testing.T) {
	blob := &fakeBlobArchiver{posErr: errors.New("bucket gone")}
	a := NewArchiver(blob, 30, discard())

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, blob.logCall)
}

func TestArchiverDisabled(t *testing.T) {
	blob := &fakeBlobArchiver{}
	require.NoError(t, NewArchiver(blob, 0, discard()).Run(context.Background()))
	assert.Empty(t, blob.cutoffs)
}

func TestSchedulerAddValidatesSpecs(t *testing.T) {
	s := NewScheduler(discard())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("seconds", "0 0 3 * * *", noop))
	require.NoError(t, s.Add("every", "@every 1m", noop))
	require.NoError(t, s.Add("hourly", "@hourly", noop))
	require.NoError(t, s.Add("off", "", noop))
	assert.Equal(t, 3, s.Len())

	assert.Error(t, s.Add("five-field", "0 3 * * *", noop))
	assert.Error(t, s.Add("junk", "whenever", noop))
}

type sweeper struct{ calls atomic.Int32 }

func (s *sweeper) Sweep(context.Context) (int64, error) {
	s.calls.Add(1)
	return 2, nil
}

type snapshotter struct{ err error }

func (s snapshotter) SnapshotEquity(context.Context) (int, error) { return 1, s.err }

type cleaner struct{ calls int }

func (c *cleaner) Cleanup() int {
	c.calls++
	return 4
}

func TestRegisterAndRunNow(t *testing.T) {
	s := NewScheduler(discard())
	sw := &sweeper{}
	cl := &cleaner{}
	boom := errors.New("db down")
	err := Register(s, Jobs{
		Cooldowns: sw,
		Equity:    snapshotter{err: boom},
		Dedup:     cl,
	}, Specs{
		CooldownSweep:  "@every 1m",
		EquitySnapshot: "@hourly",
		DedupCleanup:   "@every 10m",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len(), "nil archiver is not scheduled")

	ctx := context.Background()
	require.NoError(t, s.RunNow(ctx, JobCooldownSweep))
	assert.EqualValues(t, 1, sw.calls.Load())
	require.ErrorIs(t, s.RunNow(ctx, JobEquitySnapshot), boom)
	require.NoError(t, s.RunNow(ctx, JobDedupCleanup))
	assert.Equal(t, 1, cl.calls)
	assert.Error(t, s.RunNow(ctx, JobArchive))
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := NewScheduler(discard())
	err := Register(s, Jobs{Cooldowns: &sweeper{}}, Specs{CooldownSweep: "every minute"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobCooldownSweep)
}

func TestSchedulerRunFiresAndStops(t *testing.T) {
	s := NewScheduler(discard())
	sw := &sweeper{}
	require.NoError(t, Register(s, Jobs{Cooldowns: sw}, Specs{CooldownSweep: "@every 1s"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return sw.calls.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
