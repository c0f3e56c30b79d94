package pipeline

import (
	"context"
	"log/slog"
)

// Job names, also used as metric labels.
const (
	JobCooldownSweep  = "cooldown_sweep"
	JobEquitySnapshot = "equity_snapshot"
	JobArchive        = "archive"
	JobDedupCleanup   = "dedup_cleanup"
)

// CooldownSweeper deactivates expired cooldowns.
type CooldownSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// EquitySnapshotter appends one equity curve point per account.
type EquitySnapshotter interface {
	SnapshotEquity(ctx context.Context) (int, error)
}

// DedupCleaner evicts expired idempotency keys.
type DedupCleaner interface {
	Cleanup() int
}

// Jobs are the maintenance tasks; nil members are not scheduled.
type Jobs struct {
	Cooldowns CooldownSweeper
	Equity    EquitySnapshotter
	Archiver  *Archiver
	Dedup     DedupCleaner
}

// Specs holds the cron spec of every job.
type Specs struct {
	CooldownSweep  string
	EquitySnapshot string
	Archive        string
	DedupCleanup   string
}

// Register adds every configured job to s.
func Register(s *Scheduler, j Jobs, specs Specs) error {
	if j.Cooldowns != nil {
		if err := s.Add(JobCooldownSweep, specs.CooldownSweep, func(ctx context.Context) error {
			n, err := j.Cooldowns.Sweep(ctx)
			if n > 0 {
				s.logger.InfoContext(ctx, "expired cooldowns swept", slog.Int64("count", n))
			}
			return err
		}); err != nil {
			return err
		}
	}
	if j.Equity != nil {
		if err := s.Add(JobEquitySnapshot, specs.EquitySnapshot, func(ctx context.Context) error {
			_, err := j.Equity.SnapshotEquity(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	if j.Archiver != nil {
		if err := s.Add(JobArchive, specs.Archive, j.Archiver.Run); err != nil {
			return err
		}
	}
	if j.Dedup != nil {
		if err := s.Add(JobDedupCleanup, specs.DedupCleanup, func(ctx context.Context) error {
			if n := j.Dedup.Cleanup(); n > 0 {
				s.logger.DebugContext(ctx, "idempotency keys evicted", slog.Int("count", n))
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
