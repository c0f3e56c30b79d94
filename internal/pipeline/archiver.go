package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// Archiver moves closed positions and trade logs past the retention window
// from the database to S3 cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff is the instant before which rows are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run executes a single archive run. Positions go first; trade logs carry no
// foreign key to them so a failure in between leaves nothing dangling.
func (a *Archiver) Run(ctx context.Context) error {
	if a.retentionDays <= 0 {
		a.logger.DebugContext(ctx, "archive disabled (retention_days <= 0)")
		return nil
	}
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	positions, err := a.blobArchiver.ArchivePositions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving positions before %v: %w", cutoff, err)
	}

	logs, err := a.blobArchiver.ArchiveTradeLogs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving trade logs before %v: %w", cutoff, err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("positions_archived", positions),
		slog.Int64("trade_logs_archived", logs),
	)
	return nil
}
