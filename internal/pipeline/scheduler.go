// Package pipeline runs the periodic maintenance jobs: cooldown sweeps,
// equity snapshots, cold-storage archival and idempotency cache cleanup.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/metrics"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	spec string
	fn   JobFunc
}

// Scheduler runs registered jobs on cron specs. Specs take six fields with
// seconds ("0 0 3 * * *") or a descriptor ("@hourly", "@every 1m"). A job
// still running when its next slot fires is skipped.
type Scheduler struct {
	jobs   []job
	parser cron.Parser
	logger *slog.Logger
}

// NewScheduler creates an empty Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		parser: cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger: logger.With(slog.String("component", "scheduler")),
	}
}

// Add registers fn under name. An empty spec disables the job. The spec is
// parsed eagerly so a typo fails at startup.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if spec == "" {
		s.logger.Info("job disabled", slog.String("job", name))
		return nil
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("scheduler: job %s: parse %q: %w", name, spec, err)
	}
	s.jobs = append(s.jobs, job{name: name, spec: spec, fn: fn})
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int { return len(s.jobs) }

// Run starts every job and blocks until ctx is cancelled. Jobs receive ctx,
// and Run waits for running jobs to return before it does.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(
			cron.Recover(cronLogger{s.logger}),
			cron.SkipIfStillRunning(cronLogger{s.logger}),
		),
	)
	for _, j := range s.jobs {
		if _, err := c.AddFunc(j.spec, s.wrap(ctx, j)); err != nil {
			return fmt.Errorf("scheduler: job %s: %w", j.name, err)
		}
	}

	s.logger.InfoContext(ctx, "scheduler started", slog.Int("jobs", len(s.jobs)))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunNow executes the named job once, synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.name == name {
			return j.fn(ctx)
		}
	}
	return fmt.Errorf("scheduler: unknown job %q: %w", name, domain.ErrNotFound)
}

func (s *Scheduler) wrap(ctx context.Context, j job) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		err := j.fn(ctx)
		metrics.JobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.JobRuns.WithLabelValues(j.name, "error").Inc()
			s.logger.ErrorContext(ctx, "job failed",
				slog.String("job", j.name),
				slog.String("error", err.Error()),
			)
			return
		}
		metrics.JobRuns.WithLabelValues(j.name, "ok").Inc()
		s.logger.DebugContext(ctx, "job done",
			slog.String("job", j.name),
			slog.Duration("took", time.Since(start)),
		)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
