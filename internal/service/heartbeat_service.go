package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/metrics"
	"github.com/alanyoungcy/signalguard/internal/notify"
)

// HeartbeatState is the monitor's process-local state. The zero value is
// ready to use.
type HeartbeatState struct {
	mu            sync.Mutex
	lastHeartbeat time.Time
	health        domain.Health
	alertSent     bool
	running       bool
}

// HeartbeatSnapshot is a copy of HeartbeatState.
type HeartbeatSnapshot struct {
	LastHeartbeat time.Time
	Health        domain.Health
	AlertSent     bool
	Running       bool
}

// Snapshot copies the state under its lock.
func (h *HeartbeatState) Snapshot() HeartbeatSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HeartbeatSnapshot{
		LastHeartbeat: h.lastHeartbeat,
		Health:        h.health,
		AlertSent:     h.alertSent,
		Running:       h.running,
	}
}

// HeartbeatConfig tunes the monitor.
type HeartbeatConfig struct {
	Service    string
	Interval   time.Duration
	StaleAfter time.Duration // open positions without a price update for this long are CRITICAL
	WarnAfter  time.Duration // a monitor beat older than this is WARNING
}

// HeartbeatStatus is what /api/heartbeat reports.
type HeartbeatStatus struct {
	Running            bool          `json:"running"`
	LastHeartbeat      *time.Time    `json:"last_heartbeat"`
	TimeSinceHeartbeat *float64      `json:"time_since_heartbeat"`
	Health             domain.Health `json:"health"`
}

// HeartbeatService watches that open positions keep receiving prices. It
// never mutates positions.
type HeartbeatService struct {
	state     *HeartbeatState
	positions domain.PositionStore
	health    domain.HealthStore
	notifier  Notifier
	cfg       HeartbeatConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewHeartbeatService creates a HeartbeatService around state.
func NewHeartbeatService(state *HeartbeatState, positions domain.PositionStore, health domain.HealthStore, notifier Notifier, cfg HeartbeatConfig, logger *slog.Logger) *HeartbeatService {
	if cfg.Service == "" {
		cfg.Service = "risk_engine"
	}
	return &HeartbeatService{
		state:     state,
		positions: positions,
		health:    health,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "heartbeat")),
	}
}

// Run beats and checks every interval until ctx is cancelled.
func (s *HeartbeatService) Run(ctx context.Context) error {
	s.setRunning(true)
	defer s.setRunning(false)
	s.logger.InfoContext(ctx, "heartbeat monitor started", slog.Duration("interval", s.cfg.Interval))

	s.tick(ctx)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "heartbeat monitor stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick refreshes the monitor's own beat before classifying. The stored row
// gets the health this tick computed.
func (s *HeartbeatService) tick(ctx context.Context) {
	at := s.Touch()
	health, err := s.Check(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "heartbeat check failed", slog.String("error", err.Error()))
	}
	if err := s.record(ctx, at, health); err != nil {
		s.logger.WarnContext(ctx, "heartbeat write failed", slog.String("error", err.Error()))
	}
}

func (s *HeartbeatService) setRunning(v bool) {
	s.state.mu.Lock()
	s.state.running = v
	s.state.mu.Unlock()
}

// Touch refreshes the liveness timestamp in memory. Pipeline loops call it
// on every unit of work.
func (s *HeartbeatService) Touch() time.Time {
	now := s.now()
	s.state.mu.Lock()
	s.state.lastHeartbeat = now
	s.state.mu.Unlock()
	return now
}

// Beat refreshes the liveness timestamp and mirrors it to the store.
func (s *HeartbeatService) Beat(ctx context.Context) error {
	at := s.Touch()
	return s.record(ctx, at, s.state.Snapshot().Health)
}

func (s *HeartbeatService) record(ctx context.Context, at time.Time, health domain.Health) error {
	if s.health == nil {
		return nil
	}
	if health == "" {
		health = domain.HealthHealthy
	}
	if err := s.health.UpsertHeartbeat(ctx, s.cfg.Service, at, health); err != nil {
		return fmt.Errorf("heartbeat: beat: %w", err)
	}
	return nil
}

// Check classifies the system: CRITICAL when open positions have not seen a
// price for StaleAfter, WARNING when the monitor's own beat is older than
// WarnAfter, HEALTHY otherwise and ERROR when the store cannot be read. The
// first CRITICAL sends one alert; the next HEALTHY sends a recovery notice.
func (s *HeartbeatService) Check(ctx context.Context) (domain.Health, error) {
	sum, err := s.positions.OpenSummary(ctx)
	if err != nil {
		s.transition(ctx, domain.HealthError, domain.OpenPositionSummary{}, 0)
		return domain.HealthError, fmt.Errorf("heartbeat: open summary: %w", err)
	}

	now := s.now()
	snap := s.state.Snapshot()
	health := domain.HealthHealthy
	var stale time.Duration
	switch {
	case sum.Count > 0 && sum.LastUpdate != nil && now.Sub(*sum.LastUpdate) > s.cfg.StaleAfter:
		health = domain.HealthCritical
		stale = now.Sub(*sum.LastUpdate)
	case !snap.LastHeartbeat.IsZero() && now.Sub(snap.LastHeartbeat) > s.cfg.WarnAfter:
		health = domain.HealthWarning
	}
	s.transition(ctx, health, sum, stale)
	return health, nil
}

func (s *HeartbeatService) transition(ctx context.Context, health domain.Health, sum domain.OpenPositionSummary, stale time.Duration) {
	s.state.mu.Lock()
	prev := s.state.health
	s.state.health = health
	alert := health == domain.HealthCritical && !s.state.alertSent
	recovered := health == domain.HealthHealthy && s.state.alertSent
	if alert {
		s.state.alertSent = true
	}
	if recovered {
		s.state.alertSent = false
	}
	s.state.mu.Unlock()

	for _, h := range []domain.Health{domain.HealthHealthy, domain.HealthWarning, domain.HealthCritical, domain.HealthError} {
		v := 0.0
		if h == health {
			v = 1
		}
		metrics.HeartbeatHealth.WithLabelValues(string(h)).Set(v)
	}
	if prev != health {
		s.logger.InfoContext(ctx, "health changed",
			slog.String("from", string(prev)),
			slog.String("to", string(health)),
		)
	}
	if alert {
		s.logger.ErrorContext(ctx, "price updates stalled",
			slog.Int64("open_positions", sum.Count),
			slog.Duration("since_update", stale),
		)
		send(ctx, s.notifier, notify.HeartbeatCritical(sum.Count, stale), s.logger)
	}
	if recovered {
		send(ctx, s.notifier, notify.HeartbeatRecovered(), s.logger)
	}
}

// Status reports the monitor state without re-checking. When the monitor
// does not run in this process the answer comes from the mirrored
// system_health row. That row is written once per Interval, so the remote
// monitor counts as running while its beat is younger than Interval plus
// WarnAfter; an older beat downgrades HEALTHY to WARNING.
func (s *HeartbeatService) Status(ctx context.Context) HeartbeatStatus {
	snap := s.state.Snapshot()
	if !snap.Running && s.health != nil {
		return s.storedStatus(ctx, snap)
	}
	return s.statusOf(snap.Running, snap.LastHeartbeat, snap.Health)
}

func (s *HeartbeatService) storedStatus(ctx context.Context, local HeartbeatSnapshot) HeartbeatStatus {
	rec, err := s.health.GetHeartbeat(ctx, s.cfg.Service)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.statusOf(false, local.LastHeartbeat, local.Health)
	case err != nil:
		s.logger.WarnContext(ctx, "read stored heartbeat failed", slog.String("error", err.Error()))
		return s.statusOf(false, local.LastHeartbeat, domain.HealthError)
	}

	fresh := s.now().Sub(rec.LastHeartbeat) <= s.cfg.Interval+s.cfg.WarnAfter
	health := rec.Health
	if !fresh && (health == "" || health == domain.HealthHealthy) {
		health = domain.HealthWarning
	}
	return s.statusOf(fresh, rec.LastHeartbeat, health)
}

func (s *HeartbeatService) statusOf(running bool, last time.Time, health domain.Health) HeartbeatStatus {
	st := HeartbeatStatus{Running: running, Health: health}
	if st.Health == "" {
		st.Health = domain.HealthHealthy
	}
	if !last.IsZero() {
		since := s.now().Sub(last).Seconds()
		st.LastHeartbeat = &last
		st.TimeSinceHeartbeat = &since
	}
	return st
}
