package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// HealthStore implements domain.HealthStore using PostgreSQL.
type HealthStore struct {
	db DB
}

// NewHealthStore creates a new HealthStore.
func NewHealthStore(db DB) *HealthStore {
	return &HealthStore{db: db}
}

var _ domain.HealthStore = (*HealthStore)(nil)

// UpsertHeartbeat mirrors the in-process heartbeat for external readers.
func (s *HealthStore) UpsertHeartbeat(ctx context.Context, service string, at time.Time, health domain.Health) error {
	const query = `
		INSERT INTO system_health (service, last_heartbeat, health, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (service) DO UPDATE SET
			last_heartbeat = EXCLUDED.last_heartbeat,
			health         = EXCLUDED.health,
			updated_at     = NOW()`

	if _, err := conn(ctx, s.db).Exec(ctx, query, service, at, string(health)); err != nil {
		return fmt.Errorf("postgres: upsert heartbeat %s: %w", service, err)
	}
	return nil
}

// GetHeartbeat returns the last mirrored heartbeat of service, or
// domain.ErrNotFound before its first beat.
func (s *HealthStore) GetHeartbeat(ctx context.Context, service string) (domain.HeartbeatRecord, error) {
	rec := domain.HeartbeatRecord{Service: service}
	var health string
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT last_heartbeat, health, updated_at FROM system_health WHERE service = $1`, service,
	).Scan(&rec.LastHeartbeat, &health, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HeartbeatRecord{}, domain.ErrNotFound
		}
		return domain.HeartbeatRecord{}, fmt.Errorf("postgres: get heartbeat %s: %w", service, err)
	}
	rec.Health = domain.Health(health)
	return rec, nil
}

// UpsertConnection records the latest state of a price source.
func (s *HealthStore) UpsertConnection(ctx context.Context, cs domain.ConnectionStatus) error {
	const query = `
		INSERT INTO connection_status (source, status, latency_ms, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source) DO UPDATE SET
			status     = EXCLUDED.status,
			latency_ms = EXCLUDED.latency_ms,
			updated_at = EXCLUDED.updated_at`

	if _, err := conn(ctx, s.db).Exec(ctx, query, cs.Source, cs.Status, cs.LatencyMS, cs.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: upsert connection %s: %w", cs.Source, err)
	}
	return nil
}

// ListConnections returns every known source.
func (s *HealthStore) ListConnections(ctx context.Context) ([]domain.ConnectionStatus, error) {
	rows, err := conn(ctx, s.db).Query(ctx,
		`SELECT source, status, latency_ms, updated_at FROM connection_status ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list connections: %w", err)
	}
	defer rows.Close()

	var out []domain.ConnectionStatus
	for rows.Next() {
		var cs domain.ConnectionStatus
		if err := rows.Scan(&cs.Source, &cs.Status, &cs.LatencyMS, &cs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan connection: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}
