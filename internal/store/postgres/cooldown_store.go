package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// CooldownStore implements domain.CooldownStore using PostgreSQL.
type CooldownStore struct {
	db DB
}

// NewCooldownStore creates a new CooldownStore.
func NewCooldownStore(db DB) *CooldownStore {
	return &CooldownStore{db: db}
}

var _ domain.CooldownStore = (*CooldownStore)(nil)

// Insert records a new active cooldown and returns it with its id.
func (s *CooldownStore) Insert(ctx context.Context, c domain.Cooldown) (domain.Cooldown, error) {
	const query = `
		INSERT INTO cooldowns (ticker, activated_at, cooldown_until, reason, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id`

	if err := conn(ctx, s.db).QueryRow(ctx, query,
		c.Ticker, c.ActivatedAt, c.CooldownUntil, c.Reason,
	).Scan(&c.ID); err != nil {
		return domain.Cooldown{}, fmt.Errorf("postgres: insert cooldown %s: %w", c.Ticker, err)
	}
	c.Active = true
	return c, nil
}

// LatestActiveUntil returns the furthest expiry among the ticker's active
// cooldowns.
func (s *CooldownStore) LatestActiveUntil(ctx context.Context, ticker string) (time.Time, error) {
	var until *time.Time
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT MAX(cooldown_until) FROM cooldowns WHERE ticker = $1 AND active`, ticker,
	).Scan(&until)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: latest cooldown %s: %w", ticker, err)
	}
	if until == nil {
		return time.Time{}, domain.ErrNotFound
	}
	return *until, nil
}

// DeactivateExpired flips active rows whose expiry has passed. An empty
// ticker sweeps every ticker.
func (s *CooldownStore) DeactivateExpired(ctx context.Context, ticker string, now time.Time) (int64, error) {
	tag, err := conn(ctx, s.db).Exec(ctx, `
		UPDATE cooldowns SET active = FALSE
		WHERE active AND cooldown_until <= $1 AND ($2 = '' OR ticker = $2)`, now, ticker)
	if err != nil {
		return 0, fmt.Errorf("postgres: deactivate expired cooldowns %q: %w", ticker, err)
	}
	return tag.RowsAffected(), nil
}

// DeactivateTicker clears every active cooldown of the ticker.
func (s *CooldownStore) DeactivateTicker(ctx context.Context, ticker string) (int64, error) {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`UPDATE cooldowns SET active = FALSE WHERE active AND ticker = $1`, ticker)
	if err != nil {
		return 0, fmt.Errorf("postgres: deactivate cooldowns %s: %w", ticker, err)
	}
	return tag.RowsAffected(), nil
}

// ListActive returns unexpired active cooldowns, soonest expiry first.
func (s *CooldownStore) ListActive(ctx context.Context, now time.Time) ([]domain.Cooldown, error) {
	rows, err := conn(ctx, s.db).Query(ctx, `
		SELECT id, ticker, activated_at, cooldown_until, reason, active
		FROM cooldowns
		WHERE active AND cooldown_until > $1
		ORDER BY cooldown_until`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active cooldowns: %w", err)
	}
	defer rows.Close()

	var out []domain.Cooldown
	for rows.Next() {
		var c domain.Cooldown
		if err := rows.Scan(&c.ID, &c.Ticker, &c.ActivatedAt, &c.CooldownUntil, &c.Reason, &c.Active); err != nil {
			return nil, fmt.Errorf("postgres: scan cooldown: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
