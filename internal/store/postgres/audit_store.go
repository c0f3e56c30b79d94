package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// AuditStore keeps the append-only operator trail (kill switches, entry
// toggles, re-arms, archive runs).
type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

var _ domain.AuditStore = (*AuditStore)(nil)

// Log appends event with detail stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: encode detail: %w", event, err)
	}
	if _, err := conn(ctx, s.db).Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, raw); err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first, optionally only those named event.
func (s *AuditStore) List(ctx context.Context, event string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var f filter
	if event != "" {
		f.where("event = ?", event)
	}
	f.window("created_at", opts)
	query, args := f.build(`SELECT id, event, detail, created_at FROM audit_log`, "created_at DESC, id DESC", opts)

	rows, err := conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEntry, error) {
		var (
			e   domain.AuditEntry
			raw []byte
		)
		if err := row.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
			return e, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Detail); err != nil {
				return e, fmt.Errorf("decode detail %d: %w", e.ID, err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	return entries, nil
}
