package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// PositionArchiveStore is the slice of the position store the archiver
// needs.
type PositionArchiveStore interface {
	ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Position, error)
	DeleteClosed(ctx context.Context, ids []string) (int64, error)
}

// PartialArchiveStore loads the partial closes archived with a position.
type PartialArchiveStore interface {
	ListByPosition(ctx context.Context, positionID string) ([]domain.PartialClose, error)
}

// TradeLogArchiveStore is the slice of the trade log store the archiver
// needs.
type TradeLogArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.TradeLog, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// ArchiveImpl implements domain.Archiver. Rows are read in batches, written
// to S3 as JSONL and deleted from the database only after the upload
// succeeded, so a failed run leaves the rows in place for the next one.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	positions PositionArchiveStore
	partials  PartialArchiveStore
	logs      TradeLogArchiveStore
	audit     domain.AuditStore
	batchSize int
}

// NewArchiver creates an ArchiveImpl. batchSize defaults to 1000.
func NewArchiver(
	writer domain.BlobWriter,
	positions PositionArchiveStore,
	partials PartialArchiveStore,
	logs TradeLogArchiveStore,
	audit domain.AuditStore,
	batchSize int,
) *ArchiveImpl {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &ArchiveImpl{
		writer:    writer,
		positions: positions,
		partials:  partials,
		logs:      logs,
		audit:     audit,
		batchSize: batchSize,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// archivedPosition is one JSONL line: the position with its partial closes,
// which are cascade-deleted with it.
type archivedPosition struct {
	domain.Position
	Partials []domain.PartialClose `json:"partial_closes"`
}

// ArchivePositions archives closed positions older than the cutoff under
// archive/positions/.
func (a *ArchiveImpl) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for batch := 0; ; batch++ {
		rows, err := a.positions.ListClosedBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive positions query: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		records := make([]archivedPosition, 0, len(rows))
		ids := make([]string, 0, len(rows))
		for _, p := range rows {
			partials, err := a.partials.ListByPosition(ctx, p.ID)
			if err != nil {
				return total, fmt.Errorf("s3blob: archive partials of %s: %w", p.ID, err)
			}
			records = append(records, archivedPosition{Position: p, Partials: partials})
			ids = append(ids, p.ID)
		}

		path := archivePath("positions", before, batch)
		if err := upload(ctx, a.writer, path, records); err != nil {
			return total, fmt.Errorf("s3blob: archive positions: %w", err)
		}
		n, err := a.positions.DeleteClosed(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive positions delete: %w", err)
		}
		total += n
		if n == 0 || len(rows) < a.batchSize {
			break
		}
	}
	return total, a.record(ctx, "archive.positions", before, total)
}

// ArchiveTradeLogs archives trade log entries older than the cutoff under
// archive/trade_logs/.
func (a *ArchiveImpl) ArchiveTradeLogs(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for batch := 0; ; batch++ {
		rows, err := a.logs.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trade logs query: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		path := archivePath("trade_logs", before, batch)
		if err := upload(ctx, a.writer, path, rows); err != nil {
			return total, fmt.Errorf("s3blob: archive trade logs: %w", err)
		}
		ids := make([]int64, 0, len(rows))
		for _, l := range rows {
			ids = append(ids, l.ID)
		}
		n, err := a.logs.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trade logs delete: %w", err)
		}
		total += n
		if n == 0 || len(rows) < a.batchSize {
			break
		}
	}
	return total, a.record(ctx, "archive.trade_logs", before, total)
}

func upload[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if len(buf) > multipartThreshold {
		err = w.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = w.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func (a *ArchiveImpl) record(ctx context.Context, event string, before time.Time, count int64) error {
	if count == 0 || a.audit == nil {
		return nil
	}
	if err := a.audit.Log(ctx, event, map[string]any{
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("s3blob: %s audit log: %w", event, err)
	}
	return nil
}

// archivePath builds the key of one batch, partitioned by cutoff day:
//
//	archive/positions/2026-03-02/100000-0000.jsonl
func archivePath(kind string, before time.Time, batch int) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s-%04d.jsonl", kind, before.Format("2006-01-02"), before.Format("150405"), batch)
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
