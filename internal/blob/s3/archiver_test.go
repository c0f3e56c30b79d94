package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	err     error
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.objects == nil {
		w.objects = map[string][]byte{}
	}
	w.objects[path] = b
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

type memPositions struct{ rows []domain.Position }

func (m *memPositions) ListClosedBefore(_ context.Context, before time.Time, limit int) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range m.rows {
		if p.ClosedAt != nil && p.ClosedAt.Before(before) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositions) DeleteClosed(_ context.Context, ids []string) (int64, error) {
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var keep []domain.Position
	for _, p := range m.rows {
		if !drop[p.ID] {
			keep = append(keep, p)
		}
	}
	n := int64(len(m.rows) - len(keep))
	m.rows = keep
	return n, nil
}

type memPartials map[string][]domain.PartialClose

func (m memPartials) ListByPosition(_ context.Context, id string) ([]domain.PartialClose, error) {
	return m[id], nil
}

type memLogs struct{ rows []domain.TradeLog }

func (m *memLogs) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.TradeLog, error) {
	var out []domain.TradeLog
	for _, l := range m.rows {
		if l.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLogs) DeleteByIDs(_ context.Context, ids []int64) (int64, error) {
	drop := map[int64]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var keep []domain.TradeLog
	for _, l := range m.rows {
		if !drop[l.ID] {
			keep = append(keep, l)
		}
	}
	n := int64(len(m.rows) - len(keep))
	m.rows = keep
	return n, nil
}

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

var cutoff = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func closedAt(id string, at time.Time) domain.Position {
	return domain.Position{ID: id, Ticker: "XYZ", Status: domain.PositionStatusClosed, ClosedAt: &at}
}

func countLines(t *testing.T, b []byte) int {
	t.Helper()
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		require.True(t, json.Valid(sc.Bytes()))
		n++
	}
	return n
}

func TestArchivePositionsInBatches(t *testing.T) {
	old := cutoff.Add(-time.Hour)
	positions := &memPositions{rows: []domain.Position{
		closedAt("a", old), closedAt("b", old), closedAt("c", old),
		closedAt("recent", cutoff.Add(time.Hour)),
	}}
	partials := memPartials{"a": {{PositionID: "a", Reason: "TP1", Quantity: 1}}}
	w := &memWriter{}
	audit := &memAudit{}
	arch := NewArchiver(w, positions, partials, &memLogs{}, audit, 2)

	n, err := arch.ArchivePositions(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.Len(t, positions.rows, 1)
	assert.Equal(t, "recent", positions.rows[0].ID)

	first := w.objects["archive/positions/2026-03-02/100000-0000.jsonl"]
	second := w.objects["archive/positions/2026-03-02/100000-0001.jsonl"]
	assert.Equal(t, 2, countLines(t, first))
	assert.Equal(t, 1, countLines(t, second))
	assert.Contains(t, string(first), `"partial_closes":[{`)
	assert.Equal(t, []string{"archive.positions"}, audit.events)
}

func TestArchiveTradeLogsKeepsRowsOnUploadFailure(t *testing.T) {
	logs := &memLogs{rows: []domain.TradeLog{
		{ID: 1, Action: domain.TradeActionOpen, CreatedAt: cutoff.Add(-time.Minute)},
		{ID: 2, Action: domain.TradeActionClose, CreatedAt: cutoff.Add(-time.Second)},
	}}
	w := &memWriter{err: errors.New("bucket gone")}
	audit := &memAudit{}
	arch := NewArchiver(w, &memPositions{}, memPartials{}, logs, audit, 0)

	_, err := arch.ArchiveTradeLogs(context.Background(), cutoff)
	require.Error(t, err)
	assert.Len(t, logs.rows, 2)
	assert.Empty(t, audit.events)

	w.err = nil
	n, err := arch.ArchiveTradeLogs(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Empty(t, logs.rows)
	assert.Equal(t, 2, countLines(t, w.objects["archive/trade_logs/2026-03-02/100000-0000.jsonl"]))
}

func TestArchiveNothingToDo(t *testing.T) {
	audit := &memAudit{}
	arch := NewArchiver(&memWriter{}, &memPositions{}, memPartials{}, &memLogs{}, audit, 10)
	n, err := arch.ArchivePositions(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, audit.events)
}

func TestWithScheme(t *testing.T) {
	assert.Equal(t, "https://minio:9000", withScheme("minio:9000", true))
	assert.Equal(t, "http://minio:9000", withScheme("minio:9000", false))
	assert.Equal(t, "https://s3.example.com", withScheme("https://s3.example.com", false))
}
