package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/executor"
)

// memDB is an in-memory backing store for service tests. memTx snapshots the
// data on entry and restores it when fn fails, so nested calls behave like
// savepoints.
type memDB struct {
	mu         sync.Mutex
	accounts   map[int64]domain.Account
	stats      map[int64]domain.AccountStats
	positions  map[string]domain.Position
	partials   []domain.PartialClose
	logs       []domain.TradeLog
	equity     []domain.EquitySnapshot
	cooldowns  []domain.Cooldown
	slippage   []domain.SlippageRecord
	signals    []domain.SignalRecord
	heartbeats map[string]domain.HeartbeatRecord
	audits     []string

	failUpdate    map[string]error
	failLog       map[domain.TradeAction]error
	summaryErr    error
	failStatsSave int // fail the Nth Save call, 1-based
	statsSaves    int
}

func newMemDB() *memDB {
	return &memDB{
		accounts:   make(map[int64]domain.Account),
		stats:      make(map[int64]domain.AccountStats),
		positions:  make(map[string]domain.Position),
		heartbeats: make(map[string]domain.HeartbeatRecord),
		failUpdate: make(map[string]error),
		failLog:    make(map[domain.TradeAction]error),
	}
}

// memSnapshot holds copies of everything a transaction may write.
type memSnapshot struct {
	accounts   map[int64]domain.Account
	stats      map[int64]domain.AccountStats
	positions  map[string]domain.Position
	partials   []domain.PartialClose
	logs       []domain.TradeLog
	equity     []domain.EquitySnapshot
	cooldowns  []domain.Cooldown
	slippage   []domain.SlippageRecord
	signals    []domain.SignalRecord
	heartbeats map[string]domain.HeartbeatRecord
	audits     []string
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memSnapshot{
		accounts:   maps.Clone(db.accounts),
		stats:      maps.Clone(db.stats),
		positions:  maps.Clone(db.positions),
		partials:   slices.Clone(db.partials),
		logs:       slices.Clone(db.logs),
		equity:     slices.Clone(db.equity),
		cooldowns:  slices.Clone(db.cooldowns),
		slippage:   slices.Clone(db.slippage),
		signals:    slices.Clone(db.signals),
		heartbeats: maps.Clone(db.heartbeats),
		audits:     slices.Clone(db.audits),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts, db.stats, db.positions = s.accounts, s.stats, s.positions
	db.partials, db.logs, db.equity = s.partials, s.logs, s.equity
	db.cooldowns, db.slippage, db.signals = s.cooldowns, s.slippage, s.signals
	db.heartbeats, db.audits = s.heartbeats, s.audits
}

func (db *memDB) stores() Stores {
	return Stores{
		Tx:        memTx{db},
		Accounts:  memAccounts{db},
		Positions: memPositions{db},
		Partials:  memPartials{db},
		TradeLogs: memTradeLogs{db},
		Stats:     memStats{db},
		Equity:    memEquity{db},
		Cooldowns: memCooldowns{db},
		Slippage:  memSlippage{db},
		Signals:   memSignals{db},
		Health:    memHealth{db},
		Audit:     memAudit{db},
	}
}

func (db *memDB) addAccount(a domain.Account) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if a.EntryState == "" {
		a.EntryState = domain.EntryStateArmed
	}
	db.accounts[a.ID] = a
	db.stats[a.ID] = domain.AccountStats{AccountID: a.ID, PeakEquity: a.StartingEquity}
}

func (db *memDB) position(id string) domain.Position {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.positions[id]
}

func (db *memDB) account(id int64) domain.Account {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.accounts[id]
}

func (db *memDB) statsOf(id int64) domain.AccountStats {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.stats[id]
}

func (db *memDB) logsByAction(action domain.TradeAction) []domain.TradeLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.TradeLog
	for _, l := range db.logs {
		if l.Action == action {
			out = append(out, l)
		}
	}
	return out
}

func (db *memDB) openPositions() []domain.Position {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.Position
	for _, p := range db.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out
}

func sortPositions(ps []domain.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].OpenedAt.Equal(ps[j].OpenedAt) {
			return ps[i].OpenedAt.Before(ps[j].OpenedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

type memTx struct{ db *memDB }

func (t memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.db.snapshot()
	if err := fn(ctx); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

type memAccounts struct{ db *memDB }

func (m memAccounts) Ensure(_ context.Context, a domain.Account) (domain.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if got, ok := m.db.accounts[a.ID]; ok {
		return got, nil
	}
	if a.EntryState == "" {
		a.EntryState = domain.EntryStateArmed
	}
	m.db.accounts[a.ID] = a
	m.db.stats[a.ID] = domain.AccountStats{AccountID: a.ID, PeakEquity: a.StartingEquity}
	return a, nil
}

func (m memAccounts) GetByID(_ context.Context, id int64) (domain.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (m memAccounts) GetForUpdate(ctx context.Context, id int64) (domain.Account, error) {
	return m.GetByID(ctx, id)
}

func (m memAccounts) List(_ context.Context) ([]domain.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []domain.Account
	for _, a := range m.db.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memAccounts) ListEntryEnabled(ctx context.Context) ([]domain.Account, error) {
	all, _ := m.List(ctx)
	var out []domain.Account
	for _, a := range all {
		if a.AutoEntryEnabled && a.SimulationMode {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m memAccounts) SetEntry(_ context.Context, id int64, enabled bool, state domain.EntryState) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.AutoEntryEnabled = enabled
	a.EntryState = state
	m.db.accounts[id] = a
	return nil
}

func (m memAccounts) DisableAll(_ context.Context) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for id, a := range m.db.accounts {
		if a.EntryState == domain.EntryStateArmed {
			a.AutoEntryEnabled = false
			a.EntryState = domain.EntryStateDisarmed
			m.db.accounts[id] = a
			n++
		}
	}
	return n, nil
}

type memPositions struct{ db *memDB }

func (m memPositions) Create(_ context.Context, p domain.Position) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.positions[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.db.positions[p.ID] = p
	return nil
}

func (m memPositions) Update(_ context.Context, p domain.Position) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.failUpdate[p.ID]; err != nil {
		return err
	}
	if _, ok := m.db.positions[p.ID]; !ok {
		return domain.ErrNotFound
	}
	m.db.positions[p.ID] = p
	return nil
}

func (m memPositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m memPositions) GetForUpdate(ctx context.Context, id string) (domain.Position, error) {
	return m.GetByID(ctx, id)
}

func (m memPositions) filter(keep func(domain.Position) bool) []domain.Position {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []domain.Position
	for _, p := range m.db.positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out
}

func (m memPositions) ListOpenBySymbol(_ context.Context, ticker string) ([]domain.Position, error) {
	return m.filter(func(p domain.Position) bool { return p.IsOpen() && p.Ticker == ticker }), nil
}

func (m memPositions) ListOpenByAccountForUpdate(_ context.Context, accountID int64) ([]domain.Position, error) {
	return m.filter(func(p domain.Position) bool { return p.IsOpen() && p.AccountID == accountID }), nil
}

func (m memPositions) List(_ context.Context, accountID int64, status domain.PositionStatus, _ domain.ListOpts) ([]domain.Position, error) {
	return m.filter(func(p domain.Position) bool {
		return (accountID == 0 || p.AccountID == accountID) && (status == "" || p.Status == status)
	}), nil
}

func (m memPositions) OpenSymbols(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range m.filter(domain.Position.IsOpen) {
		if !seen[p.Ticker] {
			seen[p.Ticker] = true
			out = append(out, p.Ticker)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m memPositions) OpenSummary(_ context.Context) (domain.OpenPositionSummary, error) {
	if m.db.summaryErr != nil {
		return domain.OpenPositionSummary{}, m.db.summaryErr
	}
	var sum domain.OpenPositionSummary
	for _, p := range m.filter(domain.Position.IsOpen) {
		sum.Count++
		if sum.LastUpdate == nil || p.UpdatedAt.After(*sum.LastUpdate) {
			t := p.UpdatedAt
			sum.LastUpdate = &t
		}
	}
	return sum, nil
}

func (m memPositions) OpenExposure(_ context.Context, accountID int64) (float64, error) {
	var total float64
	for _, p := range m.filter(func(p domain.Position) bool { return p.IsOpen() && p.AccountID == accountID }) {
		total += p.EntryPrice * p.RemainingQuantity
	}
	return total, nil
}

func (m memPositions) TradeSummary(_ context.Context, accountID int64) (domain.TradeSummary, error) {
	var ts domain.TradeSummary
	for _, p := range m.filter(func(p domain.Position) bool { return !p.IsOpen() && p.AccountID == accountID }) {
		ts.Closed++
		if p.RealizedPnL > 0 {
			ts.Wins++
			ts.GrossProfit += p.RealizedPnL
			if p.RealizedPnL > ts.LargestWin {
				ts.LargestWin = p.RealizedPnL
			}
		} else {
			ts.Losses++
			ts.GrossLoss += p.RealizedPnL
			if p.RealizedPnL < ts.LargestLoss {
				ts.LargestLoss = p.RealizedPnL
			}
		}
	}
	return ts, nil
}

func (m memPositions) ListClosedBefore(_ context.Context, before time.Time, limit int) ([]domain.Position, error) {
	out := m.filter(func(p domain.Position) bool {
		return !p.IsOpen() && p.ClosedAt != nil && p.ClosedAt.Before(before)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memPositions) DeleteClosed(_ context.Context, ids []string) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for _, id := range ids {
		if p, ok := m.db.positions[id]; ok && !p.IsOpen() {
			delete(m.db.positions, id)
			n++
		}
	}
	return n, nil
}

type memPartials struct{ db *memDB }

func (m memPartials) Insert(_ context.Context, pc domain.PartialClose) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	pc.ID = int64(len(m.db.partials) + 1)
	m.db.partials = append(m.db.partials, pc)
	return nil
}

func (m memPartials) ListByPosition(_ context.Context, positionID string) ([]domain.PartialClose, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []domain.PartialClose
	for _, pc := range m.db.partials {
		if pc.PositionID == positionID {
			out = append(out, pc)
		}
	}
	return out, nil
}

type memTradeLogs struct{ db *memDB }

func (m memTradeLogs) Insert(_ context.Context, e domain.TradeLog) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.failLog[e.Action]; err != nil {
		return err
	}
	e.ID = int64(len(m.db.logs) + 1)
	m.db.logs = append(m.db.logs, e)
	return nil
}

func (m memTradeLogs) ListByAction(_ context.Context, action domain.TradeAction, limit int) ([]domain.TradeLog, error) {
	logs := m.db.logsByAction(action)
	// newest first
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (m memTradeLogs) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.TradeLog, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []domain.TradeLog
	for _, l := range m.db.logs {
		if l.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m memTradeLogs) DeleteByIDs(_ context.Context, ids []int64) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	drop := map[int64]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var keep []domain.TradeLog
	for _, l := range m.db.logs {
		if !drop[l.ID] {
			keep = append(keep, l)
		}
	}
	n := int64(len(m.db.logs) - len(keep))
	m.db.logs = keep
	return n, nil
}

type memStats struct{ db *memDB }

func (m memStats) Get(_ context.Context, accountID int64) (domain.AccountStats, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.stats[accountID]
	if !ok {
		return domain.AccountStats{}, domain.ErrNotFound
	}
	return s, nil
}

func (m memStats) GetForUpdate(ctx context.Context, accountID int64) (domain.AccountStats, error) {
	return m.Get(ctx, accountID)
}

func (m memStats) Save(_ context.Context, s domain.AccountStats) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.statsSaves++
	if m.db.statsSaves == m.db.failStatsSave {
		return errBoom
	}
	m.db.stats[s.AccountID] = s
	return nil
}

func (m memStats) IncrementTrades(_ context.Context, accountID int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.stats[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	s.TotalTrades++
	m.db.stats[accountID] = s
	return nil
}

type memEquity struct{ db *memDB }

func (m memEquity) Insert(_ context.Context, snap domain.EquitySnapshot) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.equity = append(m.db.equity, snap)
	return nil
}

func (m memEquity) List(_ context.Context, accountID int64, since time.Time) ([]domain.EquitySnapshot, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []domain.EquitySnapshot
	for _, s := range m.db.equity {
		if s.AccountID == accountID && !s.At.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

type memCooldowns struct{ db *memDB }

func (m memCooldowns) Insert(_ context.Context, c domain.Cooldown) (domain.Cooldown, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c.ID = int64(len(m.db.cooldowns) + 1)
	m.db.cooldowns = append(m.db.cooldowns, c)
	return c, nil
}

func (m memCooldowns) LatestActiveUntil(_ context.Context, ticker string) (time.Time, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var latest time.Time
	for _, c := range m.db.cooldowns {
		if c.Active && c.Ticker == ticker && c.CooldownUntil.After(latest) {
			latest = c.CooldownUntil
		}
	}
	if latest.IsZero() {
		return time.Time{}, domain.ErrNotFound
	}
	return latest, nil
}

func (m memCooldowns) DeactivateExpired(_ context.Context, ticker string, now time.Time) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for i, c := range m.db.cooldowns {
		if c.Active && (ticker == "" || c.Ticker == ticker) && !c.CooldownUntil.After(now) {
			m.db.cooldowns[i].Active = false
			n++
		}
	}
	return n, nil
}

func (m memCooldowns) DeactivateTicker(_ context.Context, ticker string) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for i, c := range m.db.cooldowns {
		if c.Active && c.Ticker == ticker {
			m.db.cooldowns[i].Active = false
			n++
		}
	}
	return n, nil
}

func (m memCooldowns) ListActive(_ context.Context, now time.Time) ([]domain.Cooldown, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []domain.Cooldown
	for _, c := range m.db.cooldowns {
		if c.Active && c.CooldownUntil.After(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

type memSlippage struct{ db *memDB }

func (m memSlippage) Insert(_ context.Context, r domain.SlippageRecord) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r.ID = int64(len(m.db.slippage) + 1)
	m.db.slippage = append(m.db.slippage, r)
	return nil
}

func (m memSlippage) Aggregate(_ context.Context, ticker string, since time.Time) (domain.SlippageAggregate, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var agg domain.SlippageAggregate
	var sum float64
	for _, r := range m.db.slippage {
		if (ticker != "" && r.Ticker != ticker) || r.RecordedAt.Before(since) {
			continue
		}
		if agg.Count == 0 || r.SlippagePct < agg.MinPct {
			agg.MinPct = r.SlippagePct
		}
		if agg.Count == 0 || r.SlippagePct > agg.MaxPct {
			agg.MaxPct = r.SlippagePct
		}
		agg.Count++
		sum += r.SlippagePct
		if !r.Acceptable {
			agg.HighCount++
		}
	}
	if agg.Count > 0 {
		agg.AvgPct = sum / float64(agg.Count)
	}
	return agg, nil
}

func (m memSlippage) Recent(_ context.Context, limit int) ([]domain.SlippageRecord, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []domain.SlippageRecord
	for i := len(m.db.slippage) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.db.slippage[i])
	}
	return out, nil
}

type memSignals struct{ db *memDB }

func (m memSignals) Insert(_ context.Context, r domain.SignalRecord) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if r.IdempotencyKey != "" {
		for _, s := range m.db.signals {
			if s.IdempotencyKey == r.IdempotencyKey {
				return domain.ErrAlreadyExists
			}
		}
	}
	r.ID = int64(len(m.db.signals) + 1)
	m.db.signals = append(m.db.signals, r)
	return nil
}

func (m memSignals) List(_ context.Context, _ domain.ListOpts) ([]domain.SignalRecord, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return append([]domain.SignalRecord(nil), m.db.signals...), nil
}

type memHealth struct{ db *memDB }

func (m memHealth) UpsertHeartbeat(_ context.Context, service string, at time.Time, h domain.Health) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.heartbeats[service] = domain.HeartbeatRecord{Service: service, LastHeartbeat: at, Health: h, UpdatedAt: at}
	return nil
}

func (m memHealth) GetHeartbeat(_ context.Context, service string) (domain.HeartbeatRecord, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	rec, ok := m.db.heartbeats[service]
	if !ok {
		return domain.HeartbeatRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m memHealth) UpsertConnection(_ context.Context, _ domain.ConnectionStatus) error { return nil }

func (m memHealth) ListConnections(_ context.Context) ([]domain.ConnectionStatus, error) {
	return nil, nil
}

type memAudit struct{ db *memDB }

func (m memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.audits = append(m.db.audits, event)
	return nil
}

func (m memAudit) List(_ context.Context, _ string, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// recordingNotifier captures notifications by event.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

// memLocks is a process-local LockManager.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

// fixedFills fills every order at a preset price per ticker, or the alert
// price when none is set.
type fixedFills map[string]float64

func (f fixedFills) Fill(_ context.Context, ticker string, _ domain.Side, qty, alert float64) (executor.Fill, error) {
	price := alert
	if p, ok := f[ticker]; ok {
		price = p
	}
	return executor.Fill{Price: price, Quantity: qty, Source: domain.SourceStream, At: testNow}, nil
}

var errBoom = errors.New("boom")

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
