package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// memStore backs every in-memory repository. A transaction holds mu from
// Begin until Commit or Rollback, which makes units of work serializable;
// writes made through a transaction record an undo step so Rollback restores
// the previous state.
type memStore struct {
	mu         sync.Mutex
	currencies map[domain.CurrencyCode]*domain.Currency
	rates      []domain.Rate
	transfers  map[uuid.UUID]*domain.Transfer
	revenue    map[string]*domain.DailyRevenue
	tasks      map[uuid.UUID]*domain.SettlementTask
	audits     []domain.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		currencies: make(map[domain.CurrencyCode]*domain.Currency),
		transfers:  make(map[uuid.UUID]*domain.Transfer),
		revenue:    make(map[string]*domain.DailyRevenue),
		tasks:      make(map[uuid.UUID]*domain.SettlementTask),
	}
}

// recordUndo registers fn to run if tx rolls back.
func recordUndo(tx pgx.Tx, fn func()) {
	if mt, ok := tx.(*memTx); ok {
		mt.undo = append(mt.undo, fn)
	}
}

// --- Transactor ---

type memTransactor struct{ store *memStore }

func (t *memTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.store.mu.Lock()
	return &memTx{store: t.store}, nil
}

// memTx is a pgx.Tx whose only real behaviour is Commit and Rollback.
type memTx struct {
	store  *memStore
	undo   []func()
	closed bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("nested tx not supported")
}
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                               { return nil }

// --- Currencies ---

type memCurrencyRepo struct{ store *memStore }

func (r *memCurrencyRepo) Seed(ctx context.Context, c *domain.Currency) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.currencies[c.Name]; ok {
		return false, nil
	}
	cp := *c
	r.store.currencies[c.Name] = &cp
	return true, nil
}

func (r *memCurrencyRepo) GetByName(ctx context.Context, name domain.CurrencyCode) (*domain.Currency, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.currencies[name]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memCurrencyRepo) List(ctx context.Context) ([]domain.Currency, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.snapshot(), nil
}

func (r *memCurrencyRepo) ListForUpdate(ctx context.Context, tx pgx.Tx) ([]domain.Currency, error) {
	return r.snapshot(), nil
}

func (r *memCurrencyRepo) snapshot() []domain.Currency {
	out := make([]domain.Currency, 0, len(r.store.currencies))
	for _, c := range r.store.currencies {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *memCurrencyRepo) Reserve(ctx context.Context, tx pgx.Tx, name domain.CurrencyCode, amount decimal.Decimal) (bool, error) {
	c, ok := r.store.currencies[name]
	if !ok || c.AvailableLiquidity.LessThan(amount) {
		return false, nil
	}
	prev := *c
	c.AvailableLiquidity = c.AvailableLiquidity.Sub(amount)
	c.Version++
	recordUndo(tx, func() { *c = prev })
	return true, nil
}

func (r *memCurrencyRepo) Settle(ctx context.Context, tx pgx.Tx, name domain.CurrencyCode, amount decimal.Decimal, success bool) error {
	c, ok := r.store.currencies[name]
	if !ok {
		return fmt.Errorf("currency not found: %s", name)
	}
	prev := *c
	if success {
		c.LedgerLiquidity = c.LedgerLiquidity.Sub(amount)
	} else {
		c.AvailableLiquidity = c.AvailableLiquidity.Add(amount)
	}
	c.Version++
	recordUndo(tx, func() { *c = prev })
	return nil
}

func (r *memCurrencyRepo) AddLiquidity(ctx context.Context, tx pgx.Tx, name domain.CurrencyCode, amount decimal.Decimal, rebalancedAt time.Time) error {
	c, ok := r.store.currencies[name]
	if !ok {
		return fmt.Errorf("currency not found: %s", name)
	}
	prev := *c
	c.AvailableLiquidity = c.AvailableLiquidity.Add(amount)
	c.LedgerLiquidity = c.LedgerLiquidity.Add(amount)
	c.LastRebalance = rebalancedAt
	c.Version++
	recordUndo(tx, func() { *c = prev })
	return nil
}

// --- Rates ---

type memRateRepo struct{ store *memStore }

func (r *memRateRepo) Create(ctx context.Context, rate *domain.Rate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.rates {
		if existing.SourceCurrency == rate.SourceCurrency &&
			existing.DestinationCurrency == rate.DestinationCurrency &&
			existing.Timestamp.Equal(rate.Timestamp) {
			return apperror.ErrDuplicateRate()
		}
	}
	r.store.rates = append(r.store.rates, *rate)
	return nil
}

func (r *memRateRepo) LatestAt(ctx context.Context, src, dst domain.CurrencyCode, at time.Time) (*domain.Rate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var latest *domain.Rate
	for i := range r.store.rates {
		rate := &r.store.rates[i]
		if rate.SourceCurrency != src || rate.DestinationCurrency != dst || rate.Timestamp.After(at) {
			continue
		}
		if latest == nil || rate.Timestamp.After(latest.Timestamp) {
			latest = rate
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *memRateRepo) ListForDestination(ctx context.Context, tx pgx.Tx, dst domain.CurrencyCode, from, to time.Time) ([]decimal.Decimal, error) {
	matched := make([]domain.Rate, 0)
	for _, rate := range r.store.rates {
		if rate.DestinationCurrency == dst && !rate.Timestamp.Before(from) && !rate.Timestamp.After(to) {
			matched = append(matched, rate)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })
	values := make([]decimal.Decimal, 0, len(matched))
	for _, rate := range matched {
		values = append(values, rate.Rate)
	}
	return values, nil
}

// --- Transfers ---

type memTransferRepo struct{ store *memStore }

func (r *memTransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transfer) error {
	for _, existing := range r.store.transfers {
		if existing.Reference == t.Reference || existing.IdempotenceKey == t.IdempotenceKey {
			return apperror.ErrDuplicateTransfer()
		}
	}
	cp := *t
	r.store.transfers[t.ID] = &cp
	recordUndo(tx, func() { delete(r.store.transfers, t.ID) })
	return nil
}

func (r *memTransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.get(id), nil
}

func (r *memTransferRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transfer, error) {
	return r.get(id), nil
}

func (r *memTransferRepo) get(id uuid.UUID) *domain.Transfer {
	t, ok := r.store.transfers[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func (r *memTransferRepo) ExistsByIdempotenceKeyOrReference(ctx context.Context, tx pgx.Tx, idempotenceKey, reference string) (bool, error) {
	for _, t := range r.store.transfers {
		if t.IdempotenceKey == idempotenceKey || t.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (r *memTransferRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.TransferStatus, completedAt *time.Time) (bool, error) {
	t, ok := r.store.transfers[id]
	if !ok || t.Status != from {
		return false, nil
	}
	prev := *t
	t.Status = to
	t.StatusDescription = to.Description()
	t.CompletedAt = completedAt
	recordUndo(tx, func() { *t = prev })
	return true, nil
}

func (r *memTransferRepo) SumSuccessfulVolume(ctx context.Context, tx pgx.Tx, dst domain.CurrencyCode, from, to time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range r.store.transfers {
		if t.DestinationCurrency != dst || t.Status != domain.TransferStatusSuccessful || t.CompletedAt == nil {
			continue
		}
		if !t.CompletedAt.Before(from) && !t.CompletedAt.After(to) {
			sum = sum.Add(t.DestinationAmount)
		}
	}
	return sum, nil
}

func (r *memTransferRepo) SumDemand(ctx context.Context, tx pgx.Tx, dst domain.CurrencyCode, from, to time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range r.store.transfers {
		if t.DestinationCurrency == dst && !t.InitiatedAt.Before(from) && !t.InitiatedAt.After(to) {
			sum = sum.Add(t.DestinationAmount)
		}
	}
	return sum, nil
}

// --- Revenue ---

type memRevenueRepo struct{ store *memStore }

func (r *memRevenueRepo) Accrue(ctx context.Context, tx pgx.Tx, day string, currency domain.CurrencyCode, amount decimal.Decimal) error {
	key := day + "|" + string(currency)
	row, ok := r.store.revenue[key]
	if !ok {
		row = &domain.DailyRevenue{Day: day, Currency: currency, Revenue: decimal.Zero}
		r.store.revenue[key] = row
		recordUndo(tx, func() { delete(r.store.revenue, key) })
	} else {
		prev := *row
		recordUndo(tx, func() { *row = prev })
	}
	row.Revenue = row.Revenue.Add(amount)
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memRevenueRepo) ListByDay(ctx context.Context, day string) ([]domain.DailyRevenue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]domain.DailyRevenue, 0)
	for _, row := range r.store.revenue {
		if row.Day == day {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// --- Settlement tasks ---

type memTaskRepo struct{ store *memStore }

func (r *memTaskRepo) Enqueue(ctx context.Context, tx pgx.Tx, task *domain.SettlementTask) error {
	cp := *task
	r.store.tasks[task.ID] = &cp
	recordUndo(tx, func() { delete(r.store.tasks, task.ID) })
	return nil
}

func (r *memTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	due := make([]*domain.SettlementTask, 0)
	for _, task := range r.store.tasks {
		if task.Status == domain.TaskStatusPending && !task.NextAttemptAt.After(now) {
			due = append(due, task)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]domain.SettlementTask, 0, len(due))
	for _, task := range due {
		task.Status = domain.TaskStatusProcessing
		task.UpdatedAt = now
		claimed = append(claimed, *task)
	}
	return claimed, nil
}

func (r *memTaskRepo) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(t *domain.SettlementTask) {
		t.Status = domain.TaskStatusDone
	})
}

func (r *memTaskRepo) MarkRetry(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time) error {
	return r.update(id, func(t *domain.SettlementTask) {
		if t.Status != domain.TaskStatusProcessing {
			return
		}
		t.Status = domain.TaskStatusPending
		t.Attempts++
		t.LastError = &lastError
		t.NextAttemptAt = nextAttemptAt
	})
}

func (r *memTaskRepo) MarkDead(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.update(id, func(t *domain.SettlementTask) {
		t.Status = domain.TaskStatusDead
		t.Attempts++
		t.LastError = &lastError
	})
}

func (r *memTaskRepo) update(id uuid.UUID, fn func(t *domain.SettlementTask)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	task, ok := r.store.tasks[id]
	if !ok {
		return fmt.Errorf("settlement task not found: %s", id)
	}
	fn(task)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memTaskRepo) ResetStuck(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, task := range r.store.tasks {
		if task.Status == domain.TaskStatusProcessing && task.UpdatedAt.Before(before) {
			task.Status = domain.TaskStatusPending
			task.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (r *memTaskRepo) EnqueueOrphans(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	live := make(map[uuid.UUID]bool)
	for _, task := range r.store.tasks {
		if task.Status == domain.TaskStatusPending || task.Status == domain.TaskStatusProcessing {
			live[task.TransferID] = true
		}
	}

	var n int64
	now := time.Now().UTC()
	for _, t := range r.store.transfers {
		if t.IsTerminal() || !t.InitiatedAt.Before(before) || live[t.ID] {
			continue
		}
		task := domain.NewSettlementTask(t.ID, now)
		r.store.tasks[task.ID] = task
		n++
	}
	return n, nil
}

func (r *memTaskRepo) byTransfer(id uuid.UUID) []domain.SettlementTask {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]domain.SettlementTask, 0)
	for _, task := range r.store.tasks {
		if task.TransferID == id {
			out = append(out, *task)
		}
	}
	return out
}

// --- Audit ---

type memAuditRepo struct{ store *memStore }

func (r *memAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.audits = append(r.store.audits, *log)
	return nil
}

func (r *memAuditRepo) count() int {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return len(r.store.audits)
}
