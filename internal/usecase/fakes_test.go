package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/pkg/utils"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for the postgres state with real
// per-account locking, so the usecase concurrency behavior can be exercised
// without a database. The repository interfaces are implemented by thin
// views over the shared store; transactions stage their writes and apply
// them on Commit, while Rollback discards everything.
type memStore struct {
	mu sync.Mutex

	gen     *utils.AccountNumberGenerator
	numbers map[string]int64

	accounts  map[int64]*domain.Account
	entries   []*domain.LedgerEntry
	transfers map[int64]*domain.Transfer

	locks map[int64]*sync.Mutex

	nextAccountID  int64
	nextEntryID    int64
	nextTransferID int64
}

func newMemStore() *memStore {
	return &memStore{
		gen:       utils.NewAccountNumberGenerator(),
		numbers:   make(map[string]int64),
		accounts:  make(map[int64]*domain.Account),
		transfers: make(map[int64]*domain.Transfer),
		locks:     make(map[int64]*sync.Mutex),
	}
}

func (s *memStore) accountRepo() *memAccountRepo   { return &memAccountRepo{s} }
func (s *memStore) entryRepo() *memEntryRepo       { return &memEntryRepo{s} }
func (s *memStore) transferRepo() *memTransferRepo { return &memTransferRepo{s} }

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func copyTransfer(t *domain.Transfer) *domain.Transfer {
	c := *t
	return &c
}

// seedAccount creates an account and force-sets its starting balance.
func (s *memStore) seedAccount(owner, phone, balance string) *domain.Account {
	a, err := s.accountRepo().Create(context.Background(), &domain.OpenAccountRequest{
		OwnerID:     owner,
		Phone:       phone,
		AccountType: domain.AccountTypeSavings,
	})
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.accounts[a.ID].Balance = decimal.RequireFromString(balance)
	a.Balance = s.accounts[a.ID].Balance
	s.mu.Unlock()
	return a
}

func (s *memStore) deactivate(accountID int64) {
	s.mu.Lock()
	s.accounts[accountID].IsActive = false
	s.mu.Unlock()
}

func (s *memStore) balanceOf(accountID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[accountID].Balance
}

func (s *memStore) entriesOf(accountID int64) []*domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			c := *e
			out = append(out, &c)
		}
	}
	return out
}

func (s *memStore) transferByID(transferID int64) *domain.Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[transferID]
	if !ok {
		return nil
	}
	return copyTransfer(t)
}

// --- AccountRepository ---

type memAccountRepo struct {
	s *memStore
}

func (r *memAccountRepo) Create(_ context.Context, req *domain.OpenAccountRequest) (*domain.Account, error) {
	if !domain.ValidAccountType(req.AccountType) {
		return nil, fmt.Errorf("%w: unknown account type %q", domain.ErrInvalidRequest, req.AccountType)
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < utils.MaxNumberAttempts; attempt++ {
		number, err := s.gen.Derive(req.Phone, attempt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
		if _, taken := s.numbers[number]; taken {
			continue
		}

		s.nextAccountID++
		now := time.Now().UTC()
		a := &domain.Account{
			ID:            s.nextAccountID,
			OwnerID:       req.OwnerID,
			AccountNumber: number,
			RoutingCode:   utils.RoutingCode,
			AccountType:   req.AccountType,
			Balance:       decimal.Zero,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.numbers[number] = a.ID
		s.accounts[a.ID] = a
		s.locks[a.ID] = &sync.Mutex{}
		return copyAccount(a), nil
	}

	return nil, fmt.Errorf("%w: no free account number slot for phone", domain.ErrPersistenceFailure)
}

func (r *memAccountRepo) GetByID(_ context.Context, accountID int64) (*domain.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (r *memAccountRepo) GetByAccountNumber(_ context.Context, accountNumber string) (*domain.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.numbers[accountNumber]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return copyAccount(s.accounts[id]), nil
}

func (r *memAccountRepo) BeginTx(context.Context) (pgx.Tx, error) {
	return &memTx{store: r.s, balances: make(map[int64]decimal.Decimal)}, nil
}

func (r *memAccountRepo) LockForUpdate(_ context.Context, tx pgx.Tx, accountID int64) (*domain.Account, error) {
	s := r.s
	mtx := tx.(*memTx)

	s.mu.Lock()
	lock, ok := s.locks[accountID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	lock.Lock()
	mtx.held = append(mtx.held, lock)

	s.mu.Lock()
	defer s.mu.Unlock()
	return copyAccount(s.accounts[accountID]), nil
}

func (r *memAccountRepo) UpdateBalanceTx(_ context.Context, tx pgx.Tx, accountID int64, newBalance decimal.Decimal) error {
	s := r.s
	mtx := tx.(*memTx)
	s.mu.Lock()
	_, ok := s.accounts[accountID]
	s.mu.Unlock()
	if !ok {
		return domain.ErrAccountNotFound
	}
	mtx.balances[accountID] = newBalance
	return nil
}

func (r *memAccountRepo) Totals(context.Context) (int64, decimal.Decimal, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	total := decimal.Zero
	for _, a := range s.accounts {
		if a.IsActive {
			count++
			total = total.Add(a.Balance)
		}
	}
	return count, total, nil
}

// --- EntryRepository ---

type memEntryRepo struct {
	s *memStore
}

func (r *memEntryRepo) CreateTx(_ context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	s := r.s
	mtx := tx.(*memTx)
	s.mu.Lock()
	s.nextEntryID++
	e.ID = s.nextEntryID
	s.mu.Unlock()

	c := *e
	mtx.entries = append(mtx.entries, &c)
	return nil
}

func (r *memEntryRepo) ListByAccount(_ context.Context, accountID int64, f *domain.EntryFilter) ([]*domain.LedgerEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := 50
	if f != nil && f.Limit > 0 {
		limit = f.Limit
	}

	var out []*domain.LedgerEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if e.AccountID != accountID {
			continue
		}
		if f != nil {
			if f.EntryType != nil && e.EntryType != *f.EntryType {
				continue
			}
			if f.DateFrom != nil && e.CreatedAt.Before(*f.DateFrom) {
				continue
			}
			if f.DateTo != nil && e.CreatedAt.After(*f.DateTo) {
				continue
			}
			if f.MinAmount != nil && e.Amount.LessThan(*f.MinAmount) {
				continue
			}
			if f.MaxAmount != nil && e.Amount.GreaterThan(*f.MaxAmount) {
				continue
			}
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *memEntryRepo) CountSince(_ context.Context, since time.Time) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, e := range s.entries {
		if !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// --- TransferRepository ---

type memTransferRepo struct {
	s *memStore
}

func (r *memTransferRepo) CreatePending(_ context.Context, t *domain.Transfer) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTransferID++
	t.ID = s.nextTransferID
	t.Status = domain.TransferStatusPending
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.transfers[t.ID] = copyTransfer(t)
	return nil
}

func (r *memTransferRepo) MarkCompletedTx(_ context.Context, tx pgx.Tx, transferID, toAccountID int64, completedAt time.Time) error {
	s := r.s
	mtx := tx.(*memTx)

	s.mu.Lock()
	t, ok := s.transfers[transferID]
	s.mu.Unlock()
	if !ok || t.Status != domain.TransferStatusPending {
		return fmt.Errorf("%w: transfer %d is not pending", domain.ErrPersistenceFailure, transferID)
	}

	mtx.completed = &stagedCompletion{
		transferID:  transferID,
		toAccountID: toAccountID,
		completedAt: completedAt,
	}
	return nil
}

func (r *memTransferRepo) MarkFailed(_ context.Context, transferID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[transferID]
	if !ok || t.Status != domain.TransferStatusPending {
		return fmt.Errorf("%w: transfer %d is not pending", domain.ErrPersistenceFailure, transferID)
	}
	t.Status = domain.TransferStatusFailed
	return nil
}

func (r *memTransferRepo) GetByID(_ context.Context, transferID int64) (*domain.Transfer, error) {
	t := r.s.transferByID(transferID)
	if t == nil {
		return nil, fmt.Errorf("transfer not found")
	}
	return t, nil
}

func (r *memTransferRepo) ListByAccount(_ context.Context, accountID int64, limit int) ([]*domain.Transfer, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var out []*domain.Transfer
	for id := s.nextTransferID; id >= 1 && len(out) < limit; id-- {
		t, ok := s.transfers[id]
		if !ok {
			continue
		}
		if t.FromAccountID == accountID || (t.ToAccountID != nil && *t.ToAccountID == accountID) {
			out = append(out, copyTransfer(t))
		}
	}
	return out, nil
}

func (r *memTransferRepo) CountByStatus(_ context.Context, status domain.TransferStatus) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, t := range s.transfers {
		if t.Status == status {
			count++
		}
	}
	return count, nil
}

// --- MetricsRepository ---

type memMetrics struct {
	mu      sync.Mutex
	samples []*domain.SystemMetric
}

func (m *memMetrics) Record(_ context.Context, name string, value decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, &domain.SystemMetric{
		ID:         int64(len(m.samples) + 1),
		MetricName: name,
		Value:      value,
		RecordedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memMetrics) ListRecent(_ context.Context, limit int) ([]*domain.SystemMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.samples) {
		limit = len(m.samples)
	}
	out := make([]*domain.SystemMetric, 0, limit)
	for i := len(m.samples) - 1; i >= len(m.samples)-limit; i-- {
		out = append(out, m.samples[i])
	}
	return out, nil
}

// --- transaction ---

type stagedCompletion struct {
	transferID  int64
	toAccountID int64
	completedAt time.Time
}

// memTx stages writes until Commit. The embedded pgx.Tx is never called;
// the fake repositories type-assert back to *memTx instead.
type memTx struct {
	pgx.Tx
	store *memStore

	held      []*sync.Mutex
	balances  map[int64]decimal.Decimal
	entries   []*domain.LedgerEntry
	completed *stagedCompletion

	done bool
}

func (tx *memTx) Commit(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	s := tx.store

	s.mu.Lock()
	for id, b := range tx.balances {
		a := s.accounts[id]
		a.Balance = b
		a.UpdatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, tx.entries...)
	if tx.completed != nil {
		t := s.transfers[tx.completed.transferID]
		t.Status = domain.TransferStatusCompleted
		toID := tx.completed.toAccountID
		t.ToAccountID = &toID
		at := tx.completed.completedAt
		t.CompletedAt = &at
	}
	s.mu.Unlock()

	tx.finish()
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.finish()
	return nil
}

func (tx *memTx) finish() {
	tx.done = true
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
	tx.held = nil
}

// --- notifier ---

type memNotifier struct {
	mu     sync.Mutex
	events []*domain.OperationEvent
}

func (n *memNotifier) OperationCompleted(_ context.Context, ev *domain.OperationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := *ev
	n.events = append(n.events, &c)
}

func (n *memNotifier) published() []*domain.OperationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*domain.OperationEvent, len(n.events))
	copy(out, n.events)
	return out
}

// memResultCache is an in-process ResultCache over a map, round-tripping
// values through JSON like the redis implementation does.
type memResultCache struct {
	mu   sync.Mutex
	vals map[string][]byte
}

func newMemResultCache() *memResultCache {
	return &memResultCache{vals: make(map[string][]byte)}
}

func (c *memResultCache) get(_ context.Context, key string, out interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.vals[key]
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (c *memResultCache) put(_ context.Context, key string, val interface{}) {
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = data
}

// failingEntryRepo fails the nth CreateTx call and delegates otherwise.
type failingEntryRepo struct {
	*memEntryRepo
	mu     sync.Mutex
	failOn int
	calls  int
}

func (r *failingEntryRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()

	if n == r.failOn {
		return fmt.Errorf("%w: ledger entry write rejected", domain.ErrPersistenceFailure)
	}
	return r.memEntryRepo.CreateTx(ctx, tx, e)
}

// flakyAccountRepo fails LockForUpdate with a transient conflict a fixed
// number of times before delegating to the store.
type flakyAccountRepo struct {
	*memAccountRepo
	mu        sync.Mutex
	conflicts int
}

func (r *flakyAccountRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*domain.Account, error) {
	r.mu.Lock()
	remaining := r.conflicts
	if remaining > 0 {
		r.conflicts--
	}
	r.mu.Unlock()

	if remaining > 0 {
		return nil, domain.ErrConcurrencyConflict
	}
	return r.memAccountRepo.LockForUpdate(ctx, tx, accountID)
}
