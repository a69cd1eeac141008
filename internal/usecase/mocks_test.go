//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/adapter"
	"telegram-smm-shop/internal/domain/ports/repository"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================
// Repositories
// =============================

// ---- Mock LedgerRepository ----

type MockLedgerRepo struct {
	mu       sync.Mutex
	balances map[int64]decimal.Decimal
	refs     map[string]bool

	GetFunc       func(ctx context.Context, tx repository.Tx, userID int64) (decimal.Decimal, error)
	SetFunc       func(ctx context.Context, tx repository.Tx, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	AddFunc       func(ctx context.Context, tx repository.Tx, userID int64, delta decimal.Decimal) (decimal.Decimal, error)
	ApplyOnceFunc func(ctx context.Context, tx repository.Tx, userID int64, delta decimal.Decimal, ref string) (decimal.Decimal, bool, error)
}

func NewMockLedgerRepo() *MockLedgerRepo {
	return &MockLedgerRepo{balances: map[int64]decimal.Decimal{}, refs: map[string]bool{}}
}

var _ repository.LedgerRepository = (*MockLedgerRepo)(nil)

func (m *MockLedgerRepo) Get(ctx context.Context, tx repository.Tx, userID int64) (decimal.Decimal, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *MockLedgerRepo) Set(ctx context.Context, tx repository.Tx, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, tx, userID, amount)
	}
	if amount.IsNegative() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = amount
	return amount, nil
}

func (m *MockLedgerRepo) Add(ctx context.Context, tx repository.Tx, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, tx, userID, delta)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(userID, delta)
}

func (m *MockLedgerRepo) ApplyOnce(ctx context.Context, tx repository.Tx, userID int64, delta decimal.Decimal, ref string) (decimal.Decimal, bool, error) {
	if m.ApplyOnceFunc != nil {
		return m.ApplyOnceFunc(ctx, tx, userID, delta, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs[ref] {
		return m.balances[userID], false, nil
	}
	bal, err := m.addLocked(userID, delta)
	if err != nil {
		return bal, false, err
	}
	m.refs[ref] = true
	return bal, true, nil
}

func (m *MockLedgerRepo) HasApplied(ctx context.Context, tx repository.Tx, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[ref], nil
}

func (m *MockLedgerRepo) addLocked(userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	cur := m.balances[userID]
	next := cur.Add(delta)
	if next.IsNegative() {
		return cur, &domain.InsufficientFundsError{Balance: cur, Required: delta.Neg()}
	}
	m.balances[userID] = next
	return next, nil
}

// Balance is a test shortcut that bypasses the Func overrides.
func (m *MockLedgerRepo) Balance(userID int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *MockLedgerRepo) MarkApplied(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[ref] = true
}

// ---- Mock InvoiceRepository ----

type MockInvoiceRepo struct {
	mu    sync.Mutex
	store map[string]*model.Invoice

	UpdateFunc func(ctx context.Context, tx repository.Tx, inv *model.Invoice) error
}

func NewMockInvoiceRepo() *MockInvoiceRepo {
	return &MockInvoiceRepo{store: map[string]*model.Invoice{}}
}

var _ repository.InvoiceRepository = (*MockInvoiceRepo)(nil)

func (m *MockInvoiceRepo) Create(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[inv.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *inv
	m.store[inv.ID] = &cp
	return nil
}

func (m *MockInvoiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MockInvoiceRepo) Update(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, inv)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[inv.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *inv
	m.store[inv.ID] = &cp
	return nil
}

func (m *MockInvoiceRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.InvoiceStatus, limit int) ([]*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Invoice
	for _, inv := range m.store {
		if inv.Status == status {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Mock PromoRepository ----

type MockPromoRepo struct {
	mu    sync.Mutex
	rules map[string]*model.PromoRule
	used  map[string]bool

	FindByCodeFunc func(ctx context.Context, tx repository.Tx, code string) (*model.PromoRule, error)
	MarkUsedFunc   func(ctx context.Context, tx repository.Tx, userID int64, code string) (bool, error)
}

func NewMockPromoRepo() *MockPromoRepo {
	return &MockPromoRepo{rules: map[string]*model.PromoRule{}, used: map[string]bool{}}
}

var _ repository.PromoRepository = (*MockPromoRepo)(nil)

func usedKey(userID int64, code string) string { return fmt.Sprintf("%d|%s", userID, code) }

func (m *MockPromoRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoRule, error) {
	if m.FindByCodeFunc != nil {
		return m.FindByCodeFunc(ctx, tx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockPromoRepo) Upsert(ctx context.Context, tx repository.Tx, rule *model.PromoRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rule
	m.rules[rule.Code] = &cp
	return nil
}

func (m *MockPromoRepo) List(ctx context.Context, tx repository.Tx) ([]*model.PromoRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PromoRule
	for _, r := range m.rules {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockPromoRepo) IsUsed(ctx context.Context, tx repository.Tx, userID int64, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[usedKey(userID, code)], nil
}

func (m *MockPromoRepo) MarkUsed(ctx context.Context, tx repository.Tx, userID int64, code string) (bool, error) {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, tx, userID, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := usedKey(userID, code)
	if m.used[k] {
		return false, nil
	}
	m.used[k] = true
	return true, nil
}

// Put stores a rule as-is, skipping validation, to model any persisted state.
func (m *MockPromoRepo) Put(rule model.PromoRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.Code] = &rule
}

// ---- Mock OrderRepository ----

type MockOrderRepo struct {
	mu     sync.Mutex
	orders []*model.Order

	AppendFunc func(ctx context.Context, tx repository.Tx, o *model.Order) error
}

func NewMockOrderRepo() *MockOrderRepo { return &MockOrderRepo{} }

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func (m *MockOrderRepo) Append(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, tx, o)
	}
	if err := o.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders = append(m.orders, &cp)
	return nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64, limit int) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for i := len(m.orders) - 1; i >= 0; i-- {
		if m.orders[i].UserID == userID {
			cp := *m.orders[i]
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockOrderRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Order, 0, len(m.orders))
	for _, o := range m.orders {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockOrderRepo) All() []*model.Order {
	out, _ := m.ListAll(context.Background(), repository.NoTX)
	return out
}

// ---- Mock ServiceMapRepository ----

type MockServiceMapRepo struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMockServiceMapRepo(initial map[string]string) *MockServiceMapRepo {
	m := &MockServiceMapRepo{m: map[string]string{}}
	for k, v := range initial {
		m.m[k] = v
	}
	return m
}

var _ repository.ServiceMapRepository = (*MockServiceMapRepo)(nil)

func (s *MockServiceMapRepo) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (s *MockServiceMapRepo) Set(ctx context.Context, key, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = serviceID
	return nil
}

func (s *MockServiceMapRepo) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MockServiceMapRepo) All(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out, nil
}

// ---- Mock CatalogSource ----

type MockCatalogSource struct {
	Catalog *model.Catalog
}

var _ repository.CatalogSource = (*MockCatalogSource)(nil)

func (c *MockCatalogSource) Load(ctx context.Context) (*model.Catalog, error) {
	if c.Catalog == nil {
		return nil, errors.New("catalog not loaded")
	}
	return c.Catalog, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- Mock ProviderClient ----

type placeCall struct {
	ServiceID string
	Link      string
	Quantity  int64
}

type MockProvider struct {
	mu       sync.Mutex
	Services []model.ProviderService
	Calls    []placeCall
	nextID   int

	ListServicesFunc func(ctx context.Context) ([]model.ProviderService, error)
	PlaceOrderFunc   func(ctx context.Context, serviceID, link string, quantity int64) (string, error)
}

var _ adapter.ProviderClient = (*MockProvider)(nil)

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) ListServices(ctx context.Context) ([]model.ProviderService, error) {
	if p.ListServicesFunc != nil {
		return p.ListServicesFunc(ctx)
	}
	return p.Services, nil
}

func (p *MockProvider) PlaceOrder(ctx context.Context, serviceID, link string, quantity int64) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, placeCall{ServiceID: serviceID, Link: link, Quantity: quantity})
	p.nextID++
	id := fmt.Sprintf("%d", 9000+p.nextID)
	p.mu.Unlock()
	if p.PlaceOrderFunc != nil {
		return p.PlaceOrderFunc(ctx, serviceID, link, quantity)
	}
	return id, nil
}

func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// ---- Mock Notifier ----

type MockNotifier struct {
	mu         sync.Mutex
	Created    []*model.Invoice
	Paid       []*model.Invoice
	Committed  []*model.Order
	RolledBack []*model.Order
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (n *MockNotifier) InvoiceCreated(ctx context.Context, inv *model.Invoice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Created = append(n.Created, inv)
}

func (n *MockNotifier) InvoicePaid(ctx context.Context, inv *model.Invoice, balance decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Paid = append(n.Paid, inv)
}

func (n *MockNotifier) OrderCommitted(ctx context.Context, o *model.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Committed = append(n.Committed, o)
}

func (n *MockNotifier) OrderRolledBack(ctx context.Context, o *model.Order, cause error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.RolledBack = append(n.RolledBack, o)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

var _ adapter.Locker = (*MockLocker)(nil)

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

func (l *MockLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
