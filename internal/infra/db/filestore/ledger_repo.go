package filestore

import (
	"context"
	"strings"
	"time"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/repository"

	"github.com/shopspring/decimal"
)

// Compile-time check
var _ repository.LedgerRepository = (*LedgerRepo)(nil)

type ledgerRef struct {
	UserID    int64           `json:"user_id"`
	Delta     decimal.Decimal `json:"delta"`
	AppliedAt time.Time       `json:"applied_at"`
}

// ledgerDoc holds balances and applied references together so that a credit and
// its reference become durable in the same rename.
type ledgerDoc struct {
	Balances map[int64]decimal.Decimal `json:"balances"`
	Refs     map[string]ledgerRef      `json:"applied_refs"`
}

type LedgerRepo struct {
	file *jsonFile
	doc  ledgerDoc
	now  func() time.Time
}

// NewLedgerRepo loads path (a missing file is an empty ledger). Negative balances
// or unowned references fail the load.
func NewLedgerRepo(path string) (*LedgerRepo, error) {
	r := &LedgerRepo{
		file: newJSONFile(path),
		doc:  ledgerDoc{Balances: map[int64]decimal.Decimal{}, Refs: map[string]ledgerRef{}},
		now:  time.Now,
	}
	if _, err := r.file.load(&r.doc); err != nil {
		return nil, err
	}
	if r.doc.Balances == nil {
		r.doc.Balances = map[int64]decimal.Decimal{}
	}
	if r.doc.Refs == nil {
		r.doc.Refs = map[string]ledgerRef{}
	}
	for uid, amt := range r.doc.Balances {
		b := model.Balance{UserID: uid, Amount: amt}
		if err := b.Validate(); err != nil {
			return nil, corrupt(path, "balance", err)
		}
	}
	for ref, e := range r.doc.Refs {
		if strings.TrimSpace(ref) == "" || e.UserID == 0 {
			return nil, corrupt(path, "ledger reference", domain.ErrInvalidArgument)
		}
	}
	return r, nil
}

func (r *LedgerRepo) Get(ctx context.Context, _ repository.Tx, userID int64) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	return r.doc.Balances[userID], nil
}

func (r *LedgerRepo) Set(ctx context.Context, _ repository.Tx, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if userID == 0 {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	if amount.IsNegative() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	r.file.mu.Lock()
	defer r.file.mu.Unlock()

	prev, had := r.doc.Balances[userID]
	r.doc.Balances[userID] = amount
	if err := r.file.save(&r.doc); err != nil {
		r.restoreBalance(userID, prev, had)
		return decimal.Zero, err
	}
	return amount, nil
}

func (r *LedgerRepo) Add(ctx context.Context, _ repository.Tx, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	bal, _, err := r.apply(ctx, userID, delta, "")
	return bal, err
}

func (r *LedgerRepo) ApplyOnce(ctx context.Context, _ repository.Tx, userID int64, delta decimal.Decimal, ref string) (decimal.Decimal, bool, error) {
	if strings.TrimSpace(ref) == "" {
		return decimal.Zero, false, domain.ErrInvalidArgument
	}
	return r.apply(ctx, userID, delta, ref)
}

func (r *LedgerRepo) HasApplied(ctx context.Context, _ repository.Tx, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	_, ok := r.doc.Refs[ref]
	return ok, nil
}

// apply adds delta to the balance of userID and, when ref is set, records ref in
// the same write. The in-memory state is restored when the write fails.
func (r *LedgerRepo) apply(ctx context.Context, userID int64, delta decimal.Decimal, ref string) (decimal.Decimal, bool, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, false, err
	}
	if userID == 0 {
		return decimal.Zero, false, domain.ErrInvalidArgument
	}
	r.file.mu.Lock()
	defer r.file.mu.Unlock()

	prev, had := r.doc.Balances[userID]
	if ref != "" {
		if _, done := r.doc.Refs[ref]; done {
			return prev, false, nil
		}
	}
	next := prev.Add(delta)
	if next.IsNegative() {
		return prev, false, &domain.InsufficientFundsError{Balance: prev, Required: delta.Neg()}
	}

	r.doc.Balances[userID] = next
	if ref != "" {
		r.doc.Refs[ref] = ledgerRef{UserID: userID, Delta: delta, AppliedAt: r.now().UTC()}
	}
	if err := r.file.save(&r.doc); err != nil {
		r.restoreBalance(userID, prev, had)
		if ref != "" {
			delete(r.doc.Refs, ref)
		}
		return prev, false, err
	}
	return next, true, nil
}

func (r *LedgerRepo) restoreBalance(userID int64, prev decimal.Decimal, had bool) {
	if had {
		r.doc.Balances[userID] = prev
		return
	}
	delete(r.doc.Balances, userID)
}

// Total sums every balance. Used by conservation checks.
func (r *LedgerRepo) Total() decimal.Decimal {
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	sum := decimal.Zero
	for _, v := range r.doc.Balances {
		sum = sum.Add(v)
	}
	return sum
}
