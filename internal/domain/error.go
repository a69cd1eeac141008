package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Money and ledger
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPersistence       = errors.New("persistence failure")

	// Quoting
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	ErrUnmappedService    = errors.New("catalog item has no provider service")
	ErrPromoRejected      = errors.New("promo code rejected")

	// Provider
	ErrProviderFailure = errors.New("provider failure")

	// Lookups and idempotency
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrLockNotAcquired  = errors.New("lock not acquired")
)

// InsufficientFundsError carries the numbers needed to tell the user how much to top up.
type InsufficientFundsError struct {
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, required %s", e.Balance.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall is the amount missing to cover Required.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	s := e.Required.Sub(e.Balance)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

// ProviderError reports a failed upstream placement. Restored is true once the
// compensating credit has been persisted.
type ProviderError struct {
	Op       string
	Err      error
	Restored bool
}

func (e *ProviderError) Error() string {
	msg := "provider " + e.Op + " failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Restored {
		msg += " (balance restored)"
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProviderFailure}
	}
	return []error{ErrProviderFailure, e.Err}
}

// PromoRejectReason explains why a promo code was not accepted.
type PromoRejectReason string

const (
	PromoReasonNone         PromoRejectReason = ""
	PromoReasonNotFound     PromoRejectReason = "not_found"
	PromoReasonBelowMinimum PromoRejectReason = "below_minimum"
	PromoReasonAlreadyUsed  PromoRejectReason = "already_used"
	PromoReasonOutOfRange   PromoRejectReason = "percent_out_of_range"
	PromoReasonNotEligible  PromoRejectReason = "not_eligible"
)

// PromoError wraps ErrPromoRejected together with the taxonomy error matching the reason.
type PromoError struct {
	Code   string
	Reason PromoRejectReason
}

func (e *PromoError) Error() string {
	return fmt.Sprintf("promo %s rejected: %s", e.Code, e.Reason)
}

func (e *PromoError) Unwrap() []error {
	switch e.Reason {
	case PromoReasonNotFound:
		return []error{ErrPromoRejected, ErrNotFound}
	case PromoReasonAlreadyUsed:
		return []error{ErrPromoRejected, ErrAlreadyProcessed}
	case PromoReasonOutOfRange:
		return []error{ErrPromoRejected, ErrInvalidArgument}
	default:
		return []error{ErrPromoRejected}
	}
}
