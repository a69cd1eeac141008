package model

import "github.com/shopspring/decimal"

// ProviderService is an entry of the upstream panel's service list.
type ProviderService struct {
	ID          string
	Name        string
	Category    string
	RatePer1000 decimal.Decimal
	Min         int64
	Max         int64 // zero means unbounded
}

// Allows reports whether quantity lies within the declared bounds.
func (s *ProviderService) Allows(quantity int64) bool {
	if quantity <= 0 || quantity < s.Min {
		return false
	}
	return s.Max <= 0 || quantity <= s.Max
}
