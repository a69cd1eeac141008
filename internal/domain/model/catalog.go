package model

import (
	"fmt"
	"strings"

	"telegram-smm-shop/internal/domain"

	"github.com/shopspring/decimal"
)

// UnitKind says how a base price scales with quantity.
type UnitKind string

const (
	UnitPer100  UnitKind = "per_100"
	UnitPer1000 UnitKind = "per_1000"
	UnitPackage UnitKind = "package" // flat price, quantity does not matter
)

func (u UnitKind) Valid() bool {
	switch u {
	case UnitPer100, UnitPer1000, UnitPackage:
		return true
	}
	return false
}

// BundleComponent is one upstream placement of a combo item.
type BundleComponent struct {
	ServiceID string
	Quantity  int64
}

// CatalogItem is a sellable entry. BasePrice is the supplier cost before the multiplier.
type CatalogItem struct {
	ID            string
	CategoryID    string
	CategoryTitle string
	Title         string
	BasePrice     decimal.Decimal
	Unit          UnitKind
	ServiceID     string // optional; resolved through the service map when empty
	Description   string

	// PackageQuantity is the fixed upstream quantity of a single-service package.
	PackageQuantity int64
	Components      []BundleComponent
}

func (it *CatalogItem) IsBundle() bool { return len(it.Components) > 0 }

// LegacyKey is the deprecated "{category}:::{item}" service-map key.
func (it *CatalogItem) LegacyKey() string {
	return LegacyServiceKey(it.CategoryTitle, it.Title)
}

func LegacyServiceKey(categoryTitle, itemTitle string) string {
	return categoryTitle + ":::" + itemTitle
}

func IsLegacyServiceKey(key string) bool { return strings.Contains(key, ":::") }

func (it *CatalogItem) Validate() error {
	if it.ID == "" || it.Title == "" {
		return fmt.Errorf("%w: item id and title are required", domain.ErrInvalidArgument)
	}
	if it.BasePrice.IsNegative() {
		return fmt.Errorf("%w: item %s has a negative price", domain.ErrInvalidAmount, it.ID)
	}
	if !it.Unit.Valid() {
		return fmt.Errorf("%w: item %s has unknown unit %q", domain.ErrInvalidArgument, it.ID, it.Unit)
	}
	if it.IsBundle() {
		if it.Unit != UnitPackage {
			return fmt.Errorf("%w: bundle %s must use unit %q", domain.ErrInvalidArgument, it.ID, UnitPackage)
		}
		for _, c := range it.Components {
			if c.ServiceID == "" || c.Quantity <= 0 {
				return fmt.Errorf("%w: bundle %s has an invalid component", domain.ErrInvalidArgument, it.ID)
			}
		}
	}
	return nil
}

type Category struct {
	ID    string
	Title string
	Unit  UnitKind
	Items []CatalogItem
}

// Catalog is the read-only document consumed by pricing and the bot.
type Catalog struct {
	Categories []Category
	Promos     []PromoRule
}

// Item finds an item by its stable id.
func (c *Catalog) Item(id string) (*CatalogItem, bool) {
	for ci := range c.Categories {
		for ii := range c.Categories[ci].Items {
			if c.Categories[ci].Items[ii].ID == id {
				return &c.Categories[ci].Items[ii], true
			}
		}
	}
	return nil, false
}

// Items returns every item in document order.
func (c *Catalog) Items() []CatalogItem {
	var out []CatalogItem
	for _, cat := range c.Categories {
		out = append(out, cat.Items...)
	}
	return out
}

func (c *Catalog) Validate() error {
	seen := make(map[string]struct{})
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("%w: category id is required", domain.ErrInvalidArgument)
		}
		for i := range cat.Items {
			it := &cat.Items[i]
			if err := it.Validate(); err != nil {
				return err
			}
			if _, dup := seen[it.ID]; dup {
				return fmt.Errorf("%w: duplicate item id %s", domain.ErrAlreadyExists, it.ID)
			}
			seen[it.ID] = struct{}{}
		}
	}
	for i := range c.Promos {
		if err := c.Promos[i].Validate(); err != nil {
			return fmt.Errorf("promo %q: %w", c.Promos[i].Code, err)
		}
	}
	return nil
}
