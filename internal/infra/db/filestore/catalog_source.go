package filestore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/repository"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Compile-time check
var _ repository.CatalogSource = (*CatalogFile)(nil)

type catalogYAML struct {
	Categories []categoryYAML `yaml:"categories"`
	Promos     []promoYAML    `yaml:"promos"`
}

type categoryYAML struct {
	ID    string     `yaml:"id"`
	Title string     `yaml:"title"`
	Unit  string     `yaml:"unit"`
	Items []itemYAML `yaml:"items"`
}

type itemYAML struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	Price       string          `yaml:"price"`
	Unit        string          `yaml:"unit"` // defaults to the category unit
	ServiceID   string          `yaml:"service_id"`
	Description string          `yaml:"description"`
	Quantity    int64           `yaml:"quantity"` // fixed quantity of a package
	Components  []componentYAML `yaml:"components"`
}

type componentYAML struct {
	ServiceID string `yaml:"service_id"`
	Quantity  int64  `yaml:"quantity"`
}

type promoYAML struct {
	Code       string `yaml:"code"`
	Percent    string `yaml:"percent"`
	MinTotal   string `yaml:"min_total"`
	Active     *bool  `yaml:"active"`
	Combinable bool   `yaml:"combinable"`
}

// CatalogFile serves the catalog YAML document and re-reads it when its
// modification time changes.
type CatalogFile struct {
	path string

	mu      sync.RWMutex
	catalog *model.Catalog
	modTime time.Time
}

// NewCatalogFile loads path eagerly so that a broken catalog fails startup.
func NewCatalogFile(path string) (*CatalogFile, error) {
	c := &CatalogFile{path: path}
	if _, err := c.Load(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CatalogFile) Load(ctx context.Context) (*model.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := os.Stat(c.path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}

	c.mu.RLock()
	cached, at := c.catalog, c.modTime
	c.mu.RUnlock()
	if cached != nil && st.ModTime().Equal(at) {
		return cached, nil
	}

	b, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	cat, err := ParseCatalog(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.path, err)
	}

	c.mu.Lock()
	c.catalog, c.modTime = cat, st.ModTime()
	c.mu.Unlock()
	return cat, nil
}

// ParseCatalog decodes and validates a catalog document.
func ParseCatalog(b []byte) (*model.Catalog, error) {
	var doc catalogYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	out := &model.Catalog{}
	for _, cy := range doc.Categories {
		cat := model.Category{ID: cy.ID, Title: cy.Title, Unit: model.UnitKind(cy.Unit)}
		for _, iy := range cy.Items {
			price, err := parseDecimal(iy.Price)
			if err != nil {
				return nil, fmt.Errorf("item %s price: %w", iy.ID, err)
			}
			unit := model.UnitKind(iy.Unit)
			if unit == "" {
				unit = cat.Unit
			}
			if unit == "" && len(iy.Components) > 0 {
				unit = model.UnitPackage
			}
			it := model.CatalogItem{
				ID:              iy.ID,
				CategoryID:      cy.ID,
				CategoryTitle:   cy.Title,
				Title:           iy.Title,
				BasePrice:       price,
				Unit:            unit,
				ServiceID:       strings.TrimSpace(iy.ServiceID),
				Description:     iy.Description,
				PackageQuantity: iy.Quantity,
			}
			for _, comp := range iy.Components {
				it.Components = append(it.Components, model.BundleComponent{ServiceID: comp.ServiceID, Quantity: comp.Quantity})
			}
			cat.Items = append(cat.Items, it)
		}
		out.Categories = append(out.Categories, cat)
	}

	for _, py := range doc.Promos {
		percent, err := parseDecimal(py.Percent)
		if err != nil {
			return nil, fmt.Errorf("promo %s percent: %w", py.Code, err)
		}
		minTotal := decimal.Zero
		if py.MinTotal != "" {
			if minTotal, err = parseDecimal(py.MinTotal); err != nil {
				return nil, fmt.Errorf("promo %s min_total: %w", py.Code, err)
			}
		}
		active := true
		if py.Active != nil {
			active = *py.Active
		}
		out.Promos = append(out.Promos, model.PromoRule{
			Code:       model.NormalizePromoCode(py.Code),
			Percent:    percent,
			MinTotal:   minTotal,
			Active:     active,
			Combinable: py.Combinable,
		})
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)
	}
	return d, nil
}
