//go:build !integration

package usecase_test

import (
	"errors"
	"testing"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/usecase"

	"github.com/shopspring/decimal"
)

func TestComputeCost(t *testing.T) {
	tests := []struct {
		name string
		base string
		unit model.UnitKind
		mult string
		qty  int64
		want string
	}{
		{name: "per_1000", base: "50", unit: model.UnitPer1000, mult: "2.0", qty: 500, want: "50"},
		{name: "per_100", base: "3", unit: model.UnitPer100, mult: "2", qty: 250, want: "15"},
		{name: "package ignores quantity", base: "300", unit: model.UnitPackage, mult: "1.0", qty: 77, want: "300"},
		{name: "fractional result is exact", base: "0.8", unit: model.UnitPer1000, mult: "2", qty: 1234, want: "1.9744"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := usecase.ComputeCost(dec(tt.base), tt.unit, dec(tt.mult), tt.qty)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("should reject bad inputs", func(t *testing.T) {
		if _, err := usecase.ComputeCost(dec("1"), model.UnitPer1000, dec("2"), 0); !errors.Is(err, domain.ErrQuantityOutOfRange) {
			t.Errorf("expected ErrQuantityOutOfRange, got %v", err)
		}
		if _, err := usecase.ComputeCost(dec("-1"), model.UnitPackage, dec("2"), 1); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
		if _, err := usecase.ComputeCost(dec("1"), "per_10", dec("2"), 1); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPricingEngine_Quote(t *testing.T) {
	pkg := &model.CatalogItem{ID: "p", Title: "Pack", BasePrice: dec("150"), Unit: model.UnitPackage}
	views := &model.CatalogItem{ID: "v", Title: "Views", BasePrice: dec("0.8"), Unit: model.UnitPer1000}

	t.Run("should apply a ten percent discount to 150", func(t *testing.T) {
		q, err := usecase.NewPricingEngine(decimal.NewFromInt(1)).Quote(pkg, 1, "SAVE10", dec("10"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !q.Charge.Equal(dec("135")) || !q.Discount.Equal(dec("15")) || q.PromoCode != "SAVE10" {
			t.Errorf("unexpected quote %+v", q)
		}
	})

	t.Run("should round half up to cents", func(t *testing.T) {
		// 0.8 * 2 * 1234 / 1000 = 1.9744
		q, _ := usecase.NewPricingEngine(dec("2")).Quote(views, 1234, "", decimal.Zero)
		if q.Charge.StringFixed(2) != "1.97" {
			t.Errorf("expected 1.97, got %s", q.Charge.StringFixed(2))
		}
		// 0.01 * 500 / 1000 = 0.005
		edge := &model.CatalogItem{ID: "e", Title: "Edge", BasePrice: dec("0.01"), Unit: model.UnitPer1000}
		q, _ = usecase.NewPricingEngine(decimal.NewFromInt(1)).Quote(edge, 500, "", decimal.Zero)
		if q.Charge.StringFixed(2) != "0.01" {
			t.Errorf("expected 0.005 to round up to 0.01, got %s", q.Charge.StringFixed(2))
		}
	})

	t.Run("should leave the charge equal to the subtotal without a promo", func(t *testing.T) {
		q, _ := usecase.NewPricingEngine(dec("2")).Quote(pkg, 1, "", decimal.Zero)
		if !q.Charge.Equal(q.Subtotal) || !q.Discount.IsZero() || q.PromoCode != "" {
			t.Errorf("unexpected quote %+v", q)
		}
		if !q.Charge.Equal(dec("300")) {
			t.Errorf("expected 300, got %s", q.Charge)
		}
	})

	t.Run("should fall back to a multiplier of one", func(t *testing.T) {
		p := usecase.NewPricingEngine(decimal.Zero)
		if !p.Multiplier().Equal(decimal.NewFromInt(1)) {
			t.Errorf("expected multiplier 1, got %s", p.Multiplier())
		}
		if !p.DisplayPrice(views).Equal(dec("0.80")) {
			t.Errorf("expected display price 0.80, got %s", p.DisplayPrice(views))
		}
	})
}
