//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
)

func TestInvoiceRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPostgresInvoiceRepo(testPool)

	t.Run("should create, pay and list invoices", func(t *testing.T) {
		cleanup(t)

		inv, _ := model.NewInvoice(5, d("499.90"), "card")
		if err := repo.Create(ctx, nil, inv); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.Create(ctx, nil, inv); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists on duplicate, got %v", err)
		}

		pending, _ := repo.ListByStatus(ctx, nil, model.InvoiceStatusPending, 10)
		if len(pending) != 1 || !pending[0].Amount.Equal(d("499.90")) {
			t.Fatalf("unexpected pending list %+v", pending)
		}

		_ = inv.MarkPaid(time.Now())
		if err := repo.Update(ctx, nil, inv); err != nil {
			t.Fatalf("update: %v", err)
		}
		found, err := repo.FindByID(ctx, nil, inv.ID)
		if err != nil || !found.IsPaid() || found.PaidAt == nil {
			t.Fatalf("expected a paid invoice, got %+v / %v", found, err)
		}

		if _, err := repo.FindByID(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPromoRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPostgresPromoRepo(testPool)

	t.Run("should upsert rules and record usage once", func(t *testing.T) {
		cleanup(t)

		rule, _ := model.NewPromoRule("save10", d("10"), d("100"), true, false)
		if err := repo.Upsert(ctx, nil, rule); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		rule.Percent = d("12.5")
		if err := repo.Upsert(ctx, nil, rule); err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		found, err := repo.FindByCode(ctx, nil, "SAVE10")
		if err != nil || !found.Percent.Equal(d("12.5")) {
			t.Fatalf("expected updated percent, got %+v / %v", found, err)
		}

		created, err := repo.MarkUsed(ctx, nil, 1, "SAVE10")
		if err != nil || !created {
			t.Fatalf("first mark: %v %v", created, err)
		}
		created, _ = repo.MarkUsed(ctx, nil, 1, "SAVE10")
		if created {
			t.Error("expected the second mark to be a no-op")
		}
		if used, _ := repo.IsUsed(ctx, nil, 1, "SAVE10"); !used {
			t.Error("expected usage to be recorded")
		}
		if used, _ := repo.IsUsed(ctx, nil, 2, "SAVE10"); used {
			t.Error("expected another user to be unaffected")
		}
	})
}

func TestOrderRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPostgresOrderRepo(testPool)

	t.Run("should append and list in order", func(t *testing.T) {
		cleanup(t)

		up := "9001,9002"
		committed := &model.Order{
			ID: model.NewOrderID(), UserID: 1, ItemID: "combo", Quantity: 1, Link: "https://t.me/x",
			Subtotal: d("150"), Charged: d("150"), Status: model.OrderStatusCommitted, UpstreamOrderID: &up,
			Placements: []model.Placement{{ServiceID: "101", Quantity: 500, UpstreamOrderID: "9001"}, {ServiceID: "202", Quantity: 1000, UpstreamOrderID: "9002"}},
			CreatedAt:  time.Now().UTC(),
		}
		rolled := &model.Order{
			ID: model.NewOrderID(), UserID: 1, ItemID: "tg_subs", Quantity: 100, Link: "https://t.me/x",
			Subtotal: d("5"), Charged: d("5"), Status: model.OrderStatusRolledBack,
			Placements: []model.Placement{{ServiceID: "101", Quantity: 100, Error: "timeout"}},
			CreatedAt:  time.Now().UTC(),
		}
		for _, o := range []*model.Order{committed, rolled} {
			if err := repo.Append(ctx, nil, o); err != nil {
				t.Fatalf("append %s: %v", o.ID, err)
			}
		}
		if err := repo.Append(ctx, nil, committed); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		latest, _ := repo.ListByUser(ctx, nil, 1, 1)
		if len(latest) != 1 || latest[0].ID != rolled.ID || latest[0].UpstreamOrderID != nil {
			t.Fatalf("expected the rolled back order first, got %+v", latest)
		}
		all, _ := repo.ListAll(ctx, nil)
		if len(all) != 2 || all[0].ID != committed.ID {
			t.Fatalf("expected append order, got %+v", all)
		}
		if len(all[0].Placements) != 2 || all[0].Placements[1].UpstreamOrderID != "9002" {
			t.Errorf("expected placements to round trip, got %+v", all[0].Placements)
		}
	})
}

func TestServiceMapRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPostgresServiceMapRepo(testPool)
	cleanup(t)

	if err := repo.Set(ctx, "tg_subs", "101"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.Set(ctx, "tg_subs", "102"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if sid, _ := repo.Get(ctx, "tg_subs"); sid != "102" {
		t.Errorf("expected 102, got %q", sid)
	}
	if err := repo.Delete(ctx, "tg_subs"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "tg_subs"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	all, _ := repo.All(ctx)
	if len(all) != 0 {
		t.Errorf("expected an empty map, got %v", all)
	}
}
