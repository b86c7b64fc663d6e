package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	attempt := domain.NewTradeAttempt("KRW-BTC", "upbit", "buy", "buy", "Kelly", "1h")
	if err := s.Insert(ctx, attempt); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	qty := decimal.NewFromFloat(0.005)
	attempt.Transition(domain.StatusFilled)
	attempt.Quantity = &qty
	attempt.OrderID = "order-1"
	if err := s.Update(ctx, attempt); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rows, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	got := rows[0]
	if got.ID != attempt.ID || got.Status != domain.StatusFilled || got.OrderID != "order-1" {
		t.Fatalf("row = %+v", got)
	}
	if got.Quantity == nil || !got.Quantity.Equal(qty) {
		t.Fatalf("quantity = %v, want %s", got.Quantity, qty)
	}
}

func TestStoreRecentOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		a := domain.NewTradeAttempt("KRW-BTC", "upbit", "buy", "buy", "Kelly", "1h")
		if err := s.Insert(ctx, a); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	rows, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].CreatedAt.After(rows[i-1].CreatedAt) {
			t.Fatalf("rows not ordered newest first")
		}
	}

	// Zero limit falls back to the default page size.
	rows, err = s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
}
