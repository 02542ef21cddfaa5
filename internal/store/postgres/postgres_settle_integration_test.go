package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"kopkasir/backend/internal/domain"
	"kopkasir/backend/internal/store"
)

func TestSettleOrdersAppliesCreditAndShares(t *testing.T) {
	databaseURL := os.Getenv("KOPKASIR_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KOPKASIR_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	goodID := fmt.Sprintf("good-settle-it-%d", stamp)
	memberID := fmt.Sprintf("mbr-settle-it-%d", stamp)
	orderID := fmt.Sprintf("ord-settle-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM shu_shares WHERE order_id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, memberID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM goods WHERE id = $1`, goodID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO goods (id, name, stock_qty, cost_cents, price_cents, active, created_at, updated_at)
		VALUES ($1, 'Beras Settle IT', 50, 30000, 40000, true, now(), now())
	`, goodID); err != nil {
		t.Fatalf("insert good: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, username, name, balance_cents, debt_cents, shu_accrued_cents, created_at)
		VALUES ($1, $1, 'Anggota Settle IT', 100000, 0, 0, now())
	`, memberID); err != nil {
		t.Fatalf("insert member: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, member_id, payment_method, status, total_cents, margin_cents, settled_by, created_at, settled_at)
		VALUES ($1, $2, 'credit', 'pending', 80000, 20000, NULL, now(), NULL)
	`, orderID, memberID); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO order_lines (order_id, good_id, qty, unit_price_cents, subtotal_cents, margin_cents)
		VALUES ($1, $2, 2, 40000, 80000, 20000)
	`, orderID, goodID); err != nil {
		t.Fatalf("insert order line: %v", err)
	}

	at := time.Now().UTC()
	settlements, err := s.SettleOrders(ctx, []string{orderID}, "kasir-it", at.Year(), at)
	if err != nil {
		t.Fatalf("settle orders: %v", err)
	}
	if len(settlements) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(settlements))
	}
	if settlements[0].SixtyCents != 12000 || settlements[0].ThirtyCents != 6000 || settlements[0].TenCents != 2000 {
		t.Fatalf("unexpected split: %+v", settlements[0])
	}

	var balanceCents, debtCents, accruedCents int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT balance_cents, debt_cents, shu_accrued_cents
		FROM members
		WHERE id = $1
	`, memberID).Scan(&balanceCents, &debtCents, &accruedCents); err != nil {
		t.Fatalf("query member: %v", err)
	}
	if balanceCents != 20000 {
		t.Fatalf("expected balance 20000 after credit sale, got %d", balanceCents)
	}
	if debtCents != 80000 {
		t.Fatalf("expected debt 80000 after credit sale, got %d", debtCents)
	}
	if accruedCents != 12000 {
		t.Fatalf("expected accrued 12000 after settlement, got %d", accruedCents)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1
	`, orderID).Scan(&status); err != nil {
		t.Fatalf("query order status: %v", err)
	}
	if status != "completed" {
		t.Fatalf("expected order status completed, got %s", status)
	}

	var stockQty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock_qty FROM goods WHERE id = $1
	`, goodID).Scan(&stockQty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stockQty != 48 {
		t.Fatalf("expected stock 48 after settling the pending cart, got %d", stockQty)
	}

	if _, err := s.SettleOrders(ctx, []string{orderID}, "kasir-it", at.Year(), at); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on repeated settlement, got %v", err)
	}
}

func TestRingUpSaleRejectsInsufficientStock(t *testing.T) {
	databaseURL := os.Getenv("KOPKASIR_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KOPKASIR_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	goodID := fmt.Sprintf("good-stock-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM goods WHERE id = $1`, goodID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO goods (id, name, stock_qty, cost_cents, price_cents, active, created_at, updated_at)
		VALUES ($1, 'Gula Stock IT', 3, 10000, 14000, true, now(), now())
	`, goodID); err != nil {
		t.Fatalf("insert good: %v", err)
	}

	at := time.Now().UTC()
	_, err = s.RingUpSale(ctx, domain.Order{
		PaymentMethod: domain.PaymentCash,
		SettledBy:     "kasir-it",
		Lines:         []domain.OrderLine{{GoodID: goodID, Qty: 5}},
	}, at.Year(), at)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock_qty FROM goods WHERE id = $1
	`, goodID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 3 {
		t.Fatalf("expected stock 3 untouched after rollback, got %d", qty)
	}
}
