package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kopkasir/backend/internal/domain"
	"kopkasir/backend/internal/shu"
	"kopkasir/backend/internal/store"
	"kopkasir/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListGoods(ctx context.Context) ([]domain.Good, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stock_qty, cost_cents, price_cents, active
		FROM goods
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goods := make([]domain.Good, 0, 128)
	for rows.Next() {
		var g domain.Good
		if err := rows.Scan(&g.ID, &g.Name, &g.StockQty, &g.CostCents, &g.PriceCents, &g.Active); err != nil {
			return nil, err
		}
		goods = append(goods, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return goods, nil
}

func (s *Store) CreateGood(ctx context.Context, good domain.Good) (*domain.Good, error) {
	if good.Name == "" || good.CostCents < 1 || good.PriceCents < 1 || good.StockQty < 0 {
		return nil, store.ErrInvalidArgument
	}
	if good.ID == "" {
		good.ID = xid.New("good")
	}
	good.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goods (id, name, stock_qty, cost_cents, price_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, good.ID, good.Name, good.StockQty, good.CostCents, good.PriceCents, good.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := good
	return &created, nil
}

func (s *Store) GetGoodByID(ctx context.Context, id string) (*domain.Good, error) {
	var good domain.Good
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, stock_qty, cost_cents, price_cents, active
		FROM goods
		WHERE id = $1
	`, id).Scan(&good.ID, &good.Name, &good.StockQty, &good.CostCents, &good.PriceCents, &good.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &good, nil
}

func (s *Store) UpdateGood(ctx context.Context, good domain.Good) (*domain.Good, error) {
	if good.ID == "" || good.Name == "" || good.CostCents < 1 || good.PriceCents < 1 || good.StockQty < 0 {
		return nil, store.ErrInvalidArgument
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE goods
		SET name = $2, stock_qty = $3, cost_cents = $4, price_cents = $5, active = $6, updated_at = now()
		WHERE id = $1
	`, good.ID, good.Name, good.StockQty, good.CostCents, good.PriceCents, good.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := good
	return &updated, nil
}

func (s *Store) CreateMember(ctx context.Context, member domain.Member) (*domain.Member, error) {
	if member.Username == "" || member.Name == "" {
		return nil, store.ErrInvalidArgument
	}
	if member.BalanceCents < 0 || member.DebtCents < 0 || member.ShuAccruedCents < 0 {
		return nil, store.ErrInvalidArgument
	}
	if member.ID == "" {
		member.ID = xid.New("mbr")
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, username, name, balance_cents, debt_cents, shu_accrued_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, member.ID, member.Username, member.Name, member.BalanceCents, member.DebtCents, member.ShuAccruedCents, member.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := member
	return &created, nil
}

func (s *Store) GetMemberByID(ctx context.Context, id string) (*domain.Member, error) {
	var member domain.Member
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, balance_cents, debt_cents, shu_accrued_cents, created_at
		FROM members
		WHERE id = $1
	`, id).Scan(&member.ID, &member.Username, &member.Name, &member.BalanceCents, &member.DebtCents, &member.ShuAccruedCents, &member.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	member.CreatedAt = member.CreatedAt.UTC()
	return &member, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, name, balance_cents, debt_cents, shu_accrued_cents, created_at
		FROM members
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.Member, 0, 64)
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Username, &m.Name, &m.BalanceCents, &m.DebtCents, &m.ShuAccruedCents, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Lines) == 0 {
		return nil, store.ErrInvalidArgument
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	total := int64(0)
	margin := int64(0)
	lines := make([]domain.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.GoodID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidArgument
		}
		var name string
		var costCents, priceCents int64
		err := tx.QueryRowContext(ctx, `
			SELECT name, cost_cents, price_cents
			FROM goods
			WHERE id = $1 AND active = true
		`, line.GoodID).Scan(&name, &costCents, &priceCents)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		subtotal := priceCents * int64(line.Qty)
		lineMargin := (priceCents - costCents) * int64(line.Qty)
		lines = append(lines, domain.OrderLine{
			GoodID:         line.GoodID,
			GoodName:       name,
			Qty:            line.Qty,
			UnitPriceCents: priceCents,
			SubtotalCents:  subtotal,
			MarginCents:    lineMargin,
		})
		total += subtotal
		margin += lineMargin
	}
	order.Lines = lines
	order.TotalCents = total
	order.MarginCents = margin

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, member_id, payment_method, status, total_cents, margin_cents, settled_by, created_at, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULL,$7,NULL)
	`, order.ID, nullIfEmpty(order.MemberID), order.PaymentMethod, order.Status, order.TotalCents, order.MarginCents, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range order.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, good_id, qty, unit_price_cents, subtotal_cents, margin_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, line.GoodID, line.Qty, line.UnitPriceCents, line.SubtotalCents, line.MarginCents)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := order
	return &created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	var memberID, settledBy sql.NullString
	var settledAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, payment_method, status, total_cents, margin_cents, settled_by, created_at, settled_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &memberID, &order.PaymentMethod, &order.Status, &order.TotalCents, &order.MarginCents, &settledBy, &order.CreatedAt, &settledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.MemberID = memberID.String
	order.SettledBy = settledBy.String
	order.CreatedAt = order.CreatedAt.UTC()
	if settledAt.Valid {
		at := settledAt.Time.UTC()
		order.SettledAt = &at
	}

	lines, err := s.orderLines(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

func (s *Store) orderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.good_id, g.name, l.qty, l.unit_price_cents, l.subtotal_cents, l.margin_cents
		FROM order_lines l
		JOIN goods g ON g.id = l.good_id
		WHERE l.order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0, 8)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.GoodID, &line.GoodName, &line.Qty, &line.UnitPriceCents, &line.SubtotalCents, &line.MarginCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListOrdersByStatus(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, payment_method, status, total_cents, margin_cents, settled_by, created_at, settled_at
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		var order domain.Order
		var memberID, settledBy sql.NullString
		var settledAt sql.NullTime
		if err := rows.Scan(&order.ID, &memberID, &order.PaymentMethod, &order.Status, &order.TotalCents, &order.MarginCents, &settledBy, &order.CreatedAt, &settledAt); err != nil {
			return nil, err
		}
		order.MemberID = memberID.String
		order.SettledBy = settledBy.String
		order.CreatedAt = order.CreatedAt.UTC()
		if settledAt.Valid {
			at := settledAt.Time.UTC()
			order.SettledAt = &at
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := s.orderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (s *Store) SettleOrders(ctx context.Context, orderIDs []string, cashier string, year int, at time.Time) ([]domain.OrderSettlement, error) {
	if len(orderIDs) == 0 || cashier == "" {
		return nil, store.ErrInvalidArgument
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	settlements := make([]domain.OrderSettlement, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		settlement, err := settleOrderTx(ctx, tx, orderID, cashier, year, at)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, settlement)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return settlements, nil
}

// settleOrderTx applies the ledger, profit-share and status mutations for one
// order inside an already-open transaction. Callers own commit/rollback.
func settleOrderTx(ctx context.Context, tx *sql.Tx, orderID string, cashier string, year int, at time.Time) (domain.OrderSettlement, error) {
	var memberID sql.NullString
	var paymentMethod, status string
	var totalCents, marginCents int64
	err := tx.QueryRowContext(ctx, `
		SELECT member_id, payment_method, status, total_cents, margin_cents
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&memberID, &paymentMethod, &status, &totalCents, &marginCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderSettlement{}, store.ErrNotFound
		}
		return domain.OrderSettlement{}, err
	}
	if status != domain.OrderStatusPending && status != domain.OrderStatusInProcess {
		return domain.OrderSettlement{}, store.ErrConflict
	}

	// Pending orders are member-submitted carts whose stock has not been taken
	// yet; in_process orders were rung up with stock already decremented.
	if status == domain.OrderStatusPending {
		if err := applyOrderStockTx(ctx, tx, orderID); err != nil {
			return domain.OrderSettlement{}, err
		}
	}

	if paymentMethod == domain.PaymentCredit {
		if !memberID.Valid || memberID.String == "" {
			return domain.OrderSettlement{}, store.ErrInvalidArgument
		}
		var balanceCents int64
		err := tx.QueryRowContext(ctx, `
			SELECT balance_cents FROM members WHERE id = $1 FOR UPDATE
		`, memberID.String).Scan(&balanceCents)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.OrderSettlement{}, store.ErrNotFound
			}
			return domain.OrderSettlement{}, err
		}
		if balanceCents < totalCents {
			return domain.OrderSettlement{}, store.ErrInsufficientBalance
		}
		if err := execExpectOne(ctx, tx, `
			UPDATE members
			SET balance_cents = balance_cents - $1, debt_cents = debt_cents + $1
			WHERE id = $2
		`, totalCents, memberID.String); err != nil {
			return domain.OrderSettlement{}, err
		}
	}

	split := shu.Compute(marginCents)
	if memberID.Valid && memberID.String != "" {
		res, err := tx.ExecContext(ctx, `
			UPDATE members
			SET shu_accrued_cents = shu_accrued_cents + $1
			WHERE id = $2
		`, split.SixtyCents, memberID.String)
		if err != nil {
			return domain.OrderSettlement{}, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return domain.OrderSettlement{}, err
		}
		if affected == 0 {
			return domain.OrderSettlement{}, store.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO shu_shares (id, member_id, order_id, year, sixty_cents, thirty_cents, ten_cents, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, xid.New("shu"), memberID.String, orderID, year, split.SixtyCents, split.ThirtyCents, split.TenCents, at)
		if err != nil {
			return domain.OrderSettlement{}, err
		}
	}

	// The status guard catches a concurrent finalization that slipped past
	// the FOR UPDATE read on another connection.
	if err := execExpectOne(ctx, tx, `
		UPDATE orders
		SET status = $2, settled_by = $3, settled_at = $4
		WHERE id = $1 AND status IN ($5, $6)
	`, orderID, domain.OrderStatusCompleted, cashier, at, domain.OrderStatusPending, domain.OrderStatusInProcess); err != nil {
		return domain.OrderSettlement{}, err
	}

	return domain.OrderSettlement{
		OrderID:     orderID,
		MemberID:    memberID.String,
		Status:      domain.OrderStatusCompleted,
		TotalCents:  totalCents,
		MarginCents: marginCents,
		SixtyCents:  split.SixtyCents,
		ThirtyCents: split.ThirtyCents,
		TenCents:    split.TenCents,
		SettledBy:   cashier,
		SettledAt:   at.Format(time.RFC3339),
	}, nil
}

// applyOrderStockTx decrements stock for every line of a pending order. The
// conditional update doubles as the row lock; zero rows affected means the
// remaining stock cannot cover the line.
func applyOrderStockTx(ctx context.Context, tx *sql.Tx, orderID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT good_id, qty
		FROM order_lines
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type stockLine struct {
		goodID string
		qty    int
	}
	lines := make([]stockLine, 0, 8)
	for rows.Next() {
		var line stockLine
		if err := rows.Scan(&line.goodID, &line.qty); err != nil {
			return err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, line := range lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE goods
			SET stock_qty = stock_qty - $1, updated_at = now()
			WHERE id = $2 AND stock_qty >= $1
		`, line.qty, line.goodID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrInsufficientStock
		}
	}
	return nil
}

func (s *Store) RingUpSale(ctx context.Context, order domain.Order, year int, at time.Time) (*domain.OrderSettlement, error) {
	if len(order.Lines) == 0 || order.SettledBy == "" {
		return nil, store.ErrInvalidArgument
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	total := int64(0)
	margin := int64(0)
	lines := make([]domain.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.GoodID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidArgument
		}
		var name string
		var costCents, priceCents int64
		err := tx.QueryRowContext(ctx, `
			SELECT name, cost_cents, price_cents
			FROM goods
			WHERE id = $1 AND active = true
			FOR UPDATE
		`, line.GoodID).Scan(&name, &costCents, &priceCents)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}

		// Conditional decrement: zero rows affected means the remaining
		// stock cannot cover the line, and the whole sale rolls back.
		res, err := tx.ExecContext(ctx, `
			UPDATE goods
			SET stock_qty = stock_qty - $1, updated_at = now()
			WHERE id = $2 AND stock_qty >= $1
		`, line.Qty, line.GoodID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrInsufficientStock
		}

		subtotal := priceCents * int64(line.Qty)
		lineMargin := (priceCents - costCents) * int64(line.Qty)
		lines = append(lines, domain.OrderLine{
			GoodID:         line.GoodID,
			GoodName:       name,
			Qty:            line.Qty,
			UnitPriceCents: priceCents,
			SubtotalCents:  subtotal,
			MarginCents:    lineMargin,
		})
		total += subtotal
		margin += lineMargin
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, member_id, payment_method, status, total_cents, margin_cents, settled_by, created_at, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULL,$7,NULL)
	`, order.ID, nullIfEmpty(order.MemberID), order.PaymentMethod, domain.OrderStatusInProcess, total, margin, at)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, good_id, qty, unit_price_cents, subtotal_cents, margin_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, line.GoodID, line.Qty, line.UnitPriceCents, line.SubtotalCents, line.MarginCents)
		if err != nil {
			return nil, err
		}
	}

	settlement, err := settleOrderTx(ctx, tx, order.ID, order.SettledBy, year, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (s *Store) CreateDebtPayment(ctx context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error) {
	if payment.MemberID == "" || payment.AmountCents < 1 {
		return nil, store.ErrInvalidArgument
	}
	if payment.ID == "" {
		payment.ID = xid.New("dp")
	}
	if payment.Status == "" {
		payment.Status = domain.ApprovalPending
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	// Existence check only; the amount is validated against current debt at
	// approval time, not at request time.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE id = $1)`, payment.MemberID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO debt_payments (id, member_id, amount_cents, status, resolved_by, created_at, resolved_at)
		VALUES ($1,$2,$3,$4,NULL,$5,NULL)
	`, payment.ID, payment.MemberID, payment.AmountCents, payment.Status, payment.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := payment
	return &created, nil
}

func (s *Store) ListDebtPayments(ctx context.Context, status string, memberID string, limit int) ([]domain.DebtPayment, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, amount_cents, status, resolved_by, created_at, resolved_at
		FROM debt_payments
		WHERE ($1 = '' OR status = $1)
			AND ($2 = '' OR member_id = $2)
		ORDER BY created_at ASC
		LIMIT $3
	`, status, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.DebtPayment, 0, limit)
	for rows.Next() {
		var p domain.DebtPayment
		var resolvedBy sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.MemberID, &p.AmountCents, &p.Status, &resolvedBy, &p.CreatedAt, &resolvedAt); err != nil {
			return nil, err
		}
		p.ResolvedBy = resolvedBy.String
		p.CreatedAt = p.CreatedAt.UTC()
		if resolvedAt.Valid {
			at := resolvedAt.Time.UTC()
			p.ResolvedAt = &at
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) ResolveDebtPayment(ctx context.Context, id string, cashier string, approve bool, at time.Time) (*domain.DebtPayment, error) {
	if id == "" || cashier == "" {
		return nil, store.ErrInvalidArgument
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var payment domain.DebtPayment
	err = tx.QueryRowContext(ctx, `
		SELECT id, member_id, amount_cents, status, created_at
		FROM debt_payments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&payment.ID, &payment.MemberID, &payment.AmountCents, &payment.Status, &payment.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if payment.Status != domain.ApprovalPending {
		return nil, store.ErrConflict
	}

	newStatus := domain.ApprovalRejected
	if approve {
		newStatus = domain.ApprovalApproved

		var debtCents int64
		err := tx.QueryRowContext(ctx, `
			SELECT debt_cents FROM members WHERE id = $1 FOR UPDATE
		`, payment.MemberID).Scan(&debtCents)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		// Checked fresh: debt may have changed since the request was filed.
		if payment.AmountCents > debtCents {
			return nil, store.ErrInsufficientBalance
		}
		if err := execExpectOne(ctx, tx, `
			UPDATE members
			SET debt_cents = debt_cents - $1, balance_cents = balance_cents + $1
			WHERE id = $2
		`, payment.AmountCents, payment.MemberID); err != nil {
			return nil, err
		}
	}

	if err := execExpectOne(ctx, tx, `
		UPDATE debt_payments
		SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = $5
	`, id, newStatus, cashier, at, domain.ApprovalPending); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	payment.Status = newStatus
	payment.ResolvedBy = cashier
	resolvedAt := at.UTC()
	payment.ResolvedAt = &resolvedAt
	payment.CreatedAt = payment.CreatedAt.UTC()
	return &payment, nil
}

func (s *Store) CreateCashDeposit(ctx context.Context, deposit domain.CashDeposit) (*domain.CashDeposit, error) {
	if deposit.Cashier == "" || deposit.AmountCents < 1 {
		return nil, store.ErrInvalidArgument
	}
	if deposit.ID == "" {
		deposit.ID = xid.New("dep")
	}
	if deposit.Status == "" {
		deposit.Status = domain.ApprovalPending
	}
	if deposit.CreatedAt.IsZero() {
		deposit.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_deposits (id, cashier, amount_cents, status, approved_by, created_at, approved_at)
		VALUES ($1,$2,$3,$4,NULL,$5,NULL)
	`, deposit.ID, deposit.Cashier, deposit.AmountCents, deposit.Status, deposit.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := deposit
	return &created, nil
}

func (s *Store) ListCashDeposits(ctx context.Context, status string, limit int) ([]domain.CashDeposit, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cashier, amount_cents, status, approved_by, created_at, approved_at
		FROM cash_deposits
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deposits := make([]domain.CashDeposit, 0, limit)
	for rows.Next() {
		var d domain.CashDeposit
		var approvedBy sql.NullString
		var approvedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.Cashier, &d.AmountCents, &d.Status, &approvedBy, &d.CreatedAt, &approvedAt); err != nil {
			return nil, err
		}
		d.ApprovedBy = approvedBy.String
		d.CreatedAt = d.CreatedAt.UTC()
		if approvedAt.Valid {
			at := approvedAt.Time.UTC()
			d.ApprovedAt = &at
		}
		deposits = append(deposits, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deposits, nil
}

func (s *Store) ApproveCashDeposit(ctx context.Context, id string, admin string, at time.Time) (*domain.CashDeposit, error) {
	if id == "" || admin == "" {
		return nil, store.ErrInvalidArgument
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cash_deposits
		SET status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1 AND status = $5
	`, id, domain.ApprovalApproved, admin, at, domain.ApprovalPending)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM cash_deposits WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrConflict
	}

	var deposit domain.CashDeposit
	var approvedBy sql.NullString
	var approvedAt sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT id, cashier, amount_cents, status, approved_by, created_at, approved_at
		FROM cash_deposits
		WHERE id = $1
	`, id).Scan(&deposit.ID, &deposit.Cashier, &deposit.AmountCents, &deposit.Status, &approvedBy, &deposit.CreatedAt, &approvedAt)
	if err != nil {
		return nil, err
	}
	deposit.ApprovedBy = approvedBy.String
	deposit.CreatedAt = deposit.CreatedAt.UTC()
	if approvedAt.Valid {
		t := approvedAt.Time.UTC()
		deposit.ApprovedAt = &t
	}
	return &deposit, nil
}

func (s *Store) CreateHandover(ctx context.Context, handover domain.Handover) (*domain.Handover, error) {
	if handover.FromCashier == "" || handover.ToCashier == "" || len(handover.Lines) == 0 {
		return nil, store.ErrInvalidArgument
	}
	if handover.FromCashier == handover.ToCashier {
		return nil, store.ErrInvalidArgument
	}
	if handover.ID == "" {
		handover.ID = xid.New("ho")
	}
	if handover.Status == "" {
		handover.Status = domain.ApprovalPending
	}
	if handover.CreatedAt.IsZero() {
		handover.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO handovers (id, from_cashier, to_cashier, status, reason, created_at, resolved_at)
		VALUES ($1,$2,$3,$4,'',$5,NULL)
	`, handover.ID, handover.FromCashier, handover.ToCashier, handover.Status, handover.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range handover.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO handover_lines (handover_id, good_id, expected_qty, actual_qty, variance_qty)
			VALUES ($1,$2,$3,$4,$5)
		`, handover.ID, line.GoodID, line.ExpectedQty, line.ActualQty, line.VarianceQty)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := handover
	return &created, nil
}

func (s *Store) ListHandovers(ctx context.Context, cashier string, limit int) ([]domain.Handover, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_cashier, to_cashier, status, reason, created_at, resolved_at
		FROM handovers
		WHERE ($1 = '' OR from_cashier = $1 OR to_cashier = $1)
		ORDER BY created_at ASC
		LIMIT $2
	`, cashier, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	handovers := make([]domain.Handover, 0, limit)
	for rows.Next() {
		var h domain.Handover
		var resolvedAt sql.NullTime
		if err := rows.Scan(&h.ID, &h.FromCashier, &h.ToCashier, &h.Status, &h.Reason, &h.CreatedAt, &resolvedAt); err != nil {
			return nil, err
		}
		h.CreatedAt = h.CreatedAt.UTC()
		if resolvedAt.Valid {
			at := resolvedAt.Time.UTC()
			h.ResolvedAt = &at
		}
		handovers = append(handovers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range handovers {
		lines, err := s.handoverLines(ctx, handovers[i].ID)
		if err != nil {
			return nil, err
		}
		handovers[i].Lines = lines
	}
	return handovers, nil
}

func (s *Store) handoverLines(ctx context.Context, handoverID string) ([]domain.HandoverLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT good_id, expected_qty, actual_qty, variance_qty
		FROM handover_lines
		WHERE handover_id = $1
	`, handoverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.HandoverLine, 0, 8)
	for rows.Next() {
		var line domain.HandoverLine
		if err := rows.Scan(&line.GoodID, &line.ExpectedQty, &line.ActualQty, &line.VarianceQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ResolveHandover(ctx context.Context, id string, actingCashier string, approve bool, reason string, at time.Time) (*domain.Handover, error) {
	if id == "" || actingCashier == "" {
		return nil, store.ErrInvalidArgument
	}
	if !approve && strings.TrimSpace(reason) == "" {
		return nil, store.ErrInvalidArgument
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var handover domain.Handover
	err = tx.QueryRowContext(ctx, `
		SELECT id, from_cashier, to_cashier, status, created_at
		FROM handovers
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&handover.ID, &handover.FromCashier, &handover.ToCashier, &handover.Status, &handover.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	// Authorization is checked before the status so an unauthorized caller
	// learns nothing about the record's state.
	if handover.ToCashier != actingCashier {
		return nil, store.ErrForbidden
	}
	if handover.Status != domain.ApprovalPending {
		return nil, store.ErrConflict
	}

	newStatus := domain.ApprovalRejected
	if approve {
		newStatus = domain.ApprovalApproved
		reason = ""
	}

	if err := execExpectOne(ctx, tx, `
		UPDATE handovers
		SET status = $2, reason = $3, resolved_at = $4
		WHERE id = $1 AND status = $5
	`, id, newStatus, strings.TrimSpace(reason), at, domain.ApprovalPending); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	handover.Status = newStatus
	handover.Reason = strings.TrimSpace(reason)
	resolvedAt := at.UTC()
	handover.ResolvedAt = &resolvedAt
	handover.CreatedAt = handover.CreatedAt.UTC()
	lines, err := s.handoverLines(ctx, id)
	if err != nil {
		return nil, err
	}
	handover.Lines = lines
	return &handover, nil
}

func (s *Store) ListShuShares(ctx context.Context, memberID string, year int) ([]domain.ShuShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, order_id, year, sixty_cents, thirty_cents, ten_cents, created_at
		FROM shu_shares
		WHERE ($1 = '' OR member_id = $1)
			AND ($2 = 0 OR year = $2)
		ORDER BY created_at ASC
	`, memberID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shares := make([]domain.ShuShare, 0, 64)
	for rows.Next() {
		var share domain.ShuShare
		if err := rows.Scan(&share.ID, &share.MemberID, &share.OrderID, &share.Year, &share.SixtyCents, &share.ThirtyCents, &share.TenCents, &share.CreatedAt); err != nil {
			return nil, err
		}
		share.CreatedAt = share.CreatedAt.UTC()
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shares, nil
}

func (s *Store) GetShuYearSummary(ctx context.Context, year int) (domain.ShuYearSummary, error) {
	summary := domain.ShuYearSummary{Year: year}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(sixty_cents),0), COALESCE(SUM(thirty_cents),0), COALESCE(SUM(ten_cents),0)
		FROM shu_shares
		WHERE year = $1
	`, year).Scan(&summary.TotalSixtyCents, &summary.TotalThirtyCents, &summary.TotalTenCents)
	if err != nil {
		return domain.ShuYearSummary{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.name, m.shu_accrued_cents,
			COUNT(s.id) FILTER (WHERE s.year = $1),
			COALESCE(SUM(s.sixty_cents) FILTER (WHERE s.year = $1), 0),
			COALESCE(SUM(s.sixty_cents), 0)
		FROM members m
		LEFT JOIN shu_shares s ON s.member_id = m.id
		GROUP BY m.id, m.name, m.shu_accrued_cents
		ORDER BY m.name
	`, year)
	if err != nil {
		return domain.ShuYearSummary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.ShuMemberSummary
		var lifetimeSixty int64
		if err := rows.Scan(&entry.MemberID, &entry.Name, &entry.AccruedCents, &entry.ShareCount, &entry.SharesSumCents, &lifetimeSixty); err != nil {
			return domain.ShuYearSummary{}, err
		}
		// Drift compares the running counter against the lifetime ledger
		// sum; nonzero means the two representations diverged.
		entry.DriftCents = entry.AccruedCents - lifetimeSixty
		summary.Members = append(summary.Members, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.ShuYearSummary{}, err
	}
	return summary, nil
}

func (s *Store) GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{Date: from.Format("2006-01-02")}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents),0), COALESCE(SUM(margin_cents),0)
		FROM orders
		WHERE status = $1 AND settled_at >= $2 AND settled_at < $3
	`, domain.OrderStatusCompleted, from, to).Scan(&report.OrdersSettled, &report.GrossSalesCents, &report.MarginCents)
	if err != nil {
		return domain.DailyReport{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(sixty_cents + thirty_cents + ten_cents),0)
		FROM shu_shares
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.ShuAllocatedCents)
	if err != nil {
		return domain.DailyReport{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total_cents),0)
		FROM orders
		WHERE status = $1 AND settled_at >= $2 AND settled_at < $3
		GROUP BY payment_method
		ORDER BY payment_method
	`, domain.OrderStatusCompleted, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.DailyReportPayment
		if err := rows.Scan(&entry.PaymentMethod, &entry.Orders, &entry.TotalCents); err != nil {
			return domain.DailyReport{}, err
		}
		report.ByPayment = append(report.ByPayment, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.DailyReport{}, err
	}
	return report, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidArgument
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, member_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.Username, user.Password, user.Role, nullIfEmpty(user.MemberID), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var memberID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, member_id, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &memberID, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.MemberID = memberID.String
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, member_id, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 32)
	for rows.Next() {
		var user domain.UserAccount
		var memberID sql.NullString
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &memberID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.MemberID = memberID.String
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// execExpectOne runs a mutating statement inside tx and requires exactly one
// affected row; zero rows means a concurrent caller won the race.
func execExpectOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrConflict
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
