package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kopkasir/backend/internal/domain"
	"kopkasir/backend/internal/shu"
	"kopkasir/backend/internal/store"
	"kopkasir/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	goodsByID        map[string]domain.Good
	membersByID      map[string]domain.Member
	ordersByID       map[string]*domain.Order
	orderIDs         []string
	shuShares        []domain.ShuShare
	debtPaymentsByID map[string]*domain.DebtPayment
	debtPaymentIDs   []string
	depositsByID     map[string]*domain.CashDeposit
	depositIDs       []string
	handoversByID    map[string]*domain.Handover
	handoverIDs      []string
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD, SEED_KASIR_PASSWORD and
// SEED_ANGGOTA_PASSWORD; hardcoded dev defaults are used when unset. These
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	kasirPwd := envOr("SEED_KASIR_PASSWORD", "kasir123")
	anggotaPwd := envOr("SEED_ANGGOTA_PASSWORD", "anggota123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_KASIR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_KASIR_PASSWORD and SEED_ANGGOTA_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		memberID string
	}{
		{"admin", adminPwd, "admin", ""},
		{"kasir", kasirPwd, "kasir", ""},
		{"kasir2", kasirPwd, "kasir", ""},
		{"budi", anggotaPwd, "anggota", "mbr-budi"},
		{"sari", anggotaPwd, "anggota", "mbr-sari"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			MemberID:  u.memberID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	goods := []domain.Good{
		{ID: "good-beras-01", Name: "Beras 5kg", StockQty: 40, CostCents: 6200000, PriceCents: 6800000, Active: true},
		{ID: "good-gula-01", Name: "Gula 1kg", StockQty: 60, CostCents: 1500000, PriceCents: 1740000, Active: true},
		{ID: "good-minyak-01", Name: "Minyak Goreng 1L", StockQty: 48, CostCents: 1600000, PriceCents: 1890000, Active: true},
		{ID: "good-mie-01", Name: "Mie Instan", StockQty: 200, CostCents: 270000, PriceCents: 350000, Active: true},
		{ID: "good-telur-01", Name: "Telur 10 Butir", StockQty: 30, CostCents: 2300000, PriceCents: 2650000, Active: true},
		{ID: "good-kopi-01", Name: "Kopi Sachet", StockQty: 150, CostCents: 170000, PriceCents: 260000, Active: true},
		{ID: "good-sabun-01", Name: "Sabun Mandi", StockQty: 80, CostCents: 500000, PriceCents: 740000, Active: true},
		{ID: "good-teh-01", Name: "Teh Celup", StockQty: 70, CostCents: 720000, PriceCents: 980000, Active: true},
	}

	members := []domain.Member{
		{ID: "mbr-budi", Username: "budi", Name: "Budi Santoso", BalanceCents: 50000000, DebtCents: 0, ShuAccruedCents: 0, CreatedAt: now},
		{ID: "mbr-sari", Username: "sari", Name: "Sari Wulandari", BalanceCents: 12500000, DebtCents: 2000000, ShuAccruedCents: 0, CreatedAt: now},
		{ID: "mbr-agus", Username: "agus", Name: "Agus Prasetyo", BalanceCents: 800000, DebtCents: 0, ShuAccruedCents: 0, CreatedAt: now},
	}

	goodsByID := make(map[string]domain.Good, len(goods))
	for _, g := range goods {
		goodsByID[g.ID] = g
	}
	membersByID := make(map[string]domain.Member, len(members))
	for _, m := range members {
		membersByID[m.ID] = m
	}

	return &Store{
		goodsByID:        goodsByID,
		membersByID:      membersByID,
		ordersByID:       map[string]*domain.Order{},
		debtPaymentsByID: map[string]*domain.DebtPayment{},
		depositsByID:     map[string]*domain.CashDeposit{},
		handoversByID:    map[string]*domain.Handover{},
		usersByUsername:  seedUsers(),
	}
}

func (s *Store) ListGoods(_ context.Context) ([]domain.Good, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goods := make([]domain.Good, 0, len(s.goodsByID))
	for _, g := range s.goodsByID {
		if g.Active {
			goods = append(goods, g)
		}
	}
	sort.Slice(goods, func(i, j int) bool { return goods[i].Name < goods[j].Name })
	return goods, nil
}

func (s *Store) CreateGood(_ context.Context, good domain.Good) (*domain.Good, error) {
	if good.Name == "" || good.CostCents < 1 || good.PriceCents < 1 || good.StockQty < 0 {
		return nil, store.ErrInvalidArgument
	}
	if good.ID == "" {
		good.ID = xid.New("good")
	}
	good.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.goodsByID[good.ID]; exists {
		return nil, store.ErrConflict
	}
	s.goodsByID[good.ID] = good
	created := good
	return &created, nil
}

func (s *Store) GetGoodByID(_ context.Context, id string) (*domain.Good, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	good, ok := s.goodsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := good
	return &found, nil
}

func (s *Store) UpdateGood(_ context.Context, good domain.Good) (*domain.Good, error) {
	if good.ID == "" || good.Name == "" || good.CostCents < 1 || good.PriceCents < 1 || good.StockQty < 0 {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goodsByID[good.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.goodsByID[good.ID] = good
	updated := good
	return &updated, nil
}

func (s *Store) CreateMember(_ context.Context, member domain.Member) (*domain.Member, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.membersByID[member.ID]; exists {
		return nil, store.ErrConflict
	}
	for _, m := range s.membersByID {
		if m.Username == member.Username {
			return nil, store.ErrConflict
		}
	}
	s.membersByID[member.ID] = member
	created := member
	return &created, nil
}

func (s *Store) GetMemberByID(_ context.Context, id string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.membersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := member
	return &found, nil
}

func (s *Store) ListMembers(_ context.Context) ([]domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]domain.Member, 0, len(s.membersByID))
	for _, m := range s.membersByID {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrConflict
	}

	total := int64(0)
	margin := int64(0)
	lines := make([]domain.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.GoodID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidArgument
		}
		good, ok := s.goodsByID[line.GoodID]
		if !ok || !good.Active {
			return nil, store.ErrNotFound
		}
		subtotal := good.PriceCents * int64(line.Qty)
		lineMargin := (good.PriceCents - good.CostCents) * int64(line.Qty)
		lines = append(lines, domain.OrderLine{
			GoodID:         line.GoodID,
			GoodName:       good.Name,
			Qty:            line.Qty,
			UnitPriceCents: good.PriceCents,
			SubtotalCents:  subtotal,
			MarginCents:    lineMargin,
		})
		total += subtotal
		margin += lineMargin
	}
	order.Lines = lines
	order.TotalCents = total
	order.MarginCents = margin

	stored := order
	s.ordersByID[order.ID] = &stored
	s.orderIDs = append(s.orderIDs, order.ID)
	created := cloneOrder(&stored)
	return &created, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneOrder(order)
	return &found, nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, limit)
	for _, id := range s.orderIDs {
		order := s.ordersByID[id]
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, cloneOrder(order))
		if len(orders) >= limit {
			break
		}
	}
	return orders, nil
}

func (s *Store) SettleOrders(_ context.Context, orderIDs []string, cashier string, year int, at time.Time) ([]domain.OrderSettlement, error) {
	if len(orderIDs) == 0 || cashier == "" {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating anything so a failure leaves
	// every order and ledger untouched. Credit totals and stock needs are
	// accumulated across the batch: two orders drawing on the same member or
	// the same good must fit together, not just one at a time.
	creditCommitted := map[string]int64{}
	stockNeeded := map[string]int{}
	for _, orderID := range orderIDs {
		order, ok := s.ordersByID[orderID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusInProcess {
			return nil, store.ErrConflict
		}
		if order.MemberID != "" {
			member, ok := s.membersByID[order.MemberID]
			if !ok {
				return nil, store.ErrNotFound
			}
			if order.PaymentMethod == domain.PaymentCredit {
				creditCommitted[order.MemberID] += order.TotalCents
				if member.BalanceCents < creditCommitted[order.MemberID] {
					return nil, store.ErrInsufficientBalance
				}
			}
		} else if order.PaymentMethod == domain.PaymentCredit {
			return nil, store.ErrInvalidArgument
		}
		// Pending orders still hold their stock claim; in_process orders were
		// decremented when rung up.
		if order.Status == domain.OrderStatusPending {
			for _, line := range order.Lines {
				good, ok := s.goodsByID[line.GoodID]
				if !ok || !good.Active {
					return nil, store.ErrNotFound
				}
				stockNeeded[line.GoodID] += line.Qty
				if stockNeeded[line.GoodID] > good.StockQty {
					return nil, store.ErrInsufficientStock
				}
			}
		}
	}

	settlements := make([]domain.OrderSettlement, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		settlements = append(settlements, s.settleOrderLocked(orderID, cashier, year, at))
	}
	return settlements, nil
}

// settleOrderLocked assumes s.mu is held and that the order already passed
// the batch precondition checks.
func (s *Store) settleOrderLocked(orderID string, cashier string, year int, at time.Time) domain.OrderSettlement {
	order := s.ordersByID[orderID]

	if order.Status == domain.OrderStatusPending {
		for _, line := range order.Lines {
			good := s.goodsByID[line.GoodID]
			good.StockQty -= line.Qty
			s.goodsByID[line.GoodID] = good
		}
	}

	if order.PaymentMethod == domain.PaymentCredit {
		member := s.membersByID[order.MemberID]
		member.BalanceCents -= order.TotalCents
		member.DebtCents += order.TotalCents
		s.membersByID[order.MemberID] = member
	}

	split := shu.Compute(order.MarginCents)
	if order.MemberID != "" {
		member := s.membersByID[order.MemberID]
		member.ShuAccruedCents += split.SixtyCents
		s.membersByID[order.MemberID] = member

		s.shuShares = append(s.shuShares, domain.ShuShare{
			ID:          xid.New("shu"),
			MemberID:    order.MemberID,
			OrderID:     orderID,
			Year:        year,
			SixtyCents:  split.SixtyCents,
			ThirtyCents: split.ThirtyCents,
			TenCents:    split.TenCents,
			CreatedAt:   at,
		})
	}

	order.Status = domain.OrderStatusCompleted
	order.SettledBy = cashier
	settledAt := at.UTC()
	order.SettledAt = &settledAt

	return domain.OrderSettlement{
		OrderID:     orderID,
		MemberID:    order.MemberID,
		Status:      domain.OrderStatusCompleted,
		TotalCents:  order.TotalCents,
		MarginCents: order.MarginCents,
		SixtyCents:  split.SixtyCents,
		ThirtyCents: split.ThirtyCents,
		TenCents:    split.TenCents,
		SettledBy:   cashier,
		SettledAt:   at.Format(time.RFC3339),
	}
}

func (s *Store) RingUpSale(_ context.Context, order domain.Order, year int, at time.Time) (*domain.OrderSettlement, error) {
	if len(order.Lines) == 0 || order.SettledBy == "" {
		return nil, store.ErrInvalidArgument
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrConflict
	}

	// Validate everything, then mutate. Insufficient stock or balance on any
	// line rejects the whole sale with nothing changed.
	total := int64(0)
	margin := int64(0)
	needed := map[string]int{}
	lines := make([]domain.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.GoodID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidArgument
		}
		good, ok := s.goodsByID[line.GoodID]
		if !ok || !good.Active {
			return nil, store.ErrNotFound
		}
		needed[line.GoodID] += line.Qty
		if needed[line.GoodID] > good.StockQty {
			return nil, store.ErrInsufficientStock
		}
		subtotal := good.PriceCents * int64(line.Qty)
		lineMargin := (good.PriceCents - good.CostCents) * int64(line.Qty)
		lines = append(lines, domain.OrderLine{
			GoodID:         line.GoodID,
			GoodName:       good.Name,
			Qty:            line.Qty,
			UnitPriceCents: good.PriceCents,
			SubtotalCents:  subtotal,
			MarginCents:    lineMargin,
		})
		total += subtotal
		margin += lineMargin
	}

	if order.MemberID != "" {
		member, ok := s.membersByID[order.MemberID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if order.PaymentMethod == domain.PaymentCredit && member.BalanceCents < total {
			return nil, store.ErrInsufficientBalance
		}
	} else if order.PaymentMethod == domain.PaymentCredit {
		return nil, store.ErrInvalidArgument
	}

	for goodID, qty := range needed {
		good := s.goodsByID[goodID]
		good.StockQty -= qty
		s.goodsByID[goodID] = good
	}

	order.Lines = lines
	order.TotalCents = total
	order.MarginCents = margin
	order.Status = domain.OrderStatusInProcess
	order.CreatedAt = at

	stored := order
	s.ordersByID[order.ID] = &stored
	s.orderIDs = append(s.orderIDs, order.ID)

	settlement := s.settleOrderLocked(order.ID, order.SettledBy, year, at)
	return &settlement, nil
}

func (s *Store) CreateDebtPayment(_ context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.membersByID[payment.MemberID]; !ok {
		return nil, store.ErrNotFound
	}
	stored := payment
	s.debtPaymentsByID[payment.ID] = &stored
	s.debtPaymentIDs = append(s.debtPaymentIDs, payment.ID)
	created := payment
	return &created, nil
}

func (s *Store) ListDebtPayments(_ context.Context, status string, memberID string, limit int) ([]domain.DebtPayment, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.DebtPayment, 0, limit)
	for _, id := range s.debtPaymentIDs {
		p := s.debtPaymentsByID[id]
		if status != "" && p.Status != status {
			continue
		}
		if memberID != "" && p.MemberID != memberID {
			continue
		}
		payments = append(payments, *p)
		if len(payments) >= limit {
			break
		}
	}
	return payments, nil
}

func (s *Store) ResolveDebtPayment(_ context.Context, id string, cashier string, approve bool, at time.Time) (*domain.DebtPayment, error) {
	if id == "" || cashier == "" {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.debtPaymentsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if payment.Status != domain.ApprovalPending {
		return nil, store.ErrConflict
	}

	if approve {
		member, ok := s.membersByID[payment.MemberID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if payment.AmountCents > member.DebtCents {
			return nil, store.ErrInsufficientBalance
		}
		member.DebtCents -= payment.AmountCents
		member.BalanceCents += payment.AmountCents
		s.membersByID[payment.MemberID] = member
		payment.Status = domain.ApprovalApproved
	} else {
		payment.Status = domain.ApprovalRejected
	}
	payment.ResolvedBy = cashier
	resolvedAt := at.UTC()
	payment.ResolvedAt = &resolvedAt

	resolved := *payment
	return &resolved, nil
}

func (s *Store) CreateCashDeposit(_ context.Context, deposit domain.CashDeposit) (*domain.CashDeposit, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := deposit
	s.depositsByID[deposit.ID] = &stored
	s.depositIDs = append(s.depositIDs, deposit.ID)
	created := deposit
	return &created, nil
}

func (s *Store) ListCashDeposits(_ context.Context, status string, limit int) ([]domain.CashDeposit, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	deposits := make([]domain.CashDeposit, 0, limit)
	for _, id := range s.depositIDs {
		d := s.depositsByID[id]
		if status != "" && d.Status != status {
			continue
		}
		deposits = append(deposits, *d)
		if len(deposits) >= limit {
			break
		}
	}
	return deposits, nil
}

func (s *Store) ApproveCashDeposit(_ context.Context, id string, admin string, at time.Time) (*domain.CashDeposit, error) {
	if id == "" || admin == "" {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deposit, ok := s.depositsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if deposit.Status != domain.ApprovalPending {
		return nil, store.ErrConflict
	}
	deposit.Status = domain.ApprovalApproved
	deposit.ApprovedBy = admin
	approvedAt := at.UTC()
	deposit.ApprovedAt = &approvedAt

	approved := *deposit
	return &approved, nil
}

func (s *Store) CreateHandover(_ context.Context, handover domain.Handover) (*domain.Handover, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneHandover(&handover)
	s.handoversByID[handover.ID] = &stored
	s.handoverIDs = append(s.handoverIDs, handover.ID)
	created := cloneHandover(&stored)
	return &created, nil
}

func (s *Store) ListHandovers(_ context.Context, cashier string, limit int) ([]domain.Handover, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	handovers := make([]domain.Handover, 0, limit)
	for _, id := range s.handoverIDs {
		h := s.handoversByID[id]
		if cashier != "" && h.FromCashier != cashier && h.ToCashier != cashier {
			continue
		}
		handovers = append(handovers, cloneHandover(h))
		if len(handovers) >= limit {
			break
		}
	}
	return handovers, nil
}

func (s *Store) ResolveHandover(_ context.Context, id string, actingCashier string, approve bool, reason string, at time.Time) (*domain.Handover, error) {
	if id == "" || actingCashier == "" {
		return nil, store.ErrInvalidArgument
	}
	if !approve && strings.TrimSpace(reason) == "" {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handover, ok := s.handoversByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if handover.ToCashier != actingCashier {
		return nil, store.ErrForbidden
	}
	if handover.Status != domain.ApprovalPending {
		return nil, store.ErrConflict
	}

	if approve {
		handover.Status = domain.ApprovalApproved
		handover.Reason = ""
	} else {
		handover.Status = domain.ApprovalRejected
		handover.Reason = strings.TrimSpace(reason)
	}
	resolvedAt := at.UTC()
	handover.ResolvedAt = &resolvedAt

	resolved := cloneHandover(handover)
	return &resolved, nil
}

func (s *Store) ListShuShares(_ context.Context, memberID string, year int) ([]domain.ShuShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shares := make([]domain.ShuShare, 0, len(s.shuShares))
	for _, share := range s.shuShares {
		if memberID != "" && share.MemberID != memberID {
			continue
		}
		if year != 0 && share.Year != year {
			continue
		}
		shares = append(shares, share)
	}
	return shares, nil
}

func (s *Store) GetShuYearSummary(_ context.Context, year int) (domain.ShuYearSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.ShuYearSummary{Year: year}

	type agg struct {
		count         int
		yearSum       int64
		lifetimeSixty int64
	}
	byMember := map[string]*agg{}
	for _, share := range s.shuShares {
		a := byMember[share.MemberID]
		if a == nil {
			a = &agg{}
			byMember[share.MemberID] = a
		}
		a.lifetimeSixty += share.SixtyCents
		if share.Year == year {
			a.count++
			a.yearSum += share.SixtyCents
			summary.TotalSixtyCents += share.SixtyCents
			summary.TotalThirtyCents += share.ThirtyCents
			summary.TotalTenCents += share.TenCents
		}
	}

	members := make([]domain.Member, 0, len(s.membersByID))
	for _, m := range s.membersByID {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	for _, m := range members {
		entry := domain.ShuMemberSummary{
			MemberID:     m.ID,
			Name:         m.Name,
			AccruedCents: m.ShuAccruedCents,
		}
		if a, ok := byMember[m.ID]; ok {
			entry.ShareCount = a.count
			entry.SharesSumCents = a.yearSum
			entry.DriftCents = m.ShuAccruedCents - a.lifetimeSixty
		} else {
			entry.DriftCents = m.ShuAccruedCents
		}
		summary.Members = append(summary.Members, entry)
	}
	return summary, nil
}

func (s *Store) GetDailyReport(_ context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{Date: from.Format("2006-01-02")}

	byPayment := map[string]*domain.DailyReportPayment{}
	for _, id := range s.orderIDs {
		order := s.ordersByID[id]
		if order.Status != domain.OrderStatusCompleted || order.SettledAt == nil {
			continue
		}
		settledAt := *order.SettledAt
		if settledAt.Before(from) || !settledAt.Before(to) {
			continue
		}
		report.OrdersSettled++
		report.GrossSalesCents += order.TotalCents
		report.MarginCents += order.MarginCents

		entry := byPayment[order.PaymentMethod]
		if entry == nil {
			entry = &domain.DailyReportPayment{PaymentMethod: order.PaymentMethod}
			byPayment[order.PaymentMethod] = entry
		}
		entry.Orders++
		entry.TotalCents += order.TotalCents
	}

	for _, share := range s.shuShares {
		if share.CreatedAt.Before(from) || !share.CreatedAt.Before(to) {
			continue
		}
		report.ShuAllocatedCents += share.SixtyCents + share.ThirtyCents + share.TenCents
	}

	methods := make([]string, 0, len(byPayment))
	for method := range byPayment {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	for _, method := range methods {
		report.ByPayment = append(report.ByPayment, *byPayment[method])
	}
	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
		if len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidArgument
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneOrder(order *domain.Order) domain.Order {
	clone := *order
	clone.Lines = append([]domain.OrderLine(nil), order.Lines...)
	if order.SettledAt != nil {
		at := *order.SettledAt
		clone.SettledAt = &at
	}
	return clone
}

func cloneHandover(handover *domain.Handover) domain.Handover {
	clone := *handover
	clone.Lines = append([]domain.HandoverLine(nil), handover.Lines...)
	if handover.ResolvedAt != nil {
		at := *handover.ResolvedAt
		clone.ResolvedAt = &at
	}
	return clone
}
