package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"kopkasir/backend/internal/cache"
	"kopkasir/backend/internal/domain"
	"kopkasir/backend/internal/store"
	"kopkasir/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const memberCacheTTL = 30 * time.Second

type Service struct {
	repo        store.Repository
	memberCache cache.MemberCache
}

func New(repo store.Repository, memberCache cache.MemberCache) *Service {
	if memberCache == nil {
		memberCache = cache.NoopMemberCache{}
	}
	return &Service{
		repo:        repo,
		memberCache: memberCache,
	}
}

// knownPaymentMethods is the closed set accepted after normalization.
var knownPaymentMethods = map[string]bool{
	domain.PaymentCash:     true,
	domain.PaymentQR:       true,
	domain.PaymentEwallet:  true,
	domain.PaymentTransfer: true,
	domain.PaymentCredit:   true,
}

// NormalizePaymentMethod lowercases the input and strips everything that is
// not a letter, so "E-Wallet" and "QRIS " collapse to their canonical forms.
// Unrecognized values fall back to cash rather than rejecting the sale.
func NormalizePaymentMethod(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	method := b.String()
	if method == "qris" {
		method = domain.PaymentQR
	}
	if !knownPaymentMethods[method] {
		return domain.PaymentCash
	}
	return method
}

func (s *Service) requireRole(ctx context.Context, roles ...domain.Role) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: no actor in context", store.ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: role %s not allowed", store.ErrForbidden, actor.Role)
}

func (s *Service) ListGoods(ctx context.Context) ([]domain.Good, error) {
	return s.repo.ListGoods(ctx)
}

func (s *Service) CreateGood(ctx context.Context, req domain.GoodCreateRequest) (domain.Good, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Good{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.CostCents < 1 || req.PriceCents < 1 || req.InitialStock < 0 {
		return domain.Good{}, store.ErrInvalidArgument
	}
	if req.PriceCents < req.CostCents {
		return domain.Good{}, store.ErrInvalidArgument
	}

	created, err := s.repo.CreateGood(ctx, domain.Good{
		Name:       req.Name,
		StockQty:   req.InitialStock,
		CostCents:  req.CostCents,
		PriceCents: req.PriceCents,
		Active:     true,
	})
	if err != nil {
		return domain.Good{}, err
	}

	s.logAudit(ctx, "good_create", "good", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, created.StockQty))
	return *created, nil
}

func (s *Service) UpdateGood(ctx context.Context, id string, req domain.GoodUpdateRequest) (domain.Good, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Good{}, err
	}

	existing, err := s.repo.GetGoodByID(ctx, id)
	if err != nil {
		return domain.Good{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Good{}, store.ErrInvalidArgument
		}
		updated.Name = name
	}
	if req.CostCents != nil {
		if *req.CostCents < 1 {
			return domain.Good{}, store.ErrInvalidArgument
		}
		updated.CostCents = *req.CostCents
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Good{}, store.ErrInvalidArgument
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.StockQty != nil {
		if *req.StockQty < 0 {
			return domain.Good{}, store.ErrInvalidArgument
		}
		updated.StockQty = *req.StockQty
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if updated.PriceCents < updated.CostCents {
		return domain.Good{}, store.ErrInvalidArgument
	}

	saved, err := s.repo.UpdateGood(ctx, updated)
	if err != nil {
		return domain.Good{}, err
	}

	s.logAudit(ctx, "good_update", "good", saved.ID, fmt.Sprintf("active=%t,price=%d,stock=%d", saved.Active, saved.PriceCents, saved.StockQty))
	return *saved, nil
}

func (s *Service) CreateMember(ctx context.Context, req domain.MemberCreateRequest) (domain.Member, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Member{}, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	name := strings.TrimSpace(req.Name)
	if username == "" || name == "" || req.InitialBalanceCents < 0 {
		return domain.Member{}, store.ErrInvalidArgument
	}

	created, err := s.repo.CreateMember(ctx, domain.Member{
		Username:     username,
		Name:         name,
		BalanceCents: req.InitialBalanceCents,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.Member{}, err
	}

	s.logAudit(ctx, "member_create", "member", created.ID, fmt.Sprintf("username=%s,balance=%d", created.Username, created.BalanceCents))
	return *created, nil
}

func (s *Service) ListMembers(ctx context.Context) ([]domain.Member, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleKasir); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx)
}

// GetMemberSelf returns the caller's own ledger snapshot, served from cache
// when a fresh copy is available.
func (s *Service) GetMemberSelf(ctx context.Context) (domain.Member, error) {
	actor, err := s.requireRole(ctx, domain.RoleAnggota)
	if err != nil {
		return domain.Member{}, err
	}
	if actor.MemberID == "" {
		return domain.Member{}, store.ErrNotFound
	}

	if cached, ok, err := s.memberCache.Get(ctx, actor.MemberID); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: member cache get failed id=%s: %v", actor.MemberID, err)
	}

	member, err := s.repo.GetMemberByID(ctx, actor.MemberID)
	if err != nil {
		return domain.Member{}, err
	}
	if err := s.memberCache.Set(ctx, member.ID, member, memberCacheTTL); err != nil {
		log.Printf("[service] WARN: member cache set failed id=%s: %v", member.ID, err)
	}
	return *member, nil
}

func (s *Service) GetMember(ctx context.Context, id string) (domain.Member, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleKasir); err != nil {
		return domain.Member{}, err
	}
	member, err := s.repo.GetMemberByID(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}
	return *member, nil
}

// SubmitOrder files a member cart as a pending order. Nothing is priced
// against the ledger until a cashier settles it.
func (s *Service) SubmitOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	actor, err := s.requireRole(ctx, domain.RoleAnggota)
	if err != nil {
		return domain.Order{}, err
	}
	if actor.MemberID == "" {
		return domain.Order{}, store.ErrNotFound
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, store.ErrInvalidArgument
	}

	lines := make([]domain.OrderLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, domain.OrderLine{GoodID: line.GoodID, Qty: line.Qty})
	}

	created, err := s.repo.CreateOrder(ctx, domain.Order{
		MemberID:      actor.MemberID,
		PaymentMethod: NormalizePaymentMethod(req.PaymentMethod),
		Status:        domain.OrderStatusPending,
		CreatedAt:     time.Now().UTC(),
		Lines:         lines,
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_submit", "order", created.ID, fmt.Sprintf("lines=%d,total=%d,payment=%s", len(created.Lines), created.TotalCents, created.PaymentMethod))
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: no actor in context", store.ErrForbidden)
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if actor.Role == domain.RoleAnggota && order.MemberID != actor.MemberID {
		return domain.Order{}, store.ErrForbidden
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no actor in context", store.ErrForbidden)
	}

	orders, err := s.repo.ListOrdersByStatus(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAnggota {
		return orders, nil
	}

	own := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if order.MemberID == actor.MemberID {
			own = append(own, order)
		}
	}
	return own, nil
}

// SettleOrders finalizes a batch of pending orders as one atomic unit. A
// failure on any order leaves the entire batch untouched.
func (s *Service) SettleOrders(ctx context.Context, req domain.SettleRequest) (domain.SettleResponse, error) {
	actor, err := s.requireRole(ctx, domain.RoleKasir, domain.RoleAdmin)
	if err != nil {
		return domain.SettleResponse{}, err
	}
	if len(req.OrderIDs) == 0 {
		return domain.SettleResponse{}, store.ErrInvalidArgument
	}

	now := time.Now().UTC()
	settlements, err := s.repo.SettleOrders(ctx, req.OrderIDs, actor.Username, now.Year(), now)
	if err != nil {
		return domain.SettleResponse{}, err
	}

	for _, settlement := range settlements {
		if settlement.MemberID != "" {
			s.invalidateMember(ctx, settlement.MemberID)
		}
		s.logAudit(ctx, "order_settle", "order", settlement.OrderID, fmt.Sprintf("total=%d,margin=%d,sixty=%d", settlement.TotalCents, settlement.MarginCents, settlement.SixtyCents))
	}
	return domain.SettleResponse{Settlements: settlements}, nil
}

// RingUpSale records and settles a walk-up sale in one step, decrementing
// stock as part of the same unit of work.
func (s *Service) RingUpSale(ctx context.Context, req domain.RingUpRequest) (domain.OrderSettlement, error) {
	actor, err := s.requireRole(ctx, domain.RoleKasir, domain.RoleAdmin)
	if err != nil {
		return domain.OrderSettlement{}, err
	}
	if len(req.Lines) == 0 {
		return domain.OrderSettlement{}, store.ErrInvalidArgument
	}

	method := NormalizePaymentMethod(req.PaymentMethod)
	if method == domain.PaymentCredit && req.MemberID == "" {
		return domain.OrderSettlement{}, store.ErrInvalidArgument
	}

	lines := make([]domain.OrderLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, domain.OrderLine{GoodID: line.GoodID, Qty: line.Qty})
	}

	now := time.Now().UTC()
	settlement, err := s.repo.RingUpSale(ctx, domain.Order{
		MemberID:      req.MemberID,
		PaymentMethod: method,
		SettledBy:     actor.Username,
		Lines:         lines,
	}, now.Year(), now)
	if err != nil {
		return domain.OrderSettlement{}, err
	}

	if settlement.MemberID != "" {
		s.invalidateMember(ctx, settlement.MemberID)
	}
	s.logAudit(ctx, "sale_ring_up", "order", settlement.OrderID, fmt.Sprintf("total=%d,payment=%s", settlement.TotalCents, method))
	return *settlement, nil
}

// RequestDebtPayment files a pending debt-payment request. Members file for
// themselves; cashiers and admins may file on a member's behalf.
func (s *Service) RequestDebtPayment(ctx context.Context, memberID string, req domain.DebtPaymentRequest) (domain.DebtPayment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.DebtPayment{}, fmt.Errorf("%w: no actor in context", store.ErrForbidden)
	}
	if actor.Role == domain.RoleAnggota {
		memberID = actor.MemberID
	}
	if memberID == "" || req.AmountCents < 1 {
		return domain.DebtPayment{}, store.ErrInvalidArgument
	}

	created, err := s.repo.CreateDebtPayment(ctx, domain.DebtPayment{
		MemberID:    memberID,
		AmountCents: req.AmountCents,
		Status:      domain.ApprovalPending,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.DebtPayment{}, err
	}

	s.logAudit(ctx, "debt_payment_request", "debt_payment", created.ID, fmt.Sprintf("member=%s,amount=%d", created.MemberID, created.AmountCents))
	return *created, nil
}

func (s *Service) ListDebtPayments(ctx context.Context, status string, limit int) ([]domain.DebtPayment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no actor in context", store.ErrForbidden)
	}

	memberID := ""
	if actor.Role == domain.RoleAnggota {
		memberID = actor.MemberID
	}
	return s.repo.ListDebtPayments(ctx, status, memberID, limit)
}

// ResolveDebtPayment approves or rejects a pending request. Approval checks
// the amount against the member's current debt, not the debt at filing time.
func (s *Service) ResolveDebtPayment(ctx context.Context, id string, req domain.ResolveRequest) (domain.DebtPayment, error) {
	actor, err := s.requireRole(ctx, domain.RoleKasir, domain.RoleAdmin)
	if err != nil {
		return domain.DebtPayment{}, err
	}

	approve := req.Decision == "approve"
	resolved, err := s.repo.ResolveDebtPayment(ctx, id, actor.Username, approve, time.Now().UTC())
	if err != nil {
		return domain.DebtPayment{}, err
	}

	if approve {
		s.invalidateMember(ctx, resolved.MemberID)
	}
	s.logAudit(ctx, "debt_payment_resolve", "debt_payment", resolved.ID, fmt.Sprintf("member=%s,amount=%d,decision=%s", resolved.MemberID, resolved.AmountCents, req.Decision))
	return *resolved, nil
}

func (s *Service) CreateCashDeposit(ctx context.Context, req domain.CashDepositRequest) (domain.CashDeposit, error) {
	actor, err := s.requireRole(ctx, domain.RoleKasir)
	if err != nil {
		return domain.CashDeposit{}, err
	}
	if req.AmountCents < 1 {
		return domain.CashDeposit{}, store.ErrInvalidArgument
	}

	created, err := s.repo.CreateCashDeposit(ctx, domain.CashDeposit{
		Cashier:     actor.Username,
		AmountCents: req.AmountCents,
		Status:      domain.ApprovalPending,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.CashDeposit{}, err
	}

	s.logAudit(ctx, "cash_deposit_create", "cash_deposit", created.ID, fmt.Sprintf("amount=%d", created.AmountCents))
	return *created, nil
}

func (s *Service) ListCashDeposits(ctx context.Context, status string, limit int) ([]domain.CashDeposit, error) {
	if _, err := s.requireRole(ctx, domain.RoleKasir, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListCashDeposits(ctx, status, limit)
}

func (s *Service) ApproveCashDeposit(ctx context.Context, id string) (domain.CashDeposit, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.CashDeposit{}, err
	}

	approved, err := s.repo.ApproveCashDeposit(ctx, id, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.CashDeposit{}, err
	}

	s.logAudit(ctx, "cash_deposit_approve", "cash_deposit", approved.ID, fmt.Sprintf("cashier=%s,amount=%d", approved.Cashier, approved.AmountCents))
	return *approved, nil
}

// CreateHandover opens a two-party stock handover from the calling cashier
// to another cashier, who must later approve or reject it.
func (s *Service) CreateHandover(ctx context.Context, req domain.HandoverCreateRequest) (domain.Handover, error) {
	actor, err := s.requireRole(ctx, domain.RoleKasir)
	if err != nil {
		return domain.Handover{}, err
	}

	toCashier := strings.ToLower(strings.TrimSpace(req.ToCashier))
	if toCashier == "" || len(req.Lines) == 0 {
		return domain.Handover{}, store.ErrInvalidArgument
	}
	if toCashier == actor.Username {
		return domain.Handover{}, store.ErrInvalidArgument
	}

	counterpart, err := s.repo.GetUserByUsername(ctx, toCashier)
	if err != nil {
		return domain.Handover{}, err
	}
	if counterpart.Role != string(domain.RoleKasir) || !counterpart.Active {
		return domain.Handover{}, store.ErrInvalidArgument
	}

	lines := make([]domain.HandoverLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.GoodID == "" || line.ExpectedQty < 0 || line.ActualQty < 0 {
			return domain.Handover{}, store.ErrInvalidArgument
		}
		if _, err := s.repo.GetGoodByID(ctx, line.GoodID); err != nil {
			return domain.Handover{}, err
		}
		// Variance is always recomputed server-side.
		lines = append(lines, domain.HandoverLine{
			GoodID:      line.GoodID,
			ExpectedQty: line.ExpectedQty,
			ActualQty:   line.ActualQty,
			VarianceQty: line.ActualQty - line.ExpectedQty,
		})
	}

	created, err := s.repo.CreateHandover(ctx, domain.Handover{
		FromCashier: actor.Username,
		ToCashier:   toCashier,
		Lines:       lines,
		Status:      domain.ApprovalPending,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Handover{}, err
	}

	s.logAudit(ctx, "handover_create", "handover", created.ID, fmt.Sprintf("to=%s,lines=%d", created.ToCashier, len(created.Lines)))
	return *created, nil
}

func (s *Service) ListHandovers(ctx context.Context, limit int) ([]domain.Handover, error) {
	actor, err := s.requireRole(ctx, domain.RoleKasir, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}

	cashier := ""
	if actor.Role == domain.RoleKasir {
		cashier = actor.Username
	}
	return s.repo.ListHandovers(ctx, cashier, limit)
}

// ResolveHandover lets the receiving cashier approve or reject a pending
// handover. Rejection requires a reason.
func (s *Service) ResolveHandover(ctx context.Context, id string, req domain.ResolveRequest) (domain.Handover, error) {
	actor, err := s.requireRole(ctx, domain.RoleKasir)
	if err != nil {
		return domain.Handover{}, err
	}

	approve := req.Decision == "approve"
	if !approve && strings.TrimSpace(req.Reason) == "" {
		return domain.Handover{}, store.ErrInvalidArgument
	}

	resolved, err := s.repo.ResolveHandover(ctx, id, actor.Username, approve, req.Reason, time.Now().UTC())
	if err != nil {
		return domain.Handover{}, err
	}

	s.logAudit(ctx, "handover_resolve", "handover", resolved.ID, fmt.Sprintf("from=%s,decision=%s", resolved.FromCashier, req.Decision))
	return *resolved, nil
}

func (s *Service) ListShuShares(ctx context.Context, memberID string, year int) ([]domain.ShuShare, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no actor in context", store.ErrForbidden)
	}
	if actor.Role == domain.RoleAnggota {
		memberID = actor.MemberID
	}
	return s.repo.ListShuShares(ctx, memberID, year)
}

// ShuYearSummary reports per-member yearly profit-share totals, including
// the drift between the running counter and the append-only share ledger.
func (s *Service) ShuYearSummary(ctx context.Context, year int) (domain.ShuYearSummary, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ShuYearSummary{}, err
	}
	if year < 2000 || year > 2200 {
		return domain.ShuYearSummary{}, store.ErrInvalidArgument
	}
	return s.repo.GetShuYearSummary(ctx, year)
}

func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleKasir); err != nil {
		return domain.DailyReport{}, err
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return domain.DailyReport{}, store.ErrInvalidArgument
	}
	from := day.UTC()
	to := from.Add(24 * time.Hour)
	return s.repo.GetDailyReport(ctx, from, to)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, store.ErrInvalidArgument
	}
	from := day.UTC()
	to := from.Add(24 * time.Hour)
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) invalidateMember(ctx context.Context, memberID string) {
	if err := s.memberCache.Delete(ctx, memberID); err != nil {
		log.Printf("[service] WARN: member cache invalidation failed id=%s: %v", memberID, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     string(actor.Role),
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
