package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kopkasir/backend/internal/cache"
	"kopkasir/backend/internal/domain"
	"kopkasir/backend/internal/store"
	"kopkasir/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopMemberCache{})
}

func timeNowYear() int {
	return time.Now().UTC().Year()
}

func timeNowDate() string {
	return time.Now().UTC().Format("2006-01-02")
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func kasirCtx(username string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: username, Role: domain.RoleKasir})
}

func anggotaCtx(username string, memberID string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: username, Role: domain.RoleAnggota, MemberID: memberID})
}

func TestRingUpCreditSaleAppliesLedgerAndSplit(t *testing.T) {
	svc := newTestService()
	ctx := kasirCtx("kasir")

	// Budi starts with balance 500000.00 and no debt. Two bags of rice at
	// 68000.00 each with cost 62000.00 give total 136000.00 and margin
	// 12000.00.
	settlement, err := svc.RingUpSale(ctx, domain.RingUpRequest{
		MemberID:      "mbr-budi",
		PaymentMethod: "credit",
		Lines:         []domain.CartLine{{GoodID: "good-beras-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("ring up failed: %v", err)
	}
	if settlement.TotalCents != 13600000 {
		t.Fatalf("expected total 13600000, got %d", settlement.TotalCents)
	}
	if settlement.MarginCents != 1200000 {
		t.Fatalf("expected margin 1200000, got %d", settlement.MarginCents)
	}
	if settlement.SixtyCents != 720000 || settlement.ThirtyCents != 360000 || settlement.TenCents != 120000 {
		t.Fatalf("unexpected split: %+v", settlement)
	}

	member, err := svc.GetMember(ctx, "mbr-budi")
	if err != nil {
		t.Fatalf("get member failed: %v", err)
	}
	if member.BalanceCents != 50000000-13600000 {
		t.Fatalf("expected balance %d, got %d", 50000000-13600000, member.BalanceCents)
	}
	if member.DebtCents != 13600000 {
		t.Fatalf("expected debt 13600000, got %d", member.DebtCents)
	}
	if member.ShuAccruedCents != 720000 {
		t.Fatalf("expected accrued 720000, got %d", member.ShuAccruedCents)
	}

	shares, err := svc.ListShuShares(ctx, "mbr-budi", 0)
	if err != nil {
		t.Fatalf("list shares failed: %v", err)
	}
	if len(shares) != 1 {
		t.Fatalf("expected 1 share row, got %d", len(shares))
	}
	if shares[0].SixtyCents+shares[0].ThirtyCents+shares[0].TenCents != settlement.MarginCents {
		t.Fatalf("share buckets do not sum to margin")
	}
}

func TestRingUpCreditRejectsInsufficientBalance(t *testing.T) {
	svc := newTestService()
	ctx := kasirCtx("kasir")

	// Agus has balance 8000.00, far below two bags of rice.
	_, err := svc.RingUpSale(ctx, domain.RingUpRequest{
		MemberID:      "mbr-agus",
		PaymentMethod: "credit",
		Lines:         []domain.CartLine{{GoodID: "good-beras-01", Qty: 2}},
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	member, err := svc.GetMember(ctx, "mbr-agus")
	if err != nil {
		t.Fatalf("get member failed: %v", err)
	}
	if member.BalanceCents != 800000 || member.DebtCents != 0 {
		t.Fatalf("ledger should be untouched after rejected sale, got balance=%d debt=%d", member.BalanceCents, member.DebtCents)
	}
}

func TestRingUpRejectsInsufficientStockWithoutMutation(t *testing.T) {
	svc := newTestService()
	ctx := kasirCtx("kasir")

	// Telur seeds with 30 units.
	_, err := svc.RingUpSale(ctx, domain.RingUpRequest{
		PaymentMethod: "cash",
		Lines: []domain.CartLine{
			{GoodID: "good-gula-01", Qty: 1},
			{GoodID: "good-telur-01", Qty: 31},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	goods, err := svc.ListGoods(context.Background())
	if err != nil {
		t.Fatalf("list goods failed: %v", err)
	}
	for _, g := range goods {
		if g.ID == "good-gula-01" && g.StockQty != 60 {
			t.Fatalf("expected gula stock 60 untouched, got %d", g.StockQty)
		}
		if g.ID == "good-telur-01" && g.StockQty != 30 {
			t.Fatalf("expected telur stock 30 untouched, got %d", g.StockQty)
		}
	}
}

func TestRingUpCreditWithoutMemberRejected(t *testing.T) {
	svc := newTestService()

	_, err := svc.RingUpSale(kasirCtx("kasir"), domain.RingUpRequest{
		PaymentMethod: "credit",
		Lines:         []domain.CartLine{{GoodID: "good-mie-01", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for credit without member, got %v", err)
	}
}

func TestSettleBatchIsAtomicOnConflict(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")

	first, err := svc.SubmitOrder(anggotaCtx("budi", "mbr-budi"), domain.OrderCreateRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CartLine{{GoodID: "good-mie-01", Qty: 3}},
	})
	if err != nil {
		t.Fatalf("submit first order failed: %v", err)
	}
	second, err := svc.SubmitOrder(anggotaCtx("sari", "mbr-sari"), domain.OrderCreateRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CartLine{{GoodID: "good-kopi-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("submit second order failed: %v", err)
	}

	// Settle the first order alone, then try a batch containing both. The
	// already-settled order must fail the whole batch and leave the second
	// order pending.
	if _, err := svc.SettleOrders(kasir, domain.SettleRequest{OrderIDs: []string{first.ID}}); err != nil {
		t.Fatalf("settle first order failed: %v", err)
	}
	_, err = svc.SettleOrders(kasir, domain.SettleRequest{OrderIDs: []string{first.ID, second.ID}})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on re-settle, got %v", err)
	}

	pending, err := svc.ListOrders(kasir, domain.OrderStatusPending, 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("expected second order still pending, got %+v", pending)
	}
}

func TestSettleBatchAccruesPerMemberShares(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")

	budiOrder, err := svc.SubmitOrder(anggotaCtx("budi", "mbr-budi"), domain.OrderCreateRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CartLine{{GoodID: "good-beras-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("submit budi order failed: %v", err)
	}
	sariOrder, err := svc.SubmitOrder(anggotaCtx("sari", "mbr-sari"), domain.OrderCreateRequest{
		PaymentMethod: "qr",
		Lines:         []domain.CartLine{{GoodID: "good-sabun-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("submit sari order failed: %v", err)
	}

	resp, err := svc.SettleOrders(kasir, domain.SettleRequest{OrderIDs: []string{budiOrder.ID, sariOrder.ID}})
	if err != nil {
		t.Fatalf("settle batch failed: %v", err)
	}
	if len(resp.Settlements) != 2 {
		t.Fatalf("expected 2 settlements, got %d", len(resp.Settlements))
	}

	for _, settlement := range resp.Settlements {
		if settlement.SixtyCents+settlement.ThirtyCents+settlement.TenCents != settlement.MarginCents {
			t.Fatalf("split does not sum to margin: %+v", settlement)
		}
	}

	budi, err := svc.GetMember(kasir, "mbr-budi")
	if err != nil {
		t.Fatalf("get budi failed: %v", err)
	}
	// One bag of rice: margin 6000.00, sixty bucket 3600.00.
	if budi.ShuAccruedCents != 360000 {
		t.Fatalf("expected budi accrued 360000, got %d", budi.ShuAccruedCents)
	}
}

func TestSettleBatchDecrementsStock(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")

	order, err := svc.SubmitOrder(anggotaCtx("budi", "mbr-budi"), domain.OrderCreateRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CartLine{{GoodID: "good-mie-01", Qty: 5}},
	})
	if err != nil {
		t.Fatalf("submit order failed: %v", err)
	}

	if _, err := svc.SettleOrders(kasir, domain.SettleRequest{OrderIDs: []string{order.ID}}); err != nil {
		t.Fatalf("settle order failed: %v", err)
	}

	goods, err := svc.ListGoods(context.Background())
	if err != nil {
		t.Fatalf("list goods failed: %v", err)
	}
	// Mie seeds with stock 200; a settled cart of 5 leaves 195.
	for _, g := range goods {
		if g.ID == "good-mie-01" && g.StockQty != 195 {
			t.Fatalf("expected mie stock 195 after settlement, got %d", g.StockQty)
		}
	}
}

func TestSettleBatchRejectsCombinedCreditOverdraft(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")
	agus := anggotaCtx("agus", "mbr-agus")

	// Agus seeds with balance 8000.00. Each order alone fits; together they
	// draw 10400.00 and must fail as one batch.
	first, err := svc.SubmitOrder(agus, domain.OrderCreateRequest{
		PaymentMethod: "credit",
		Lines:         []domain.CartLine{{GoodID: "good-kopi-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("submit first order failed: %v", err)
	}
	second, err := svc.SubmitOrder(agus, domain.OrderCreateRequest{
		PaymentMethod: "credit",
		Lines:         []domain.CartLine{{GoodID: "good-kopi-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("submit second order failed: %v", err)
	}

	_, err = svc.SettleOrders(kasir, domain.SettleRequest{OrderIDs: []string{first.ID, second.ID}})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance for combined credit batch, got %v", err)
	}

	member, err := svc.GetMember(kasir, "mbr-agus")
	if err != nil {
		t.Fatalf("get member failed: %v", err)
	}
	if member.BalanceCents != 800000 || member.DebtCents != 0 {
		t.Fatalf("expected ledger untouched (800000/0), got %d/%d", member.BalanceCents, member.DebtCents)
	}

	pending, err := svc.ListOrders(kasir, domain.OrderStatusPending, 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected both orders still pending, got %d", len(pending))
	}
}

func TestDebtPaymentApprovalMovesLedger(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")

	// Sari seeds with debt 20000.00 and balance 125000.00.
	payment, err := svc.RequestDebtPayment(anggotaCtx("sari", "mbr-sari"), "", domain.DebtPaymentRequest{AmountCents: 2000000})
	if err != nil {
		t.Fatalf("request debt payment failed: %v", err)
	}
	if payment.Status != domain.ApprovalPending {
		t.Fatalf("expected pending status, got %s", payment.Status)
	}

	resolved, err := svc.ResolveDebtPayment(kasir, payment.ID, domain.ResolveRequest{Decision: "approve"})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if resolved.Status != domain.ApprovalApproved || resolved.ResolvedBy != "kasir" {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}

	sari, err := svc.GetMember(kasir, "mbr-sari")
	if err != nil {
		t.Fatalf("get member failed: %v", err)
	}
	if sari.DebtCents != 0 {
		t.Fatalf("expected debt cleared, got %d", sari.DebtCents)
	}
	if sari.BalanceCents != 12500000+2000000 {
		t.Fatalf("expected balance restored to %d, got %d", 12500000+2000000, sari.BalanceCents)
	}

	// A second approval of the same request must conflict.
	if _, err := svc.ResolveDebtPayment(kasir, payment.ID, domain.ResolveRequest{Decision: "approve"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on double resolve, got %v", err)
	}
}

func TestDebtPaymentApprovalRejectsOverpayment(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")

	payment, err := svc.RequestDebtPayment(anggotaCtx("sari", "mbr-sari"), "", domain.DebtPaymentRequest{AmountCents: 2500000})
	if err != nil {
		t.Fatalf("request debt payment failed: %v", err)
	}

	_, err = svc.ResolveDebtPayment(kasir, payment.ID, domain.ResolveRequest{Decision: "approve"})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance for overpayment, got %v", err)
	}

	sari, err := svc.GetMember(kasir, "mbr-sari")
	if err != nil {
		t.Fatalf("get member failed: %v", err)
	}
	if sari.DebtCents != 2000000 {
		t.Fatalf("expected debt untouched at 2000000, got %d", sari.DebtCents)
	}
}

func TestDebtPaymentRejectionLeavesLedger(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")

	payment, err := svc.RequestDebtPayment(anggotaCtx("sari", "mbr-sari"), "", domain.DebtPaymentRequest{AmountCents: 1000000})
	if err != nil {
		t.Fatalf("request debt payment failed: %v", err)
	}

	resolved, err := svc.ResolveDebtPayment(kasir, payment.ID, domain.ResolveRequest{Decision: "reject"})
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if resolved.Status != domain.ApprovalRejected {
		t.Fatalf("expected rejected status, got %s", resolved.Status)
	}

	sari, err := svc.GetMember(kasir, "mbr-sari")
	if err != nil {
		t.Fatalf("get member failed: %v", err)
	}
	if sari.DebtCents != 2000000 || sari.BalanceCents != 12500000 {
		t.Fatalf("ledger should be untouched after rejection, got balance=%d debt=%d", sari.BalanceCents, sari.DebtCents)
	}
}

func TestCashDepositApprovalFlow(t *testing.T) {
	svc := newTestService()

	deposit, err := svc.CreateCashDeposit(kasirCtx("kasir"), domain.CashDepositRequest{AmountCents: 50000000})
	if err != nil {
		t.Fatalf("create deposit failed: %v", err)
	}
	if deposit.Status != domain.ApprovalPending || deposit.Cashier != "kasir" {
		t.Fatalf("unexpected deposit: %+v", deposit)
	}

	// Kasir must not approve deposits.
	if _, err := svc.ApproveCashDeposit(kasirCtx("kasir"), deposit.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden for kasir approval, got %v", err)
	}

	approved, err := svc.ApproveCashDeposit(adminCtx(), deposit.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != domain.ApprovalApproved || approved.ApprovedBy != "admin" {
		t.Fatalf("unexpected approval: %+v", approved)
	}

	if _, err := svc.ApproveCashDeposit(adminCtx(), deposit.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on double approval, got %v", err)
	}
}

func TestHandoverOnlyReceiverResolves(t *testing.T) {
	svc := newTestService()

	handover, err := svc.CreateHandover(kasirCtx("kasir"), domain.HandoverCreateRequest{
		ToCashier: "kasir2",
		Lines: []domain.HandoverLine{
			{GoodID: "good-gula-01", ExpectedQty: 60, ActualQty: 58},
		},
	})
	if err != nil {
		t.Fatalf("create handover failed: %v", err)
	}
	if handover.Lines[0].VarianceQty != -2 {
		t.Fatalf("expected variance -2, got %d", handover.Lines[0].VarianceQty)
	}

	// The initiating cashier cannot resolve their own handover.
	if _, err := svc.ResolveHandover(kasirCtx("kasir"), handover.ID, domain.ResolveRequest{Decision: "approve"}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden for initiator, got %v", err)
	}

	resolved, err := svc.ResolveHandover(kasirCtx("kasir2"), handover.ID, domain.ResolveRequest{Decision: "approve"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Status != domain.ApprovalApproved {
		t.Fatalf("expected approved, got %s", resolved.Status)
	}
}

func TestHandoverRejectionRequiresReason(t *testing.T) {
	svc := newTestService()

	handover, err := svc.CreateHandover(kasirCtx("kasir"), domain.HandoverCreateRequest{
		ToCashier: "kasir2",
		Lines: []domain.HandoverLine{
			{GoodID: "good-mie-01", ExpectedQty: 200, ActualQty: 200},
		},
	})
	if err != nil {
		t.Fatalf("create handover failed: %v", err)
	}

	if _, err := svc.ResolveHandover(kasirCtx("kasir2"), handover.ID, domain.ResolveRequest{Decision: "reject"}); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty reason, got %v", err)
	}

	resolved, err := svc.ResolveHandover(kasirCtx("kasir2"), handover.ID, domain.ResolveRequest{Decision: "reject", Reason: "count mismatch on gula"})
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if resolved.Status != domain.ApprovalRejected || resolved.Reason == "" {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
}

func TestHandoverToSelfRejected(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateHandover(kasirCtx("kasir"), domain.HandoverCreateRequest{
		ToCashier: "kasir",
		Lines:     []domain.HandoverLine{{GoodID: "good-mie-01", ExpectedQty: 1, ActualQty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for self handover, got %v", err)
	}
}

func TestNormalizePaymentMethod(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"cash", "cash"},
		{" Cash ", "cash"},
		{"E-Wallet", "ewallet"},
		{"QR", "qr"},
		{"QRIS", "qr"},
		{"TRANSFER", "transfer"},
		{"credit", "credit"},
		{"gopay", "cash"},
		{"", "cash"},
		{"123", "cash"},
	}
	for _, tc := range cases {
		if got := NormalizePaymentMethod(tc.in); got != tc.want {
			t.Fatalf("normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMemberOnlySeesOwnOrders(t *testing.T) {
	svc := newTestService()

	budiOrder, err := svc.SubmitOrder(anggotaCtx("budi", "mbr-budi"), domain.OrderCreateRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CartLine{{GoodID: "good-mie-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("submit budi order failed: %v", err)
	}
	if _, err := svc.SubmitOrder(anggotaCtx("sari", "mbr-sari"), domain.OrderCreateRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CartLine{{GoodID: "good-kopi-01", Qty: 1}},
	}); err != nil {
		t.Fatalf("submit sari order failed: %v", err)
	}

	orders, err := svc.ListOrders(anggotaCtx("budi", "mbr-budi"), "", 10)
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != budiOrder.ID {
		t.Fatalf("expected only budi's order, got %+v", orders)
	}

	_, err = svc.GetOrder(anggotaCtx("sari", "mbr-sari"), budiOrder.ID)
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden reading another member's order, got %v", err)
	}
}

func TestShuYearSummaryReportsDrift(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")

	if _, err := svc.RingUpSale(kasir, domain.RingUpRequest{
		MemberID:      "mbr-budi",
		PaymentMethod: "cash",
		Lines:         []domain.CartLine{{GoodID: "good-beras-01", Qty: 1}},
	}); err != nil {
		t.Fatalf("ring up failed: %v", err)
	}

	year := timeNowYear()
	summary, err := svc.ShuYearSummary(adminCtx(), year)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.TotalSixtyCents != 360000 {
		t.Fatalf("expected total sixty 360000, got %d", summary.TotalSixtyCents)
	}

	for _, entry := range summary.Members {
		if entry.MemberID == "mbr-budi" {
			if entry.ShareCount != 1 || entry.SharesSumCents != 360000 {
				t.Fatalf("unexpected budi summary: %+v", entry)
			}
			// Counter and ledger move together, so drift must be zero.
			if entry.DriftCents != 0 {
				t.Fatalf("expected zero drift, got %d", entry.DriftCents)
			}
		}
	}
}

func TestDailyReportAggregatesSettledOrders(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")

	if _, err := svc.RingUpSale(kasir, domain.RingUpRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CartLine{{GoodID: "good-mie-01", Qty: 4}},
	}); err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}
	if _, err := svc.RingUpSale(kasir, domain.RingUpRequest{
		MemberID:      "mbr-budi",
		PaymentMethod: "qr",
		Lines:         []domain.CartLine{{GoodID: "good-kopi-01", Qty: 10}},
	}); err != nil {
		t.Fatalf("qr sale failed: %v", err)
	}

	report, err := svc.DailyReport(kasir, timeNowDate())
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if report.OrdersSettled != 2 {
		t.Fatalf("expected 2 settled orders, got %d", report.OrdersSettled)
	}
	// Mie: 4 x 3500.00, kopi: 10 x 2600.00.
	if report.GrossSalesCents != 4*350000+10*260000 {
		t.Fatalf("unexpected gross sales %d", report.GrossSalesCents)
	}
	if len(report.ByPayment) != 2 {
		t.Fatalf("expected 2 payment buckets, got %d", len(report.ByPayment))
	}
}

func TestGoodsCrudRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateGood(kasirCtx("kasir"), domain.GoodCreateRequest{
		Name: "Kecap", CostCents: 100000, PriceCents: 130000, InitialStock: 10,
	})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden for kasir, got %v", err)
	}

	created, err := svc.CreateGood(adminCtx(), domain.GoodCreateRequest{
		Name: "Kecap", CostCents: 100000, PriceCents: 130000, InitialStock: 10,
	})
	if err != nil {
		t.Fatalf("create good failed: %v", err)
	}

	newPrice := int64(140000)
	updated, err := svc.UpdateGood(adminCtx(), created.ID, domain.GoodUpdateRequest{PriceCents: &newPrice})
	if err != nil {
		t.Fatalf("update good failed: %v", err)
	}
	if updated.PriceCents != newPrice {
		t.Fatalf("expected price %d, got %d", newPrice, updated.PriceCents)
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	svc := newTestService()
	kasir := kasirCtx("kasir")

	if _, err := svc.RingUpSale(kasir, domain.RingUpRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CartLine{{GoodID: "good-teh-01", Qty: 1}},
	}); err != nil {
		t.Fatalf("ring up failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), timeNowDate(), 50)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}

	found := false
	for _, entry := range logs {
		if entry.Action == "sale_ring_up" && entry.ActorUsername == "kasir" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sale_ring_up audit entry, got %+v", logs)
	}
}
