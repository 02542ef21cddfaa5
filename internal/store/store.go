package store

import (
	"context"
	"errors"
	"time"

	"kopkasir/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrForbidden           = errors.New("forbidden")
)

type Repository interface {
	ListGoods(ctx context.Context) ([]domain.Good, error)
	CreateGood(ctx context.Context, good domain.Good) (*domain.Good, error)
	GetGoodByID(ctx context.Context, id string) (*domain.Good, error)
	UpdateGood(ctx context.Context, good domain.Good) (*domain.Good, error)

	CreateMember(ctx context.Context, member domain.Member) (*domain.Member, error)
	GetMemberByID(ctx context.Context, id string) (*domain.Member, error)
	ListMembers(ctx context.Context) ([]domain.Member, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status string, limit int) ([]domain.Order, error)

	// SettleOrders finalizes the listed orders in one atomic unit: ledger
	// adjustments for credit sales, profit-share accrual and records, and
	// the status flip to completed. Any failure rolls back every order in
	// the batch.
	SettleOrders(ctx context.Context, orderIDs []string, cashier string, year int, at time.Time) ([]domain.OrderSettlement, error)

	// RingUpSale creates an order from a cashier-entered cart, decrements
	// stock, and settles it, all in one atomic unit.
	RingUpSale(ctx context.Context, order domain.Order, year int, at time.Time) (*domain.OrderSettlement, error)

	CreateDebtPayment(ctx context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error)
	ListDebtPayments(ctx context.Context, status string, memberID string, limit int) ([]domain.DebtPayment, error)
	ResolveDebtPayment(ctx context.Context, id string, cashier string, approve bool, at time.Time) (*domain.DebtPayment, error)

	CreateCashDeposit(ctx context.Context, deposit domain.CashDeposit) (*domain.CashDeposit, error)
	ListCashDeposits(ctx context.Context, status string, limit int) ([]domain.CashDeposit, error)
	ApproveCashDeposit(ctx context.Context, id string, admin string, at time.Time) (*domain.CashDeposit, error)

	CreateHandover(ctx context.Context, handover domain.Handover) (*domain.Handover, error)
	ListHandovers(ctx context.Context, cashier string, limit int) ([]domain.Handover, error)
	ResolveHandover(ctx context.Context, id string, actingCashier string, approve bool, reason string, at time.Time) (*domain.Handover, error)

	ListShuShares(ctx context.Context, memberID string, year int) ([]domain.ShuShare, error)
	GetShuYearSummary(ctx context.Context, year int) (domain.ShuYearSummary, error)

	GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
