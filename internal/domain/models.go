package domain

import "time"

// Role is the closed set of account roles. Role checks always compare
// against these constants, never free-form strings.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleKasir   Role = "kasir"
	RoleAnggota Role = "anggota"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleAdmin, RoleKasir, RoleAnggota:
		return Role(raw), true
	default:
		return "", false
	}
}

type Actor struct {
	Username string
	Role     Role
	MemberID string
}

type Member struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Name            string    `json:"name"`
	BalanceCents    int64     `json:"balance_cents"`
	DebtCents       int64     `json:"debt_cents"`
	ShuAccruedCents int64     `json:"shu_accrued_cents"`
	CreatedAt       time.Time `json:"created_at"`
}

type Good struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	StockQty   int    `json:"stock_qty"`
	CostCents  int64  `json:"cost_cents"`
	PriceCents int64  `json:"price_cents"`
	Active     bool   `json:"active"`
}

type GoodCreateRequest struct {
	Name         string `json:"name" validate:"required"`
	CostCents    int64  `json:"cost_cents" validate:"gt=0"`
	PriceCents   int64  `json:"price_cents" validate:"gt=0"`
	InitialStock int    `json:"initial_stock" validate:"gte=0"`
}

type GoodUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	CostCents  *int64  `json:"cost_cents,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	StockQty   *int    `json:"stock_qty,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type MemberCreateRequest struct {
	Username            string `json:"username" validate:"required,min=3"`
	Name                string `json:"name" validate:"required"`
	Password            string `json:"password" validate:"required,min=6"`
	InitialBalanceCents int64  `json:"initial_balance_cents" validate:"gte=0"`
}

type CartLine struct {
	GoodID string `json:"good_id" validate:"required"`
	Qty    int    `json:"qty" validate:"gt=0"`
}

type OrderLine struct {
	GoodID         string `json:"good_id"`
	GoodName       string `json:"good_name,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	MarginCents    int64  `json:"margin_cents"`
}

type Order struct {
	ID            string      `json:"id"`
	MemberID      string      `json:"member_id,omitempty"`
	PaymentMethod string      `json:"payment_method"`
	Status        string      `json:"status"`
	TotalCents    int64       `json:"total_cents"`
	MarginCents   int64       `json:"margin_cents"`
	SettledBy     string      `json:"settled_by,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	SettledAt     *time.Time  `json:"settled_at,omitempty"`
	Lines         []OrderLine `json:"lines"`
}

// OrderCreateRequest is a member-submitted cart. It stays pending until a
// cashier settles it.
type OrderCreateRequest struct {
	PaymentMethod string     `json:"payment_method"`
	Lines         []CartLine `json:"lines" validate:"min=1,dive"`
}

type RingUpRequest struct {
	MemberID      string     `json:"member_id,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	Lines         []CartLine `json:"lines" validate:"min=1,dive"`
}

type SettleRequest struct {
	OrderIDs []string `json:"order_ids" validate:"min=1,dive,required"`
}

// OrderSettlement reports the outcome of finalizing one order: the amounts
// applied to the member ledger and the recorded profit split.
type OrderSettlement struct {
	OrderID     string `json:"order_id"`
	MemberID    string `json:"member_id,omitempty"`
	Status      string `json:"status"`
	TotalCents  int64  `json:"total_cents"`
	MarginCents int64  `json:"margin_cents"`
	SixtyCents  int64  `json:"shu_sixty_cents"`
	ThirtyCents int64  `json:"shu_thirty_cents"`
	TenCents    int64  `json:"shu_ten_cents"`
	SettledBy   string `json:"settled_by"`
	SettledAt   string `json:"settled_at"`
}

type SettleResponse struct {
	Settlements []OrderSettlement `json:"settlements"`
}

// ShuShare is one append-only profit-share record. A member's yearly SHU is
// the SUM over these rows; Member.ShuAccruedCents is the separately mutated
// running counter the legacy data model also carries.
type ShuShare struct {
	ID          string    `json:"id"`
	MemberID    string    `json:"member_id"`
	OrderID     string    `json:"order_id"`
	Year        int       `json:"year"`
	SixtyCents  int64     `json:"sixty_cents"`
	ThirtyCents int64     `json:"thirty_cents"`
	TenCents    int64     `json:"ten_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type ShuMemberSummary struct {
	MemberID       string `json:"member_id"`
	Name           string `json:"name"`
	ShareCount     int    `json:"share_count"`
	SharesSumCents int64  `json:"shares_sum_cents"`
	AccruedCents   int64  `json:"accrued_cents"`
	DriftCents     int64  `json:"drift_cents"`
}

type ShuYearSummary struct {
	Year             int                `json:"year"`
	TotalSixtyCents  int64              `json:"total_sixty_cents"`
	TotalThirtyCents int64              `json:"total_thirty_cents"`
	TotalTenCents    int64              `json:"total_ten_cents"`
	Members          []ShuMemberSummary `json:"members"`
}

type DebtPayment struct {
	ID          string     `json:"id"`
	MemberID    string     `json:"member_id"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// DebtPaymentRequest files a repayment for approval. MemberID is ignored for
// anggota callers, who can only file for themselves.
type DebtPaymentRequest struct {
	MemberID    string `json:"member_id,omitempty"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
}

type ResolveRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason,omitempty"`
}

type CashDeposit struct {
	ID          string     `json:"id"`
	Cashier     string     `json:"cashier"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
}

type CashDepositRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"gt=0"`
}

type HandoverLine struct {
	GoodID      string `json:"good_id" validate:"required"`
	ExpectedQty int    `json:"expected_qty" validate:"gte=0"`
	ActualQty   int    `json:"actual_qty" validate:"gte=0"`
	VarianceQty int    `json:"variance_qty"`
}

type Handover struct {
	ID          string         `json:"id"`
	FromCashier string         `json:"from_cashier"`
	ToCashier   string         `json:"to_cashier"`
	Lines       []HandoverLine `json:"lines"`
	Status      string         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

type HandoverCreateRequest struct {
	ToCashier string         `json:"to_cashier" validate:"required"`
	Lines     []HandoverLine `json:"lines" validate:"min=1,dive"`
}

type DailyReportPayment struct {
	PaymentMethod string `json:"payment_method"`
	Orders        int64  `json:"orders"`
	TotalCents    int64  `json:"total_cents"`
}

type DailyReport struct {
	Date              string               `json:"date"`
	OrdersSettled     int64                `json:"orders_settled"`
	GrossSalesCents   int64                `json:"gross_sales_cents"`
	MarginCents       int64                `json:"margin_cents"`
	ShuAllocatedCents int64                `json:"shu_allocated_cents"`
	ByPayment         []DailyReportPayment `json:"by_payment"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	MemberID    string `json:"member_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username" validate:"required,min=4"`
	Password string `json:"password" validate:"required,min=6"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	MemberID  string
	Active    bool
	CreatedAt time.Time
}

const (
	OrderStatusPending   = "pending"
	OrderStatusInProcess = "in_process"
	OrderStatusCompleted = "completed"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

const (
	PaymentCash     = "cash"
	PaymentQR       = "qr"
	PaymentEwallet  = "ewallet"
	PaymentTransfer = "transfer"
	PaymentCredit   = "credit"
)
