package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
)

type Category string

const (
	CategoryMembershipFee Category = "MEMBERSHIP_FEE"
	CategoryEvent         Category = "EVENT"
	CategoryOther         Category = "OTHER"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMembershipFee, CategoryEvent, CategoryOther:
		return true
	}

	return false
}

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusWaived  Status = "WAIVED"
)

// Request is a payment request (invoice) issued to one member. A PAID
// request always links the income transaction that settled it.
type Request struct {
	ID            uuid.UUID
	Title         string
	Description   string
	Amount        decimal.Decimal
	Category      Category
	Status        Status
	DueDate       time.Time
	MemberID      uuid.UUID
	EventID       *uuid.UUID
	TransactionID *uuid.UUID
	BatchID       *uuid.UUID
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     *time.Time

	MemberName string // Loaded via JOIN
}

// Period is the membership-fee period the request settles, as YYYY-MM.
func (r *Request) Period() string {
	return r.DueDate.Format("2006-01")
}

type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "PAID"
	PaymentUnpaid PaymentStatus = "UNPAID"
)

// Payment is the per-period settlement row of a member's membership fee.
type Payment struct {
	MemberID uuid.UUID
	Period   string
	Status   PaymentStatus
	Amount   *decimal.Decimal
	PaidAt   *time.Time
}

var (
	ErrNotFound         = apperr.NotFound("payment request not found")
	ErrBatchNotFound    = apperr.NotFound("batch not found")
	ErrAlreadyPaid      = apperr.Conflict("payment request is already paid")
	ErrWaived           = apperr.Conflict("payment request is waived")
	ErrNotPending       = apperr.Conflict("only pending payment requests can be changed")
	ErrPaidNotDeletable = apperr.Conflict("cannot delete a paid payment request, mark it unpaid first")
	ErrBatchHasPaid     = apperr.Conflict("cannot delete batch, some requests are already paid")
	ErrStaleVersion     = apperr.Conflict("payment request was changed by someone else, reload and try again")
	ErrBatchConflict    = apperr.Conflict("batch is being changed concurrently, try again")

	ErrNegativeAmount  = apperr.Validation("amount must not be negative")
	ErrTitleRequired   = apperr.Validation("title is required")
	ErrInvalidCategory = apperr.Validation("invalid category")
	ErrNoRecipients    = apperr.Validation("at least one member is required")
	ErrInvalidPeriod   = apperr.Validation("invalid year or month")
)
