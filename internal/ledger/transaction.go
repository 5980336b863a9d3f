package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
)

// Type is the direction of a transaction. Amounts are always stored as
// non-negative magnitudes; Type carries the sign.
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

func (t Type) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

const (
	CategoryManualAdjustment = "MANUAL_ADJUSTMENT"
	CategoryMembershipFee    = "MEMBERSHIP_FEE"
	CategoryEvent            = "EVENT"
	CategoryOther            = "OTHER"
)

const splitSuffix = " (Splittet)"

type Transaction struct {
	ID             uuid.UUID
	Amount         decimal.Decimal
	Type           Type
	Description    string
	RawDescription string // bank statement text for imported rows
	Category       string
	Date           time.Time
	MemberID       *uuid.UUID
	EventID        *uuid.UUID
	ReceiptURL     string
	ReceiptKey     string
	CreatedAt      time.Time

	PaymentRequestID *uuid.UUID // Loaded via JOIN
	MemberName       string     // Loaded via JOIN
}

// Signed returns the amount with income positive and expense negative.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type == TypeExpense {
		return t.Amount.Neg()
	}

	return t.Amount
}

// FromSigned splits a signed amount into a direction and a magnitude.
func FromSigned(d decimal.Decimal) (Type, decimal.Decimal) {
	if d.IsNegative() {
		return TypeExpense, d.Neg()
	}

	return TypeIncome, d
}

// Drift is a member balance corrected by a recalculation.
type Drift struct {
	MemberID uuid.UUID
	Previous decimal.Decimal
	Current  decimal.Decimal
}

var (
	ErrNotFound            = apperr.NotFound("transaction not found")
	ErrMemberNotFound      = apperr.NotFound("member not found")
	ErrNegativeAmount      = apperr.Validation("amount must not be negative")
	ErrInvalidType         = apperr.Validation("type must be income or expense")
	ErrNoRecipients        = apperr.Validation("at least one member is required")
	ErrReasonRequired      = apperr.Validation("a reason is required")
	ErrDescriptionRequired = apperr.Validation("description is required")
)
