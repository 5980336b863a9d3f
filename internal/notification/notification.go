package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
)

type Type string

const (
	TypeInvoiceCreated    Type = "INVOICE_CREATED"
	TypeInvoicePaid       Type = "INVOICE_PAID"
	TypeBalanceWithdrawal Type = "BALANCE_WITHDRAWAL"
	TypeBalanceAdjusted   Type = "BALANCE_ADJUSTED"
)

// Notification is an informative in-app message for a member. It is never
// part of a financial write.
type Notification struct {
	ID        uuid.UUID
	MemberID  uuid.UUID
	Type      Type
	Title     string
	Message   string
	Link      string // path relative to the public frontend
	Read      bool
	CreatedAt time.Time
}

var ErrNotFound = apperr.NotFound("notification not found")
