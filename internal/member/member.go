package member

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
)

// Role controls what a member may do in the application.
type Role string

const (
	RoleMember    Role = "MEMBER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleModerator, RoleAdmin:
		return true
	}

	return false
}

// MembershipType determines the default monthly fee.
type MembershipType string

const (
	TypeStandard MembershipType = "STANDARD"
	TypeStudent  MembershipType = "STUDENT"
	TypeFamily   MembershipType = "FAMILY"
	TypeHonorary MembershipType = "HONORARY"
)

func (t MembershipType) Valid() bool {
	switch t {
	case TypeStandard, TypeStudent, TypeFamily, TypeHonorary:
		return true
	}

	return false
}

// Member is a club member. Balance is a projection of the member's
// transactions and is only ever changed together with them.
type Member struct {
	ID             uuid.UUID
	ExternalID     string // subject of the identity provider
	Name           string
	Email          string
	Role           Role
	MembershipType MembershipType
	Balance        decimal.Decimal
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// Fee is the configured monthly fee for a membership type.
type Fee struct {
	Type   MembershipType
	Amount decimal.Decimal
}

var (
	ErrNotFound            = apperr.NotFound("member not found")
	ErrDuplicate           = apperr.Conflict("a member with this identity already exists")
	ErrHasFinancialHistory = apperr.Conflict("member has financial history and cannot be deleted")
	ErrInvalidRole         = apperr.Validation("invalid role")
	ErrInvalidType         = apperr.Validation("invalid membership type")
)
