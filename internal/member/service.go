package member

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=member
type Repository interface {
	CreateMember(ctx context.Context, mem *Member) error
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	GetMemberByExternalID(ctx context.Context, externalID string) (*Member, error)
	ListMembers(ctx context.Context, filter ListFilter) ([]*Member, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role Role) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	// DeleteMember removes a member without financial history. Implementations
	// return ErrHasFinancialHistory when transactions or paid requests
	// reference the member, or when its balance is not zero. The checks run
	// under the same lock as the delete.
	DeleteMember(ctx context.Context, id uuid.UUID) error

	ListFees(ctx context.Context) ([]Fee, error)
	SetFee(ctx context.Context, fee Fee) error
}

type Service struct {
	repo        Repository
	fallbackFee decimal.Decimal
}

func NewService(repo Repository, fallbackFee decimal.Decimal) *Service {
	return &Service{repo: repo, fallbackFee: fallbackFee}
}

type CreateParams struct {
	ExternalID     string
	Name           string
	Email          string
	Role           Role
	MembershipType MembershipType
}

type ListFilter struct {
	ActiveOnly bool
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Member, error) {
	params.Name = strings.TrimSpace(params.Name)
	params.ExternalID = strings.TrimSpace(params.ExternalID)

	if params.ExternalID == "" {
		return nil, apperr.Validation("external id is required")
	}

	if params.Name == "" {
		return nil, apperr.Validation("name is required")
	}

	if _, err := mail.ParseAddress(params.Email); err != nil {
		return nil, apperr.Validation("a valid email is required")
	}

	if params.Role == "" {
		params.Role = RoleMember
	}

	if !params.Role.Valid() {
		return nil, ErrInvalidRole
	}

	if params.MembershipType == "" {
		params.MembershipType = TypeStandard
	}

	if !params.MembershipType.Valid() {
		return nil, ErrInvalidType
	}

	m := &Member{
		ExternalID:     params.ExternalID,
		Name:           params.Name,
		Email:          params.Email,
		Role:           params.Role,
		MembershipType: params.MembershipType,
		Balance:        decimal.Zero,
		Active:         true,
	}
	if err := s.repo.CreateMember(ctx, m); err != nil {
		return nil, err
	}

	return m, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Member, error) {
	return s.repo.GetMember(ctx, id)
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*Member, error) {
	return s.repo.GetMemberByExternalID(ctx, externalID)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Member, error) {
	return s.repo.ListMembers(ctx, filter)
}

func (s *Service) ActiveMembers(ctx context.Context) ([]*Member, error) {
	return s.repo.ListMembers(ctx, ListFilter{ActiveOnly: true})
}

func (s *Service) SetRole(ctx context.Context, id uuid.UUID, role Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	return s.repo.UpdateRole(ctx, id, role)
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.Deactivate(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteMember(ctx, id)
}

func (s *Service) ListFees(ctx context.Context) ([]Fee, error) {
	return s.repo.ListFees(ctx)
}

func (s *Service) SetFee(ctx context.Context, t MembershipType, amount decimal.Decimal) error {
	if !t.Valid() {
		return ErrInvalidType
	}

	if amount.IsNegative() {
		return apperr.Validation("fee must not be negative")
	}

	return s.repo.SetFee(ctx, Fee{Type: t, Amount: amount.Round(2)})
}

// FeeSchedule resolves monthly fees per membership type.
type FeeSchedule struct {
	fees     map[MembershipType]decimal.Decimal
	fallback decimal.Decimal
}

// For returns the fee configured for t, or the fallback when none is.
func (f FeeSchedule) For(t MembershipType) decimal.Decimal {
	if fee, ok := f.fees[t]; ok {
		return fee
	}

	return f.fallback
}

// MonthlyFee returns the fee for a single membership type.
func (s *Service) MonthlyFee(ctx context.Context, t MembershipType) (decimal.Decimal, error) {
	schedule, err := s.FeeSchedule(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	return schedule.For(t), nil
}

func (s *Service) FeeSchedule(ctx context.Context) (FeeSchedule, error) {
	fees, err := s.repo.ListFees(ctx)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("listing fees: %w", err)
	}

	schedule := FeeSchedule{
		fees:     make(map[MembershipType]decimal.Decimal, len(fees)),
		fallback: s.fallbackFee,
	}
	for _, f := range fees {
		schedule.fees[f.Type] = f.Amount
	}

	return schedule, nil
}
