// Package categorize remembers how raw bank statement texts should be
// described and categorized in the ledger.
package categorize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

type Rule struct {
	ID                   uuid.UUID
	RawPattern           string
	PreferredDescription string
	Category             string
	CreatedAt            time.Time
}

var (
	ErrNotFound    = apperr.NotFound("rule not found")
	ErrInvalidRule = apperr.Validation("pattern and description are required")
)

type Repository interface {
	// FindMatch returns the most specific rule whose pattern occurs in
	// rawDescription, ignoring case, or nil when none does.
	FindMatch(ctx context.Context, rawDescription string) (*Rule, error)
	CreateRule(ctx context.Context, r *Rule) error
	ListRules(ctx context.Context) ([]*Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Suggest tries to find a rule for the given raw description.
// Returns nil if no match found.
func (s *Service) Suggest(ctx context.Context, rawDescription string) (*Rule, error) {
	return s.repo.FindMatch(ctx, rawDescription)
}

// Learn remembers a new mapping from a raw pattern.
func (s *Service) Learn(ctx context.Context, rawPattern, preferredDescription, category string) (*Rule, error) {
	r := &Rule{
		RawPattern:           strings.TrimSpace(rawPattern),
		PreferredDescription: strings.TrimSpace(preferredDescription),
		Category:             strings.TrimSpace(category),
	}

	if r.RawPattern == "" || r.PreferredDescription == "" {
		return nil, ErrInvalidRule
	}

	if r.Category == "" {
		r.Category = ledger.CategoryOther
	}

	if err := s.repo.CreateRule(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Service) List(ctx context.Context) ([]*Rule, error) {
	return s.repo.ListRules(ctx)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteRule(ctx, id)
}

// Apply replaces description and category of imported rows that still carry
// their raw bank text. Rows the operator already edited are left alone.
func (s *Service) Apply(ctx context.Context, params []ledger.CreateParams) ([]ledger.CreateParams, error) {
	out := make([]ledger.CreateParams, len(params))

	for i, p := range params {
		out[i] = p

		if p.RawDescription == "" || p.Description != p.RawDescription {
			continue
		}

		rule, err := s.repo.FindMatch(ctx, p.RawDescription)
		if err != nil {
			return nil, fmt.Errorf("finding match for row %d: %w", i+1, err)
		}

		if rule == nil {
			continue
		}

		out[i].Description = rule.PreferredDescription
		out[i].Category = rule.Category
	}

	return out, nil
}
