package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/member"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// Expected column order: id, external_id, name, email, role, membership_type, balance, active, created_at, updated_at
func scanMember(s scanner) (*member.Member, error) {
	var m member.Member

	var role, membershipType string

	if err := s.Scan(
		&m.ID, &m.ExternalID, &m.Name, &m.Email, &role, &membershipType,
		&m.Balance, &m.Active, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.Role = member.Role(role)
	m.MembershipType = member.MembershipType(membershipType)

	return &m, nil
}

const selectMemberColumns = `
	id, external_id, name, email, role, membership_type, balance, active, created_at, updated_at
`

func (s *Store) CreateMember(ctx context.Context, m *member.Member) error {
	query := `
		INSERT INTO members (external_id, name, email, role, membership_type, balance, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		m.ExternalID,
		m.Name,
		m.Email,
		m.Role,
		m.MembershipType,
		m.Balance,
		m.Active,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return member.ErrDuplicate
		}

		return fmt.Errorf("creating member: %w", err)
	}

	return nil
}

func (s *Store) GetMember(ctx context.Context, id uuid.UUID) (*member.Member, error) {
	query := `SELECT ` + selectMemberColumns + ` FROM members WHERE id = $1`

	m, err := scanMember(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, member.ErrNotFound
		}

		return nil, fmt.Errorf("getting member: %w", err)
	}

	return m, nil
}

func (s *Store) GetMemberByExternalID(ctx context.Context, externalID string) (*member.Member, error) {
	query := `SELECT ` + selectMemberColumns + ` FROM members WHERE external_id = $1`

	m, err := scanMember(s.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, member.ErrNotFound
		}

		return nil, fmt.Errorf("getting member by external id: %w", err)
	}

	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, filter member.ListFilter) ([]*member.Member, error) {
	query := `SELECT ` + selectMemberColumns + ` FROM members`
	if filter.ActiveOnly {
		query += ` WHERE active`
	}

	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []*member.Member

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}

		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}

	return members, nil
}

func (s *Store) UpdateRole(ctx context.Context, id uuid.UUID, role member.Role) error {
	return s.updateOne(ctx, `UPDATE members SET role = $1, updated_at = NOW() WHERE id = $2`, role, id)
}

func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.updateOne(ctx, `UPDATE members SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
}

func (s *Store) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating member: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating member: %w", err)
	}

	if n == 0 {
		return member.ErrNotFound
	}

	return nil
}

// DeleteMember removes the member together with open requests and period rows.
// Notifications cascade. Members with a balance or referenced by any
// transaction are kept.
func (s *Store) DeleteMember(ctx context.Context, id uuid.UUID) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	var balance decimal.Decimal

	err = dbTx.QueryRowContext(ctx, `SELECT balance FROM members WHERE id = $1 FOR UPDATE`, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return member.ErrNotFound
		}

		return fmt.Errorf("locking member: %w", err)
	}

	if !balance.IsZero() {
		return member.ErrHasFinancialHistory
	}

	var history bool

	err = dbTx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE member_id = $1)
			OR EXISTS (SELECT 1 FROM payment_requests WHERE member_id = $1 AND status = 'PAID')
	`, id).Scan(&history)
	if err != nil {
		return fmt.Errorf("checking financial history: %w", err)
	}

	if history {
		return member.ErrHasFinancialHistory
	}

	for _, stmt := range []string{
		`DELETE FROM payment_requests WHERE member_id = $1`,
		`DELETE FROM payments WHERE member_id = $1`,
		`DELETE FROM members WHERE id = $1`,
	} {
		if _, err := dbTx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("deleting member: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) ListFees(ctx context.Context) ([]member.Fee, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT membership_type, amount FROM membership_fees ORDER BY membership_type`)
	if err != nil {
		return nil, fmt.Errorf("listing fees: %w", err)
	}
	defer rows.Close()

	var fees []member.Fee

	for rows.Next() {
		var (
			f  member.Fee
			mt string
		)

		if err := rows.Scan(&mt, &f.Amount); err != nil {
			return nil, fmt.Errorf("scanning fee: %w", err)
		}

		f.Type = member.MembershipType(mt)
		fees = append(fees, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fees: %w", err)
	}

	return fees, nil
}

func (s *Store) SetFee(ctx context.Context, fee member.Fee) error {
	query := `
		INSERT INTO membership_fees (membership_type, amount, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (membership_type) DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, fee.Type, fee.Amount); err != nil {
		return fmt.Errorf("setting fee: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
