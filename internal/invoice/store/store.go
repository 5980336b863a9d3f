package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	ledgerstore "github.com/MrJamesThe3rd/klubb/internal/ledger/store"
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

// Expected column order: id, title, description, amount, category, status, due_date, member_id, event_id,
// transaction_id, batch_id, version, created_at, updated_at, member_name
func scanRequest(s scanner) (*invoice.Request, error) {
	var r invoice.Request

	var category, status string

	var memberName sql.NullString

	if err := s.Scan(
		&r.ID, &r.Title, &r.Description, &r.Amount, &category, &status, &r.DueDate, &r.MemberID, &r.EventID,
		&r.TransactionID, &r.BatchID, &r.Version, &r.CreatedAt, &r.UpdatedAt, &memberName,
	); err != nil {
		return nil, err
	}

	r.Category = invoice.Category(category)
	r.Status = invoice.Status(status)
	r.MemberName = memberName.String

	return &r, nil
}

const selectRequestColumns = `
	pr.id, pr.title, pr.description, pr.amount, pr.category, pr.status, pr.due_date, pr.member_id, pr.event_id,
	pr.transaction_id, pr.batch_id, pr.version, pr.created_at, pr.updated_at, m.name AS member_name
`

const fromRequests = `
	FROM payment_requests pr
	LEFT JOIN members m ON pr.member_id = m.id
`

func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (*invoice.Request, error) {
	query := `SELECT ` + selectRequestColumns + fromRequests + ` WHERE pr.id = $1`

	r, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment request: %w", err)
	}

	return r, nil
}

func (s *Store) ListRequests(ctx context.Context, filter invoice.ListFilter) ([]*invoice.Request, error) {
	query := `SELECT ` + selectRequestColumns + fromRequests + ` WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.MemberID != nil {
		query += fmt.Sprintf(" AND pr.member_id = $%d", argIdx)

		args = append(args, *filter.MemberID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND pr.status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Category != nil {
		query += fmt.Sprintf(" AND pr.category = $%d", argIdx)

		args = append(args, *filter.Category)
		argIdx++
	}

	if filter.BatchID != nil {
		query += fmt.Sprintf(" AND pr.batch_id = $%d", argIdx)

		args = append(args, *filter.BatchID)
		argIdx++
	}

	query += " ORDER BY pr.due_date DESC, m.name ASC"

	return collect(s.db.QueryContext(ctx, query, args...))
}

func collect(rows *sql.Rows, err error) ([]*invoice.Request, error) {
	if err != nil {
		return nil, fmt.Errorf("listing payment requests: %w", err)
	}
	defer rows.Close()

	var rs []*invoice.Request

	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment request: %w", err)
		}

		rs = append(rs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payment requests: %w", err)
	}

	return rs, nil
}

func (s *Store) ListPayments(ctx context.Context, period string) ([]*invoice.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id, period, status, amount, paid_at
		FROM payments
		WHERE period = $1
		ORDER BY member_id
	`, period)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var ps []*invoice.Payment

	for rows.Next() {
		var (
			p      invoice.Payment
			status string
		)

		if err := rows.Scan(&p.MemberID, &p.Period, &status, &p.Amount, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}

		p.Status = invoice.PaymentStatus(status)
		ps = append(ps, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payments: %w", err)
	}

	return ps, nil
}

func (s *Store) Begin(ctx context.Context) (invoice.Tx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return &tx{Tx: ledgerstore.WrapTx(dbTx)}, nil
}

// tx reuses the ledger store for the transaction and balance writes.
type tx struct {
	*ledgerstore.Tx
}

func (t *tx) GetRequest(ctx context.Context, id uuid.UUID) (*invoice.Request, error) {
	query := `SELECT ` + selectRequestColumns + fromRequests + ` WHERE pr.id = $1 FOR UPDATE OF pr`

	r, err := scanRequest(t.SQL().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment request: %w", err)
	}

	return r, nil
}

func (t *tx) CreateRequests(ctx context.Context, rs []*invoice.Request) error {
	query := `
		INSERT INTO payment_requests (title, description, amount, category, status, due_date, member_id, event_id, batch_id, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10)
		RETURNING id, version
	`

	for _, r := range rs {
		err := t.SQL().QueryRowContext(ctx, query,
			r.Title,
			r.Description,
			r.Amount,
			r.Category,
			r.Status,
			r.DueDate,
			r.MemberID,
			r.EventID,
			r.BatchID,
			r.CreatedAt,
		).Scan(&r.ID, &r.Version)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch pgErr.Code {
				case "23505":
					return invoice.ErrBatchConflict
				case "23503":
					return ledger.ErrMemberNotFound
				}
			}

			return fmt.Errorf("creating payment request: %w", err)
		}
	}

	return nil
}

func (t *tx) UpdateRequest(ctx context.Context, r *invoice.Request, expected int64) error {
	query := `
		UPDATE payment_requests
		SET status = $1, transaction_id = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND ($4 = 0 OR version = $4)
		RETURNING version, updated_at
	`

	err := t.SQL().QueryRowContext(ctx, query, r.Status, r.TransactionID, r.ID, expected).Scan(&r.Version, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invoice.ErrStaleVersion
		}

		return fmt.Errorf("updating payment request: %w", err)
	}

	return nil
}

func (t *tx) DeleteRequests(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := t.SQL().ExecContext(ctx, `DELETE FROM payment_requests WHERE id = ANY($1) AND status <> 'PAID'`, ids)
	if err != nil {
		return fmt.Errorf("deleting payment requests: %w", err)
	}

	return nil
}

func (t *tx) ListBatch(ctx context.Context, batchID uuid.UUID) ([]*invoice.Request, error) {
	// Serializes generators of the same batch; row locks do not cover rows
	// that do not exist yet.
	if _, err := t.SQL().ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, batchID.String()); err != nil {
		return nil, fmt.Errorf("acquiring batch lock: %w", err)
	}

	query := `SELECT ` + selectRequestColumns + fromRequests + ` WHERE pr.batch_id = $1 ORDER BY m.name FOR UPDATE OF pr`

	return collect(t.SQL().QueryContext(ctx, query, batchID))
}

func (t *tx) UpsertPayment(ctx context.Context, p invoice.Payment) error {
	_, err := t.SQL().ExecContext(ctx, `
		INSERT INTO payments (member_id, period, status, amount, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (member_id, period) DO UPDATE
		SET status = EXCLUDED.status, amount = EXCLUDED.amount, paid_at = EXCLUDED.paid_at
	`, p.MemberID, p.Period, p.Status, p.Amount, p.PaidAt)
	if err != nil {
		return fmt.Errorf("upserting payment: %w", err)
	}

	return nil
}

func (t *tx) EnsurePayments(ctx context.Context, ps []invoice.Payment) error {
	for _, p := range ps {
		_, err := t.SQL().ExecContext(ctx, `
			INSERT INTO payments (member_id, period, status)
			VALUES ($1, $2, 'UNPAID')
			ON CONFLICT (member_id, period) DO NOTHING
		`, p.MemberID, p.Period)
		if err != nil {
			return fmt.Errorf("ensuring payment: %w", err)
		}
	}

	return nil
}

func (t *tx) DeleteUnpaidPayment(ctx context.Context, memberID uuid.UUID, period string) error {
	_, err := t.SQL().ExecContext(ctx, `
		DELETE FROM payments WHERE member_id = $1 AND period = $2 AND status <> 'PAID'
	`, memberID, period)
	if err != nil {
		return fmt.Errorf("deleting payment: %w", err)
	}

	return nil
}
