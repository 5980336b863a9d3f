package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTransaction reads a transaction row from the scanner.
// Expected column order: id, amount, type, description, raw_description, category, date, member_id,
// event_id, receipt_url, receipt_key, created_at, payment_request_id, member_name
func scanTransaction(s scanner) (*ledger.Transaction, error) {
	var t ledger.Transaction

	var typeStr string

	var receiptURL, receiptKey, memberName sql.NullString

	if err := s.Scan(
		&t.ID, &t.Amount, &typeStr, &t.Description, &t.RawDescription, &t.Category, &t.Date,
		&t.MemberID, &t.EventID, &receiptURL, &receiptKey, &t.CreatedAt,
		&t.PaymentRequestID, &memberName,
	); err != nil {
		return nil, err
	}

	t.Type = ledger.Type(typeStr)
	t.ReceiptURL = receiptURL.String
	t.ReceiptKey = receiptKey.String
	t.MemberName = memberName.String

	return &t, nil
}

const selectTransactionColumns = `
	t.id, t.amount, t.type, t.description, t.raw_description, t.category, t.date, t.member_id,
	t.event_id, t.receipt_url, t.receipt_key, t.created_at, pr.id AS payment_request_id, m.name AS member_name
`

const fromTransactions = `
	FROM transactions t
	LEFT JOIN members m ON t.member_id = m.id
	LEFT JOIN payment_requests pr ON pr.transaction_id = t.id
`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + fromTransactions + ` WHERE t.id = $1`

	t, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + fromTransactions + ` WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.MemberID != nil {
		query += fmt.Sprintf(" AND t.member_id = $%d", argIdx)

		args = append(args, *filter.MemberID)
		argIdx++
	}

	if filter.Category != nil {
		query += fmt.Sprintf(" AND t.category = $%d", argIdx)

		args = append(args, *filter.Category)
		argIdx++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND t.date >= $%d", argIdx)

		args = append(args, *filter.StartDate)
		argIdx++
	}

	if until := filter.Until(); until != nil {
		query += fmt.Sprintf(" AND t.date < $%d", argIdx)

		args = append(args, *until)
		argIdx++
	}

	query += " ORDER BY t.date DESC, t.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*ledger.Transaction

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}

	return txs, nil
}

func (s *Store) CountByReceiptKey(ctx context.Context, key string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE receipt_key = $1`, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting receipt references: %w", err)
	}

	return n, nil
}

func (s *Store) Begin(ctx context.Context) (ledger.Tx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return WrapTx(dbTx), nil
}

// Tx implements ledger.Tx on a database transaction. Other stores embed it
// to write ledger entries inside their own transactions.
type Tx struct {
	tx *sql.Tx
}

func WrapTx(dbTx *sql.Tx) *Tx {
	return &Tx{tx: dbTx}
}

func (t *Tx) SQL() *sql.Tx    { return t.tx }
func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

const insertTransaction = `
	INSERT INTO transactions (amount, type, description, raw_description, category, date, member_id, event_id, receipt_url, receipt_key, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	RETURNING id, created_at
`

func insert(ctx context.Context, q *sql.Tx, t *ledger.Transaction) error {
	err := q.QueryRowContext(ctx, insertTransaction,
		t.Amount,
		t.Type,
		t.Description,
		t.RawDescription,
		t.Category,
		t.Date,
		t.MemberID,
		t.EventID,
		nullString(t.ReceiptURL),
		nullString(t.ReceiptKey),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}

	return nil
}

func (t *Tx) CreateTransaction(ctx context.Context, tr *ledger.Transaction) error {
	return insert(ctx, t.tx, tr)
}

func (t *Tx) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}

	if n == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

func adjustBalance(ctx context.Context, q *sql.Tx, memberID uuid.UUID, delta decimal.Decimal) error {
	res, err := q.ExecContext(ctx,
		`UPDATE members SET balance = balance + $1, updated_at = NOW() WHERE id = $2`, delta, memberID)
	if err != nil {
		return fmt.Errorf("adjusting balance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjusting balance: %w", err)
	}

	if n == 0 {
		return ledger.ErrMemberNotFound
	}

	return nil
}

func (t *Tx) AdjustBalance(ctx context.Context, memberID uuid.UUID, delta decimal.Decimal) error {
	return adjustBalance(ctx, t.tx, memberID, delta)
}

func (t *Tx) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + fromTransactions + ` WHERE t.id = $1 FOR UPDATE OF t`

	tr, err := scanTransaction(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tr, nil
}

func (t *Tx) ReleasePaymentRequest(ctx context.Context, transactionID uuid.UUID) error {
	query := `
		UPDATE payment_requests
		SET status = 'PENDING', transaction_id = NULL, version = version + 1, updated_at = NOW()
		WHERE transaction_id = $1
		RETURNING member_id, category, due_date
	`

	var (
		memberID uuid.UUID
		category string
		dueDate  time.Time
	)

	err := t.tx.QueryRowContext(ctx, query, transactionID).Scan(&memberID, &category, &dueDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		return fmt.Errorf("releasing payment request: %w", err)
	}

	if category != ledger.CategoryMembershipFee {
		return nil
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE payments SET status = 'UNPAID', amount = NULL, paid_at = NULL
		WHERE member_id = $1 AND period = $2
	`, memberID, dueDate.Format("2006-01"))
	if err != nil {
		return fmt.Errorf("reverting payment period: %w", err)
	}

	return nil
}

func (t *Tx) DeleteAllTransactions(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `DELETE FROM transactions RETURNING receipt_key`)
	if err != nil {
		return nil, fmt.Errorf("deleting transactions: %w", err)
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var key sql.NullString
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning receipt key: %w", err)
		}

		if key.Valid && key.String != "" {
			keys = append(keys, key.String)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deleted transactions: %w", err)
	}

	return keys, nil
}

func (t *Tx) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}

	return nil
}

func (t *Tx) ResetBalances(ctx context.Context) error {
	return t.exec(ctx, "resetting balances",
		`UPDATE members SET balance = 0, updated_at = NOW() WHERE balance <> 0`)
}

func (t *Tx) ResetPaymentRequests(ctx context.Context) error {
	return t.exec(ctx, "resetting payment requests", `
		UPDATE payment_requests
		SET status = 'PENDING', transaction_id = NULL, version = version + 1, updated_at = NOW()
		WHERE transaction_id IS NOT NULL
	`)
}

func (t *Tx) ResetPayments(ctx context.Context) error {
	return t.exec(ctx, "resetting payments",
		`UPDATE payments SET status = 'UNPAID', amount = NULL, paid_at = NULL`)
}

func (t *Tx) RecalculateBalances(ctx context.Context) ([]ledger.Drift, error) {
	// Blocks concurrent ledger writes until commit so the sums stay current.
	if err := t.exec(ctx, "locking transactions", `LOCK TABLE transactions IN SHARE MODE`); err != nil {
		return nil, err
	}

	query := `
		WITH sums AS (
			SELECT m.id, m.balance AS previous,
				COALESCE(SUM(CASE WHEN t.type = 'income' THEN t.amount ELSE -t.amount END), 0) AS current
			FROM members m
			LEFT JOIN transactions t ON t.member_id = m.id
			GROUP BY m.id, m.balance
		)
		UPDATE members m
		SET balance = s.current, updated_at = NOW()
		FROM sums s
		WHERE m.id = s.id AND m.balance <> s.current
		RETURNING m.id, s.previous, s.current
	`

	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recalculating balances: %w", err)
	}
	defer rows.Close()

	var drifts []ledger.Drift

	for rows.Next() {
		var d ledger.Drift
		if err := rows.Scan(&d.MemberID, &d.Previous, &d.Current); err != nil {
			return nil, fmt.Errorf("scanning drift: %w", err)
		}

		drifts = append(drifts, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating drifts: %w", err)
	}

	return drifts, nil
}

func (t *Tx) MemberBalance(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := t.tx.QueryRowContext(ctx, `SELECT balance FROM members WHERE id = $1 FOR UPDATE`, memberID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ledger.ErrMemberNotFound
		}

		return decimal.Zero, fmt.Errorf("reading balance: %w", err)
	}

	return balance, nil
}

func (t *Tx) SetBalance(ctx context.Context, memberID uuid.UUID, balance decimal.Decimal) error {
	return t.exec(ctx, "setting balance",
		`UPDATE members SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, memberID)
}

func importLockKey(minDate, maxDate time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(minDate.Format("2006-01-02")))
	h.Write([]byte{0})
	h.Write([]byte(maxDate.Format("2006-01-02")))

	return int64(h.Sum64())
}

type importTx struct {
	tx *sql.Tx
}

func (s *Store) BeginImport(ctx context.Context, minDate, maxDate time.Time) (ledger.ImportTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning import tx: %w", err)
	}

	lockKey := importLockKey(minDate, maxDate)
	if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("acquiring import lock: %w", err)
	}

	return &importTx{tx: dbTx}, nil
}

func (itx *importTx) Commit() error   { return itx.tx.Commit() }
func (itx *importTx) Rollback() error { return itx.tx.Rollback() }

func (itx *importTx) FindDuplicates(ctx context.Context, params []ledger.CreateParams) ([]*ledger.Transaction, error) {
	if len(params) == 0 {
		return nil, nil
	}

	type lookupKey struct {
		Date           string
		Amount         string
		Type           ledger.Type
		RawDescription string
	}

	minDate := params[0].Date
	maxDate := params[0].Date
	keySet := make(map[lookupKey]struct{}, len(params))

	for _, p := range params {
		if p.Date.Before(minDate) {
			minDate = p.Date
		}

		if p.Date.After(maxDate) {
			maxDate = p.Date
		}

		keySet[lookupKey{
			Date:           p.Date.Format("2006-01-02"),
			Amount:         p.Amount.StringFixed(2),
			Type:           p.Type,
			RawDescription: p.RawDescription,
		}] = struct{}{}
	}

	query := `SELECT ` + selectTransactionColumns + fromTransactions + `
		WHERE t.date >= $1 AND t.date < $2
		ORDER BY t.date ASC`

	rows, err := itx.tx.QueryContext(ctx, query, minDate, maxDate.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("finding duplicates: %w", err)
	}
	defer rows.Close()

	var duplicates []*ledger.Transaction

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		k := lookupKey{
			Date:           t.Date.Format("2006-01-02"),
			Amount:         t.Amount.StringFixed(2),
			Type:           t.Type,
			RawDescription: t.RawDescription,
		}

		if _, found := keySet[k]; !found {
			continue
		}

		duplicates = append(duplicates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating duplicate rows: %w", err)
	}

	return duplicates, nil
}

func (itx *importTx) CreateTransactions(ctx context.Context, txs []*ledger.Transaction) error {
	for _, t := range txs {
		if err := insert(ctx, itx.tx, t); err != nil {
			return err
		}
	}

	return nil
}

func (itx *importTx) AdjustBalance(ctx context.Context, memberID uuid.UUID, delta decimal.Decimal) error {
	return adjustBalance(ctx, itx.tx, memberID, delta)
}
