package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/notification"
	"github.com/MrJamesThe3rd/klubb/internal/receipt"
)

// Writer is the part of a ledger transaction that other packages use when a
// ledger entry is a side effect of their own write.
type Writer interface {
	CreateTransaction(ctx context.Context, t *Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	// AdjustBalance adds delta to the member's balance. It returns
	// ErrMemberNotFound for unknown members.
	AdjustBalance(ctx context.Context, memberID uuid.UUID, delta decimal.Decimal) error
}

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=ledger
type Repository interface {
	Begin(ctx context.Context) (Tx, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)
	CountByReceiptKey(ctx context.Context, key string) (int, error)

	BeginImport(ctx context.Context, minDate, maxDate time.Time) (ImportTx, error)
}

type Tx interface {
	Writer

	// GetTransaction locks the row until the transaction ends.
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// ReleasePaymentRequest reverts a request paid by transactionID to PENDING
	// and its membership-fee period row to UNPAID. No-op when unlinked.
	ReleasePaymentRequest(ctx context.Context, transactionID uuid.UUID) error

	// DeleteAllTransactions returns the receipt keys of the deleted rows.
	DeleteAllTransactions(ctx context.Context) ([]string, error)
	ResetBalances(ctx context.Context) error
	ResetPaymentRequests(ctx context.Context) error
	ResetPayments(ctx context.Context) error

	RecalculateBalances(ctx context.Context) ([]Drift, error)
	// MemberBalance locks the member row until the transaction ends.
	MemberBalance(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error)
	SetBalance(ctx context.Context, memberID uuid.UUID, balance decimal.Decimal) error

	Commit() error
	Rollback() error
}

type ImportTx interface {
	FindDuplicates(ctx context.Context, params []CreateParams) ([]*Transaction, error)
	CreateTransactions(ctx context.Context, txs []*Transaction) error
	AdjustBalance(ctx context.Context, memberID uuid.UUID, delta decimal.Decimal) error
	Commit() error
	Rollback() error
}

type ReceiptDeleter interface {
	Delete(ctx context.Context, key string) error
}

type Notifier interface {
	Notify(ctx context.Context, ns ...notification.Notification)
}

type Service struct {
	repo     Repository
	receipts ReceiptDeleter
	notifier Notifier
	now      func() time.Time
}

// NewService returns a ledger service. receipts and notifier may be nil.
func NewService(repo Repository, receipts ReceiptDeleter, notifier Notifier) *Service {
	return &Service{repo: repo, receipts: receipts, notifier: notifier, now: time.Now}
}

type CreateParams struct {
	Amount         decimal.Decimal
	Type           Type
	Description    string
	RawDescription string
	Category       string
	Date           time.Time
	MemberID       *uuid.UUID
	EventID        *uuid.UUID
	ReceiptURL     string
	ReceiptKey     string
}

// ListFilter selects transactions. EndDate includes the whole day it falls
// on.
type ListFilter struct {
	MemberID  *uuid.UUID
	Category  *string
	StartDate *time.Time
	EndDate   *time.Time
}

// Until returns the exclusive upper bound of the filter: midnight after
// EndDate. It is nil when EndDate is.
func (f ListFilter) Until() *time.Time {
	if f.EndDate == nil {
		return nil
	}

	e := *f.EndDate
	until := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, e.Location()).AddDate(0, 0, 1)

	return &until
}

func (s *Service) toTransaction(p CreateParams) (*Transaction, error) {
	if !p.Type.Valid() {
		return nil, ErrInvalidType
	}

	if p.Amount.IsNegative() {
		return nil, ErrNegativeAmount
	}

	if strings.TrimSpace(p.Description) == "" {
		return nil, ErrDescriptionRequired
	}

	if p.Category == "" {
		p.Category = CategoryOther
	}

	if p.Date.IsZero() {
		p.Date = s.now()
	}

	return &Transaction{
		Amount:         p.Amount.Round(2),
		Type:           p.Type,
		Description:    strings.TrimSpace(p.Description),
		RawDescription: p.RawDescription,
		Category:       p.Category,
		Date:           p.Date,
		MemberID:       p.MemberID,
		EventID:        p.EventID,
		ReceiptURL:     p.ReceiptURL,
		ReceiptKey:     receiptKey(p.ReceiptURL, p.ReceiptKey),
	}, nil
}

// receiptKey falls back to the key encoded in a Cloudinary delivery URL so
// receipts given by URL alone can still be deleted with their transaction.
func receiptKey(rawURL, key string) string {
	if key != "" || rawURL == "" {
		return key
	}

	derived, err := receipt.KeyFromURL(rawURL)
	if err != nil {
		return ""
	}

	return derived
}

// Create writes one transaction and, when it belongs to a member, applies its
// signed amount to the member's balance in the same database transaction.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Transaction, error) {
	t, err := s.toTransaction(params)
	if err != nil {
		return nil, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := apply(ctx, tx, t); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if t.MemberID != nil && t.Type == TypeExpense {
		s.notify(ctx, withdrawal(t))
	}

	return t, nil
}

func apply(ctx context.Context, w Writer, t *Transaction) error {
	if err := w.CreateTransaction(ctx, t); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	if t.MemberID == nil {
		return nil
	}

	if err := w.AdjustBalance(ctx, *t.MemberID, t.Signed()); err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}

	return nil
}

type ExpenseParams struct {
	Total       decimal.Decimal
	Description string
	Category    string
	Date        time.Time
	MemberIDs   []uuid.UUID
	EventID     *uuid.UUID
	ReceiptURL  string
	ReceiptKey  string
}

// RegisterExpense charges total to one or more members. The total is split
// in whole cents; leftover cents go to the first members so the parts always
// sum to the total.
func (s *Service) RegisterExpense(ctx context.Context, params ExpenseParams) ([]*Transaction, error) {
	members := dedupe(params.MemberIDs)
	if len(members) == 0 {
		return nil, ErrNoRecipients
	}

	if params.Total.IsNegative() {
		return nil, ErrNegativeAmount
	}

	description := strings.TrimSpace(params.Description)
	if len(members) > 1 && description != "" {
		description += splitSuffix
	}

	if params.Date.IsZero() {
		params.Date = s.now()
	}

	parts := Split(params.Total, len(members))
	txs := make([]*Transaction, len(members))

	for i, id := range members {
		t, err := s.toTransaction(CreateParams{
			Amount:      parts[i],
			Type:        TypeExpense,
			Description: description,
			Category:    params.Category,
			Date:        params.Date,
			MemberID:    &id,
			EventID:     params.EventID,
			ReceiptURL:  params.ReceiptURL,
			ReceiptKey:  params.ReceiptKey,
		})
		if err != nil {
			return nil, err
		}

		txs[i] = t
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range txs {
		if err := apply(ctx, tx, t); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	ns := make([]notification.Notification, len(txs))
	for i, t := range txs {
		ns[i] = withdrawal(t)
	}

	s.notify(ctx, ns...)

	return txs, nil
}

// Split divides total into n parts of whole cents, largest parts first.
func Split(total decimal.Decimal, n int) []decimal.Decimal {
	cents := total.Round(2).Shift(2).IntPart()
	base, rem := cents/int64(n), cents%int64(n)

	parts := make([]decimal.Decimal, n)
	for i := range parts {
		c := base
		if int64(i) < rem {
			c++
		}

		parts[i] = decimal.New(c, -2)
	}

	return parts
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.DeleteMany(ctx, []uuid.UUID{id})
}

// DeleteMany deletes transactions atomically. Each deletion reverses its
// balance delta and releases the payment request it paid, if any. Receipts
// that are no longer referenced are removed from storage after commit.
func (s *Service) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var keys []string

	for _, id := range dedupe(ids) {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}

		if err := tx.ReleasePaymentRequest(ctx, t.ID); err != nil {
			return fmt.Errorf("release payment request: %w", err)
		}

		if err := tx.DeleteTransaction(ctx, t.ID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}

		if t.MemberID != nil {
			if err := tx.AdjustBalance(ctx, *t.MemberID, t.Signed().Neg()); err != nil {
				return fmt.Errorf("adjust balance: %w", err)
			}
		}

		if t.ReceiptKey != "" {
			keys = append(keys, t.ReceiptKey)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.cleanupReceipts(ctx, keys)

	return nil
}

// DeleteAll removes every transaction, zeroes every balance and resets all
// payment requests and period rows, in one atomic unit.
func (s *Service) DeleteAll(ctx context.Context) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.ResetPaymentRequests(ctx); err != nil {
		return fmt.Errorf("reset payment requests: %w", err)
	}

	if err := tx.ResetPayments(ctx); err != nil {
		return fmt.Errorf("reset payments: %w", err)
	}

	keys, err := tx.DeleteAllTransactions(ctx)
	if err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}

	if err := tx.ResetBalances(ctx); err != nil {
		return fmt.Errorf("reset balances: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.cleanupReceipts(ctx, keys)

	return nil
}

func (s *Service) cleanupReceipts(ctx context.Context, keys []string) {
	if s.receipts == nil {
		return
	}

	for _, key := range dedupeStrings(keys) {
		n, err := s.repo.CountByReceiptKey(ctx, key)
		if err != nil {
			slog.Error("failed to count receipt references", "error", err, "key", key)
			continue
		}

		if n > 0 {
			continue
		}

		if err := s.receipts.Delete(ctx, key); err != nil {
			slog.Error("failed to delete receipt", "error", err, "key", key)
		}
	}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))

	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

// Recalculate overwrites every member's balance with the sum of their
// transactions and returns the balances that changed.
func (s *Service) Recalculate(ctx context.Context) ([]Drift, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	drifts, err := tx.RecalculateBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("recalculate balances: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	for _, d := range drifts {
		slog.Warn("corrected balance drift",
			"member_id", d.MemberID,
			"previous", d.Previous.StringFixed(2),
			"current", d.Current.StringFixed(2),
		)
	}

	return drifts, nil
}

// SetBalance moves a member's balance to target by writing a single
// MANUAL_ADJUSTMENT transaction for the difference. It returns a nil
// transaction when the balance already equals target.
func (s *Service) SetBalance(ctx context.Context, memberID uuid.UUID, target decimal.Decimal, reason string) (*Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	target = target.Round(2)

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	current, err := tx.MemberBalance(ctx, memberID)
	if err != nil {
		return nil, err
	}

	diff := target.Sub(current)
	if diff.IsZero() {
		return nil, nil
	}

	typ, amount := FromSigned(diff)
	t := &Transaction{
		Amount:      amount,
		Type:        typ,
		Description: reason,
		Category:    CategoryManualAdjustment,
		Date:        s.now(),
		MemberID:    &memberID,
	}

	if err := tx.CreateTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	if err := tx.SetBalance(ctx, memberID, target); err != nil {
		return nil, fmt.Errorf("set balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notify(ctx, notification.Notification{
		MemberID: memberID,
		Type:     notification.TypeBalanceAdjusted,
		Title:    "Saldo justert",
		Message:  fmt.Sprintf("Saldoen din er satt til %s kr. Begrunnelse: %s", target.StringFixed(2), reason),
		Link:     "/me/transactions",
	})

	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) notify(ctx context.Context, ns ...notification.Notification) {
	if s.notifier == nil {
		return
	}

	s.notifier.Notify(ctx, ns...)
}

func withdrawal(t *Transaction) notification.Notification {
	return notification.Notification{
		MemberID: *t.MemberID,
		Type:     notification.TypeBalanceWithdrawal,
		Title:    "Trekk fra saldo",
		Message:  fmt.Sprintf("%s kr er trukket fra saldoen din: %s", t.Amount.StringFixed(2), t.Description),
		Link:     "/me/transactions",
	}
}
