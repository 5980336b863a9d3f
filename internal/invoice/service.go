package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/member"
	"github.com/MrJamesThe3rd/klubb/internal/notification"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=invoice
type Repository interface {
	Begin(ctx context.Context) (Tx, error)

	GetRequest(ctx context.Context, id uuid.UUID) (*Request, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]*Request, error)
	ListPayments(ctx context.Context, period string) ([]*Payment, error)
}

// Tx is a database transaction spanning payment requests and the ledger.
type Tx interface {
	ledger.Writer

	// GetRequest locks the row until the transaction ends.
	GetRequest(ctx context.Context, id uuid.UUID) (*Request, error)
	// CreateRequests returns ledger.ErrMemberNotFound for unknown members and
	// ErrBatchConflict when a member already has a request in the batch.
	CreateRequests(ctx context.Context, rs []*Request) error
	// UpdateRequest stores status and transaction link when the stored
	// version equals expected, and bumps r.Version. It returns
	// ErrStaleVersion otherwise.
	UpdateRequest(ctx context.Context, r *Request, expected int64) error
	DeleteRequests(ctx context.Context, ids []uuid.UUID) error
	// ListBatch locks the batch until the transaction ends.
	ListBatch(ctx context.Context, batchID uuid.UUID) ([]*Request, error)

	UpsertPayment(ctx context.Context, p Payment) error
	// EnsurePayments inserts UNPAID rows for periods that have none.
	EnsurePayments(ctx context.Context, ps []Payment) error
	// DeleteUnpaidPayment removes the period row unless it is PAID.
	DeleteUnpaidPayment(ctx context.Context, memberID uuid.UUID, period string) error

	Commit() error
	Rollback() error
}

type Members interface {
	ActiveMembers(ctx context.Context) ([]*member.Member, error)
	FeeSchedule(ctx context.Context) (member.FeeSchedule, error)
}

type Notifier interface {
	Notify(ctx context.Context, ns ...notification.Notification)
}

type Service struct {
	repo     Repository
	members  Members
	notifier Notifier
	now      func() time.Time
}

// NewService returns a payment request service. notifier may be nil.
func NewService(repo Repository, members Members, notifier Notifier) *Service {
	return &Service{repo: repo, members: members, notifier: notifier, now: time.Now}
}

type CreateParams struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Category    Category
	DueDate     time.Time
	MemberIDs   []uuid.UUID
	EventID     *uuid.UUID
}

type ListFilter struct {
	MemberID *uuid.UUID
	Status   *Status
	Category *Category
	BatchID  *uuid.UUID
}

// Create issues one request per member. Requests created together share a
// creation stamp and, when there is more than one, a batch id.
func (s *Service) Create(ctx context.Context, params CreateParams) ([]*Request, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	if params.Amount.IsNegative() {
		return nil, ErrNegativeAmount
	}

	if params.Category == "" {
		params.Category = CategoryOther
	}

	if !params.Category.Valid() {
		return nil, ErrInvalidCategory
	}

	memberIDs := uniqueIDs(params.MemberIDs)
	if len(memberIDs) == 0 {
		return nil, ErrNoRecipients
	}

	now := s.now()
	if params.DueDate.IsZero() {
		params.DueDate = now.AddDate(0, 0, 14)
	}

	var batchID *uuid.UUID
	if len(memberIDs) > 1 {
		batchID = new(uuid.New())
	}

	rs := make([]*Request, len(memberIDs))
	for i, id := range memberIDs {
		rs[i] = &Request{
			Title:       title,
			Description: strings.TrimSpace(params.Description),
			Amount:      params.Amount.Round(2),
			Category:    params.Category,
			Status:      StatusPending,
			DueDate:     dateOnly(params.DueDate),
			MemberID:    id,
			EventID:     params.EventID,
			BatchID:     batchID,
			CreatedAt:   now,
		}
	}

	if err := s.insert(ctx, rs); err != nil {
		return nil, err
	}

	return rs, nil
}

func (s *Service) insert(ctx context.Context, rs []*Request) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := writeRequests(ctx, tx, rs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifyCreated(ctx, rs)

	return nil
}

func writeRequests(ctx context.Context, tx Tx, rs []*Request) error {
	if err := tx.CreateRequests(ctx, rs); err != nil {
		return err
	}

	var periods []Payment

	for _, r := range rs {
		if r.Category == CategoryMembershipFee {
			periods = append(periods, Payment{MemberID: r.MemberID, Period: r.Period(), Status: PaymentUnpaid})
		}
	}

	if len(periods) == 0 {
		return nil
	}

	if err := tx.EnsurePayments(ctx, periods); err != nil {
		return fmt.Errorf("ensure payments: %w", err)
	}

	return nil
}

func (s *Service) notifyCreated(ctx context.Context, rs []*Request) {
	ns := make([]notification.Notification, len(rs))
	for i, r := range rs {
		ns[i] = notification.Notification{
			MemberID: r.MemberID,
			Type:     notification.TypeInvoiceCreated,
			Title:    "Ny betalingsforespørsel",
			Message:  fmt.Sprintf("%s: %s kr, forfall %s", r.Title, r.Amount.StringFixed(2), r.DueDate.Format(time.DateOnly)),
			Link:     "/me/payment-requests",
		}
	}

	s.notify(ctx, ns...)
}

// MarkPaid moves a PENDING request to PAID. version is the version the
// caller last saw; 0 skips the check.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, version int64) (*Request, error) {
	return s.transition(ctx, id, version, func(ctx context.Context, tx Tx, r *Request) error {
		switch r.Status {
		case StatusPaid:
			return ErrAlreadyPaid
		case StatusWaived:
			return ErrWaived
		}

		return s.pay(ctx, tx, r)
	})
}

// TogglePaid flips a request between PENDING and PAID. The two directions
// are exact inverses.
func (s *Service) TogglePaid(ctx context.Context, id uuid.UUID, version int64) (*Request, error) {
	return s.transition(ctx, id, version, func(ctx context.Context, tx Tx, r *Request) error {
		switch r.Status {
		case StatusPending:
			return s.pay(ctx, tx, r)
		case StatusPaid:
			return s.unpay(ctx, tx, r)
		}

		return ErrWaived
	})
}

// Waive writes off a PENDING request. WAIVED is terminal.
func (s *Service) Waive(ctx context.Context, id uuid.UUID, version int64) (*Request, error) {
	return s.transition(ctx, id, version, func(ctx context.Context, tx Tx, r *Request) error {
		if r.Status != StatusPending {
			return ErrNotPending
		}

		r.Status = StatusWaived

		return tx.UpdateRequest(ctx, r, r.Version)
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, version int64, fn func(context.Context, Tx, *Request) error) (*Request, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	r, err := tx.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if version != 0 && r.Version != version {
		return nil, ErrStaleVersion
	}

	wasPaid := r.Status == StatusPaid

	if err := fn(ctx, tx, r); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if !wasPaid && r.Status == StatusPaid {
		s.notify(ctx, notification.Notification{
			MemberID: r.MemberID,
			Type:     notification.TypeInvoicePaid,
			Title:    "Betaling registrert",
			Message:  fmt.Sprintf("%s er registrert som betalt (%s kr).", r.Title, r.Amount.StringFixed(2)),
			Link:     "/me/payment-requests",
		})
	}

	return r, nil
}

func (s *Service) pay(ctx context.Context, tx Tx, r *Request) error {
	now := s.now()
	memberID := r.MemberID

	t := &ledger.Transaction{
		Amount:      r.Amount,
		Type:        ledger.TypeIncome,
		Description: r.Title,
		Category:    string(r.Category),
		Date:        now,
		MemberID:    &memberID,
		EventID:     r.EventID,
	}

	if err := tx.CreateTransaction(ctx, t); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	if err := tx.AdjustBalance(ctx, r.MemberID, r.Amount); err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}

	r.Status = StatusPaid
	r.TransactionID = &t.ID

	if err := tx.UpdateRequest(ctx, r, r.Version); err != nil {
		return err
	}

	if r.Category != CategoryMembershipFee {
		return nil
	}

	amount := r.Amount

	err := tx.UpsertPayment(ctx, Payment{
		MemberID: r.MemberID,
		Period:   r.Period(),
		Status:   PaymentPaid,
		Amount:   &amount,
		PaidAt:   &now,
	})
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}

	return nil
}

func (s *Service) unpay(ctx context.Context, tx Tx, r *Request) error {
	linked := r.TransactionID

	r.Status = StatusPending
	r.TransactionID = nil

	if err := tx.UpdateRequest(ctx, r, r.Version); err != nil {
		return err
	}

	if linked != nil {
		if err := tx.DeleteTransaction(ctx, *linked); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}

		if err := tx.AdjustBalance(ctx, r.MemberID, r.Amount.Neg()); err != nil {
			return fmt.Errorf("adjust balance: %w", err)
		}
	}

	if r.Category != CategoryMembershipFee {
		return nil
	}

	err := tx.UpsertPayment(ctx, Payment{MemberID: r.MemberID, Period: r.Period(), Status: PaymentUnpaid})
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}

	return nil
}

// Delete removes a request that is not PAID.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	r, err := tx.GetRequest(ctx, id)
	if err != nil {
		return err
	}

	if r.Status == StatusPaid {
		return ErrPaidNotDeletable
	}

	if err := tx.DeleteRequests(ctx, []uuid.UUID{id}); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}

	if err := deletePeriod(ctx, tx, r); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// DeleteBatch removes every request in a batch, or none of them when any is
// already PAID.
func (s *Service) DeleteBatch(ctx context.Context, batchID uuid.UUID) (int, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rs, err := tx.ListBatch(ctx, batchID)
	if err != nil {
		return 0, fmt.Errorf("list batch: %w", err)
	}

	if len(rs) == 0 {
		return 0, ErrBatchNotFound
	}

	ids := make([]uuid.UUID, len(rs))

	for i, r := range rs {
		if r.Status == StatusPaid {
			return 0, ErrBatchHasPaid
		}

		ids[i] = r.ID
	}

	if err := tx.DeleteRequests(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete requests: %w", err)
	}

	for _, r := range rs {
		if err := deletePeriod(ctx, tx, r); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return len(ids), nil
}

// deletePeriod drops the UNPAID period row of a deleted membership fee, so
// the member no longer shows as owing that month.
func deletePeriod(ctx context.Context, tx Tx, r *Request) error {
	if r.Category != CategoryMembershipFee {
		return nil
	}

	if err := tx.DeleteUnpaidPayment(ctx, r.MemberID, r.Period()); err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}

	return nil
}

type BatchResult struct {
	Paid      int
	Skipped   int
	Failed    int
	FailedIDs []uuid.UUID
}

// MarkBatchPaid pays every PENDING request of a batch, each in its own
// database transaction. A failure leaves the rest of the batch untouched;
// calling it again only processes requests that are still PENDING.
func (s *Service) MarkBatchPaid(ctx context.Context, batchID uuid.UUID) (*BatchResult, error) {
	pending := StatusPending

	rs, err := s.repo.ListRequests(ctx, ListFilter{BatchID: &batchID, Status: &pending})
	if err != nil {
		return nil, fmt.Errorf("list batch: %w", err)
	}

	res := &BatchResult{}

	for _, r := range rs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		// The row is locked and re-read inside MarkPaid; a concurrent edit
		// between listing and paying is not a conflict here.
		_, err := s.MarkPaid(ctx, r.ID, 0)

		switch {
		case err == nil:
			res.Paid++
		case errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrWaived), errors.Is(err, ErrNotFound):
			res.Skipped++
		default:
			slog.Error("failed to mark request paid", "error", err, "request_id", r.ID, "batch_id", batchID)

			res.Failed++
			res.FailedIDs = append(res.FailedIDs, r.ID)
		}
	}

	return res, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetRequest(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Request, error) {
	return s.repo.ListRequests(ctx, filter)
}

func (s *Service) ListPayments(ctx context.Context, period string) ([]*Payment, error) {
	return s.repo.ListPayments(ctx, period)
}

func (s *Service) notify(ctx context.Context, ns ...notification.Notification) {
	if s.notifier == nil {
		return
	}

	s.notifier.Notify(ctx, ns...)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
