package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

// Ledger implements ledger.Repository.
type Ledger struct {
	s *Store
}

func (l *Ledger) Begin(_ context.Context) (ledger.Tx, error) {
	return l.s.begin(), nil
}

func (l *Ledger) BeginImport(_ context.Context, _, _ time.Time) (ledger.ImportTx, error) {
	return l.s.begin(), nil
}

// joined returns a copy of t with the fields the SQL store loads via JOIN.
func (st *state) joined(t *ledger.Transaction) *ledger.Transaction {
	out := new(*t)
	out.PaymentRequestID = nil
	out.MemberName = ""

	if t.MemberID != nil {
		if m, ok := st.members[*t.MemberID]; ok {
			out.MemberName = m.Name
		}
	}

	for _, r := range st.requests {
		if r.TransactionID != nil && *r.TransactionID == t.ID {
			out.PaymentRequestID = new(r.ID)
			break
		}
	}

	return out
}

func (l *Ledger) GetTransaction(_ context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	var out *ledger.Transaction

	l.s.read(func(st *state) {
		if t, ok := st.transactions[id]; ok {
			out = st.joined(t)
		}
	})

	if out == nil {
		return nil, ledger.ErrNotFound
	}

	return out, nil
}

func (l *Ledger) ListTransactions(_ context.Context, filter ledger.ListFilter) ([]*ledger.Transaction, error) {
	var out []*ledger.Transaction

	until := filter.Until()

	l.s.read(func(st *state) {
		for _, t := range st.transactions {
			if filter.MemberID != nil && (t.MemberID == nil || *t.MemberID != *filter.MemberID) {
				continue
			}

			if filter.Category != nil && t.Category != *filter.Category {
				continue
			}

			if filter.StartDate != nil && t.Date.Before(*filter.StartDate) {
				continue
			}

			if until != nil && !t.Date.Before(*until) {
				continue
			}

			out = append(out, st.joined(t))
		}
	})

	sortTransactions(out)

	return out, nil
}

func sortTransactions(txs []*ledger.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}

		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}

		return a.ID.String() < b.ID.String()
	})
}

func (l *Ledger) CountByReceiptKey(_ context.Context, key string) (int, error) {
	n := 0

	l.s.read(func(st *state) {
		for _, t := range st.transactions {
			if t.ReceiptKey == key {
				n++
			}
		}
	})

	return n, nil
}

func (t *txn) CreateTransaction(_ context.Context, tr *ledger.Transaction) error {
	if tr.MemberID != nil {
		if _, ok := t.st.members[*tr.MemberID]; !ok {
			return ledger.ErrMemberNotFound
		}
	}

	tr.ID = uuid.New()
	tr.CreatedAt = t.store.now()

	stored := new(*tr)
	stored.PaymentRequestID = nil
	stored.MemberName = ""
	t.st.transactions[tr.ID] = stored

	return nil
}

func (t *txn) CreateTransactions(ctx context.Context, txs []*ledger.Transaction) error {
	for _, tr := range txs {
		if err := t.CreateTransaction(ctx, tr); err != nil {
			return err
		}
	}

	return nil
}

func (t *txn) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.transactions[id]; !ok {
		return ledger.ErrNotFound
	}

	delete(t.st.transactions, id)

	// Mirrors ON DELETE SET NULL.
	for _, r := range t.st.requests {
		if r.TransactionID != nil && *r.TransactionID == id {
			r.TransactionID = nil
		}
	}

	return nil
}

func (t *txn) AdjustBalance(_ context.Context, memberID uuid.UUID, delta decimal.Decimal) error {
	m, ok := t.st.members[memberID]
	if !ok {
		return ledger.ErrMemberNotFound
	}

	m.Balance = m.Balance.Add(delta).Round(2)
	m.UpdatedAt = new(t.store.now())

	return nil
}

func (t *txn) GetTransaction(_ context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	tr, ok := t.st.transactions[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}

	return t.st.joined(tr), nil
}

func (t *txn) ReleasePaymentRequest(_ context.Context, transactionID uuid.UUID) error {
	for _, r := range t.st.requests {
		if r.TransactionID == nil || *r.TransactionID != transactionID {
			continue
		}

		r.Status = invoice.StatusPending
		r.TransactionID = nil
		r.Version++
		r.UpdatedAt = new(t.store.now())

		if r.Category == invoice.CategoryMembershipFee {
			if p, ok := t.st.payments[paymentKey{r.MemberID, r.Period()}]; ok {
				p.Status = invoice.PaymentUnpaid
				p.Amount = nil
				p.PaidAt = nil
			}
		}
	}

	return nil
}

func (t *txn) DeleteAllTransactions(_ context.Context) ([]string, error) {
	var keys []string

	for id, tr := range t.st.transactions {
		if tr.ReceiptKey != "" {
			keys = append(keys, tr.ReceiptKey)
		}

		delete(t.st.transactions, id)
	}

	for _, r := range t.st.requests {
		r.TransactionID = nil
	}

	return keys, nil
}

func (t *txn) ResetBalances(_ context.Context) error {
	for _, m := range t.st.members {
		m.Balance = decimal.Zero
	}

	return nil
}

func (t *txn) ResetPaymentRequests(_ context.Context) error {
	for _, r := range t.st.requests {
		if r.TransactionID == nil {
			continue
		}

		r.Status = invoice.StatusPending
		r.TransactionID = nil
		r.Version++
	}

	return nil
}

func (t *txn) ResetPayments(_ context.Context) error {
	for _, p := range t.st.payments {
		p.Status = invoice.PaymentUnpaid
		p.Amount = nil
		p.PaidAt = nil
	}

	return nil
}

func (t *txn) RecalculateBalances(_ context.Context) ([]ledger.Drift, error) {
	sums := make(map[uuid.UUID]decimal.Decimal, len(t.st.members))

	for _, tr := range t.st.transactions {
		if tr.MemberID == nil {
			continue
		}

		sums[*tr.MemberID] = sums[*tr.MemberID].Add(tr.Signed())
	}

	var drifts []ledger.Drift

	for id, m := range t.st.members {
		current := sums[id].Round(2)
		if m.Balance.Equal(current) {
			continue
		}

		drifts = append(drifts, ledger.Drift{MemberID: id, Previous: m.Balance, Current: current})
		m.Balance = current
	}

	sort.Slice(drifts, func(i, j int) bool { return drifts[i].MemberID.String() < drifts[j].MemberID.String() })

	return drifts, nil
}

func (t *txn) MemberBalance(_ context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	m, ok := t.st.members[memberID]
	if !ok {
		return decimal.Zero, ledger.ErrMemberNotFound
	}

	return m.Balance, nil
}

func (t *txn) SetBalance(_ context.Context, memberID uuid.UUID, balance decimal.Decimal) error {
	m, ok := t.st.members[memberID]
	if !ok {
		return ledger.ErrMemberNotFound
	}

	m.Balance = balance

	return nil
}

func (t *txn) FindDuplicates(_ context.Context, params []ledger.CreateParams) ([]*ledger.Transaction, error) {
	type lookupKey struct {
		Date           string
		Amount         string
		Type           ledger.Type
		RawDescription string
	}

	keySet := make(map[lookupKey]struct{}, len(params))
	for _, p := range params {
		keySet[lookupKey{p.Date.Format(time.DateOnly), p.Amount.StringFixed(2), p.Type, p.RawDescription}] = struct{}{}
	}

	var out []*ledger.Transaction

	for _, tr := range t.st.transactions {
		k := lookupKey{tr.Date.Format(time.DateOnly), tr.Amount.StringFixed(2), tr.Type, tr.RawDescription}
		if _, ok := keySet[k]; ok {
			out = append(out, t.st.joined(tr))
		}
	}

	return out, nil
}
