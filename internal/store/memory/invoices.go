package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

// Invoices implements invoice.Repository.
type Invoices struct {
	s *Store
}

func (i *Invoices) Begin(_ context.Context) (invoice.Tx, error) {
	return i.s.begin(), nil
}

func (st *state) joinedRequest(r *invoice.Request) *invoice.Request {
	out := new(*r)
	out.MemberName = ""

	if m, ok := st.members[r.MemberID]; ok {
		out.MemberName = m.Name
	}

	return out
}

func (i *Invoices) GetRequest(_ context.Context, id uuid.UUID) (*invoice.Request, error) {
	var out *invoice.Request

	i.s.read(func(st *state) {
		if r, ok := st.requests[id]; ok {
			out = st.joinedRequest(r)
		}
	})

	if out == nil {
		return nil, invoice.ErrNotFound
	}

	return out, nil
}

func (i *Invoices) ListRequests(_ context.Context, filter invoice.ListFilter) ([]*invoice.Request, error) {
	var out []*invoice.Request

	i.s.read(func(st *state) {
		for _, r := range st.requests {
			if filter.MemberID != nil && r.MemberID != *filter.MemberID {
				continue
			}

			if filter.Status != nil && r.Status != *filter.Status {
				continue
			}

			if filter.Category != nil && r.Category != *filter.Category {
				continue
			}

			if filter.BatchID != nil && (r.BatchID == nil || *r.BatchID != *filter.BatchID) {
				continue
			}

			out = append(out, st.joinedRequest(r))
		}
	})

	sortRequests(out)

	return out, nil
}

func sortRequests(rs []*invoice.Request) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.After(b.DueDate)
		}

		if a.MemberName != b.MemberName {
			return a.MemberName < b.MemberName
		}

		return a.ID.String() < b.ID.String()
	})
}

func (i *Invoices) ListPayments(_ context.Context, period string) ([]*invoice.Payment, error) {
	var out []*invoice.Payment

	i.s.read(func(st *state) {
		for k, p := range st.payments {
			if k.period == period {
				out = append(out, new(*p))
			}
		}
	})

	sort.Slice(out, func(a, b int) bool { return out[a].MemberID.String() < out[b].MemberID.String() })

	return out, nil
}

func (t *txn) GetRequest(_ context.Context, id uuid.UUID) (*invoice.Request, error) {
	r, ok := t.st.requests[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}

	return t.st.joinedRequest(r), nil
}

func (t *txn) CreateRequests(_ context.Context, rs []*invoice.Request) error {
	for _, r := range rs {
		if _, ok := t.st.members[r.MemberID]; !ok {
			return ledger.ErrMemberNotFound
		}

		if r.BatchID != nil {
			for _, other := range t.st.requests {
				if other.BatchID != nil && *other.BatchID == *r.BatchID && other.MemberID == r.MemberID {
					return invoice.ErrBatchConflict
				}
			}
		}

		r.ID = uuid.New()
		r.Version = 1

		if r.CreatedAt.IsZero() {
			r.CreatedAt = t.store.now()
		}

		stored := new(*r)
		stored.MemberName = ""
		t.st.requests[r.ID] = stored
	}

	return nil
}

func (t *txn) UpdateRequest(_ context.Context, r *invoice.Request, expected int64) error {
	stored, ok := t.st.requests[r.ID]
	if !ok {
		return invoice.ErrStaleVersion
	}

	if expected != 0 && stored.Version != expected {
		return invoice.ErrStaleVersion
	}

	if r.TransactionID != nil {
		for _, other := range t.st.requests {
			if other.ID != r.ID && other.TransactionID != nil && *other.TransactionID == *r.TransactionID {
				return invoice.ErrStaleVersion
			}
		}
	}

	stored.Status = r.Status
	stored.TransactionID = r.TransactionID
	stored.Version++
	stored.UpdatedAt = new(t.store.now())

	r.Version = stored.Version
	r.UpdatedAt = stored.UpdatedAt

	return nil
}

func (t *txn) DeleteRequests(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		if r, ok := t.st.requests[id]; ok && r.Status != invoice.StatusPaid {
			delete(t.st.requests, id)
		}
	}

	return nil
}

func (t *txn) ListBatch(_ context.Context, batchID uuid.UUID) ([]*invoice.Request, error) {
	var out []*invoice.Request

	for _, r := range t.st.requests {
		if r.BatchID != nil && *r.BatchID == batchID {
			out = append(out, t.st.joinedRequest(r))
		}
	}

	sortRequests(out)

	return out, nil
}

func (t *txn) UpsertPayment(_ context.Context, p invoice.Payment) error {
	t.st.payments[paymentKey{p.MemberID, p.Period}] = new(p)

	return nil
}

func (t *txn) DeleteUnpaidPayment(_ context.Context, memberID uuid.UUID, period string) error {
	k := paymentKey{memberID, period}
	if p, ok := t.st.payments[k]; ok && p.Status != invoice.PaymentPaid {
		delete(t.st.payments, k)
	}

	return nil
}

func (t *txn) EnsurePayments(_ context.Context, ps []invoice.Payment) error {
	for _, p := range ps {
		k := paymentKey{p.MemberID, p.Period}
		if _, ok := t.st.payments[k]; ok {
			continue
		}

		t.st.payments[k] = &invoice.Payment{MemberID: p.MemberID, Period: p.Period, Status: invoice.PaymentUnpaid}
	}

	return nil
}
