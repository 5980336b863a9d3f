package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/member"
)

// Members implements member.Repository.
type Members struct {
	s *Store
}

func (r *Members) CreateMember(_ context.Context, m *member.Member) error {
	return r.s.write(func(st *state) error {
		for _, other := range st.members {
			if other.ExternalID == m.ExternalID {
				return member.ErrDuplicate
			}
		}

		m.ID = uuid.New()
		m.CreatedAt = r.s.now()
		m.Balance = m.Balance.Round(2)
		st.members[m.ID] = new(*m)

		return nil
	})
}

func (r *Members) GetMember(_ context.Context, id uuid.UUID) (*member.Member, error) {
	var out *member.Member

	r.s.read(func(st *state) {
		if m, ok := st.members[id]; ok {
			out = new(*m)
		}
	})

	if out == nil {
		return nil, member.ErrNotFound
	}

	return out, nil
}

func (r *Members) GetMemberByExternalID(_ context.Context, externalID string) (*member.Member, error) {
	var out *member.Member

	r.s.read(func(st *state) {
		for _, m := range st.members {
			if m.ExternalID == externalID {
				out = new(*m)
				return
			}
		}
	})

	if out == nil {
		return nil, member.ErrNotFound
	}

	return out, nil
}

func (r *Members) ListMembers(_ context.Context, filter member.ListFilter) ([]*member.Member, error) {
	var out []*member.Member

	r.s.read(func(st *state) {
		for _, m := range st.members {
			if filter.ActiveOnly && !m.Active {
				continue
			}

			out = append(out, new(*m))
		}
	})

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a == b {
			return out[i].ID.String() < out[j].ID.String()
		}

		return a < b
	})

	return out, nil
}

func (r *Members) update(id uuid.UUID, fn func(m *member.Member)) error {
	return r.s.write(func(st *state) error {
		m, ok := st.members[id]
		if !ok {
			return member.ErrNotFound
		}

		fn(m)
		m.UpdatedAt = new(r.s.now())

		return nil
	})
}

func (r *Members) UpdateRole(_ context.Context, id uuid.UUID, role member.Role) error {
	return r.update(id, func(m *member.Member) { m.Role = role })
}

func (r *Members) Deactivate(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(m *member.Member) { m.Active = false })
}

func (r *Members) DeleteMember(_ context.Context, id uuid.UUID) error {
	return r.s.write(func(st *state) error {
		m, ok := st.members[id]
		if !ok {
			return member.ErrNotFound
		}

		if !m.Balance.IsZero() {
			return member.ErrHasFinancialHistory
		}

		for _, t := range st.transactions {
			if t.MemberID != nil && *t.MemberID == id {
				return member.ErrHasFinancialHistory
			}
		}

		for rid, req := range st.requests {
			if req.MemberID != id {
				continue
			}

			if req.Status == invoice.StatusPaid {
				return member.ErrHasFinancialHistory
			}

			delete(st.requests, rid)
		}

		for k := range st.payments {
			if k.memberID == id {
				delete(st.payments, k)
			}
		}

		for nid, n := range st.notifications {
			if n.MemberID == id {
				delete(st.notifications, nid)
			}
		}

		delete(st.members, id)

		return nil
	})
}

func (r *Members) ListFees(_ context.Context) ([]member.Fee, error) {
	var out []member.Fee

	r.s.read(func(st *state) {
		for t, amount := range st.fees {
			out = append(out, member.Fee{Type: t, Amount: amount})
		}
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })

	return out, nil
}

func (r *Members) SetFee(_ context.Context, fee member.Fee) error {
	return r.s.write(func(st *state) error {
		st.fees[fee.Type] = fee.Amount

		return nil
	})
}
