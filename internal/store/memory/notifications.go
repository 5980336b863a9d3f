package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/categorize"
	"github.com/MrJamesThe3rd/klubb/internal/notification"
)

// Notifications implements notification.Repository.
type Notifications struct {
	s *Store
}

func (n *Notifications) CreateNotifications(_ context.Context, ns []*notification.Notification) error {
	return n.s.write(func(st *state) error {
		for _, item := range ns {
			if _, ok := st.members[item.MemberID]; !ok {
				continue
			}

			item.ID = uuid.New()
			item.CreatedAt = n.s.now()
			st.notifications[item.ID] = new(*item)
		}

		return nil
	})
}

func (n *Notifications) ListNotifications(_ context.Context, memberID uuid.UUID, unreadOnly bool) ([]*notification.Notification, error) {
	var out []*notification.Notification

	n.s.read(func(st *state) {
		for _, item := range st.notifications {
			if item.MemberID != memberID || (unreadOnly && item.Read) {
				continue
			}

			out = append(out, new(*item))
		}
	})

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

func (n *Notifications) MarkRead(_ context.Context, id, memberID uuid.UUID) error {
	return n.s.write(func(st *state) error {
		item, ok := st.notifications[id]
		if !ok || item.MemberID != memberID {
			return notification.ErrNotFound
		}

		item.Read = true

		return nil
	})
}

func (n *Notifications) MarkAllRead(_ context.Context, memberID uuid.UUID) (int64, error) {
	var count int64

	err := n.s.write(func(st *state) error {
		for _, item := range st.notifications {
			if item.MemberID == memberID && !item.Read {
				item.Read = true
				count++
			}
		}

		return nil
	})

	return count, err
}

// Rules implements categorize.Repository.
type Rules struct {
	s *Store
}

func (r *Rules) FindMatch(_ context.Context, rawDescription string) (*categorize.Rule, error) {
	var best *categorize.Rule

	raw := strings.ToLower(rawDescription)

	r.s.read(func(st *state) {
		for _, rule := range st.rules {
			if !strings.Contains(raw, strings.ToLower(rule.RawPattern)) {
				continue
			}

			if best == nil ||
				len(rule.RawPattern) > len(best.RawPattern) ||
				(len(rule.RawPattern) == len(best.RawPattern) && rule.CreatedAt.After(best.CreatedAt)) {
				best = rule
			}
		}

		if best != nil {
			best = new(*best)
		}
	})

	return best, nil
}

func (r *Rules) CreateRule(_ context.Context, rule *categorize.Rule) error {
	return r.s.write(func(st *state) error {
		rule.ID = uuid.New()
		rule.CreatedAt = r.s.now()
		st.rules[rule.ID] = new(*rule)

		return nil
	})
}

func (r *Rules) ListRules(_ context.Context) ([]*categorize.Rule, error) {
	var out []*categorize.Rule

	r.s.read(func(st *state) {
		for _, rule := range st.rules {
			out = append(out, new(*rule))
		}
	})

	sort.Slice(out, func(i, j int) bool { return out[i].RawPattern < out[j].RawPattern })

	return out, nil
}

func (r *Rules) DeleteRule(_ context.Context, id uuid.UUID) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.rules[id]; !ok {
			return categorize.ErrNotFound
		}

		delete(st.rules, id)

		return nil
	})
}
