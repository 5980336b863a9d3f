// Package memory keeps all club data in process memory. It implements every
// repository of the application and is meant for tests and local
// development.
//
// Writers are serialized: Begin takes an exclusive lock and works on a copy
// of the data, which Commit publishes atomically. A goroutine holding a
// transaction must not call other write methods of the store before it
// ends the transaction.
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/categorize"
	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/member"
	"github.com/MrJamesThe3rd/klubb/internal/notification"
)

var errTxDone = errors.New("transaction has already been committed or rolled back")

type paymentKey struct {
	memberID uuid.UUID
	period   string
}

type state struct {
	members       map[uuid.UUID]*member.Member
	fees          map[member.MembershipType]decimal.Decimal
	transactions  map[uuid.UUID]*ledger.Transaction
	requests      map[uuid.UUID]*invoice.Request
	payments      map[paymentKey]*invoice.Payment
	notifications map[uuid.UUID]*notification.Notification
	rules         map[uuid.UUID]*categorize.Rule
}

func newState() *state {
	return &state{
		members:       make(map[uuid.UUID]*member.Member),
		fees:          make(map[member.MembershipType]decimal.Decimal),
		transactions:  make(map[uuid.UUID]*ledger.Transaction),
		requests:      make(map[uuid.UUID]*invoice.Request),
		payments:      make(map[paymentKey]*invoice.Payment),
		notifications: make(map[uuid.UUID]*notification.Notification),
		rules:         make(map[uuid.UUID]*categorize.Rule),
	}
}

func cloneMap[K comparable, V any](in map[K]*V) map[K]*V {
	out := make(map[K]*V, len(in))
	for k, v := range in {
		out[k] = new(*v)
	}

	return out
}

func (s *state) clone() *state {
	fees := make(map[member.MembershipType]decimal.Decimal, len(s.fees))
	for k, v := range s.fees {
		fees[k] = v
	}

	return &state{
		members:       cloneMap(s.members),
		fees:          fees,
		transactions:  cloneMap(s.transactions),
		requests:      cloneMap(s.requests),
		payments:      cloneMap(s.payments),
		notifications: cloneMap(s.notifications),
		rules:         cloneMap(s.rules),
	}
}

type Store struct {
	writer sync.Mutex // held for the lifetime of a write transaction

	mu   sync.RWMutex // guards data
	data *state

	now func() time.Time
}

func New() *Store {
	return &Store{data: newState(), now: time.Now}
}

func (s *Store) Members() *Members             { return &Members{s} }
func (s *Store) Ledger() *Ledger               { return &Ledger{s} }
func (s *Store) Invoices() *Invoices           { return &Invoices{s} }
func (s *Store) Notifications() *Notifications { return &Notifications{s} }
func (s *Store) Rules() *Rules                 { return &Rules{s} }

// read runs fn against the committed data.
func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fn(s.data)
}

// write runs fn as a single committed transaction.
func (s *Store) write(fn func(st *state) error) error {
	t := s.begin()
	defer t.Rollback()

	if err := fn(t.st); err != nil {
		return err
	}

	return t.Commit()
}

func (s *Store) begin() *txn {
	s.writer.Lock()

	s.mu.RLock()
	st := s.data.clone()
	s.mu.RUnlock()

	return &txn{store: s, st: st}
}

// txn implements ledger.Tx, ledger.ImportTx and invoice.Tx.
type txn struct {
	store *Store
	st    *state
	done  bool
}

func (t *txn) Commit() error {
	if t.done {
		return errTxDone
	}

	t.done = true

	t.store.mu.Lock()
	t.store.data = t.st
	t.store.mu.Unlock()

	t.store.writer.Unlock()

	return nil
}

func (t *txn) Rollback() error {
	if t.done {
		return errTxDone
	}

	t.done = true
	t.store.writer.Unlock()

	return nil
}
