package ledger

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Group is one display row folded from transactions that were registered
// together, typically the parts of a split expense.
type Group struct {
	Date           time.Time
	Category       string
	Description    string
	Amount         decimal.Decimal // signed sum
	MemberNames    []string
	MemberIDs      []uuid.UUID
	TransactionIDs []uuid.UUID
	ReceiptURL     string
}

type groupKey struct {
	date        int64
	category    string
	description string
}

// GroupForDisplay folds transactions that share the exact date, the category
// and the description without the split suffix. Groups keep the order in
// which their first transaction appears.
func GroupForDisplay(txs []*Transaction) []*Group {
	index := make(map[groupKey]*Group)

	var groups []*Group

	for _, t := range txs {
		desc := strings.TrimSuffix(t.Description, splitSuffix)
		k := groupKey{date: t.Date.UnixNano(), category: t.Category, description: desc}

		g, ok := index[k]
		if !ok {
			g = &Group{
				Date:        t.Date,
				Category:    t.Category,
				Description: desc,
				Amount:      decimal.Zero,
			}
			index[k] = g
			groups = append(groups, g)
		}

		g.Amount = g.Amount.Add(t.Signed())
		g.TransactionIDs = append(g.TransactionIDs, t.ID)

		if g.ReceiptURL == "" {
			g.ReceiptURL = t.ReceiptURL
		}

		if t.MemberID == nil {
			continue
		}

		if !slices.Contains(g.MemberIDs, *t.MemberID) {
			g.MemberIDs = append(g.MemberIDs, *t.MemberID)
			g.MemberNames = append(g.MemberNames, t.MemberName)
		}
	}

	return groups
}
