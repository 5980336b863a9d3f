package ledger

import (
	"context"
	"fmt"
	"time"
)

type ImportResult struct {
	Imported  []*Transaction
	New       []CreateParams
	Conflicts []Conflict
}

type Conflict struct {
	Incoming CreateParams
	Existing *Transaction
}

type dupKey struct {
	Date           string
	Amount         string
	Type           Type
	RawDescription string
}

func keyOf(date time.Time, amount string, typ Type, raw string) dupKey {
	return dupKey{Date: date.Format(time.DateOnly), Amount: amount, Type: typ, RawDescription: raw}
}

// ImportBatch imports bank statement rows. When any row matches an existing
// transaction nothing is written and the conflicts are returned for the
// operator to resolve; CreateBatch then imports the confirmed rows.
func (s *Service) ImportBatch(ctx context.Context, params []CreateParams) (*ImportResult, error) {
	if len(params) == 0 {
		return &ImportResult{}, nil
	}

	txs, err := s.toTransactions(params)
	if err != nil {
		return nil, err
	}

	minDate, maxDate := dateRange(txs)

	itx, err := s.repo.BeginImport(ctx, minDate, maxDate)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer itx.Rollback()

	duplicates, err := itx.FindDuplicates(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}

	lookup := make(map[dupKey]*Transaction, len(duplicates))
	for _, d := range duplicates {
		lookup[keyOf(d.Date, d.Amount.StringFixed(2), d.Type, d.RawDescription)] = d
	}

	var (
		newParams []CreateParams
		newTxs    []*Transaction
		conflicts []Conflict
	)

	for i, p := range params {
		t := txs[i]

		existing, found := lookup[keyOf(t.Date, t.Amount.StringFixed(2), t.Type, t.RawDescription)]
		if found {
			conflicts = append(conflicts, Conflict{Incoming: p, Existing: existing})
			continue
		}

		newParams = append(newParams, p)
		newTxs = append(newTxs, t)
	}

	if len(conflicts) > 0 {
		return &ImportResult{New: newParams, Conflicts: conflicts}, nil
	}

	if err := writeImport(ctx, itx, newTxs); err != nil {
		return nil, err
	}

	if err := itx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}

	return &ImportResult{Imported: newTxs}, nil
}

func (s *Service) CreateBatch(ctx context.Context, params []CreateParams) ([]*Transaction, error) {
	if len(params) == 0 {
		return nil, nil
	}

	txs, err := s.toTransactions(params)
	if err != nil {
		return nil, err
	}

	minDate, maxDate := dateRange(txs)

	itx, err := s.repo.BeginImport(ctx, minDate, maxDate)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer itx.Rollback()

	if err := writeImport(ctx, itx, txs); err != nil {
		return nil, err
	}

	if err := itx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}

	return txs, nil
}

func writeImport(ctx context.Context, itx ImportTx, txs []*Transaction) error {
	if err := itx.CreateTransactions(ctx, txs); err != nil {
		return fmt.Errorf("create transactions: %w", err)
	}

	for _, t := range txs {
		if t.MemberID == nil {
			continue
		}

		if err := itx.AdjustBalance(ctx, *t.MemberID, t.Signed()); err != nil {
			return fmt.Errorf("adjust balance: %w", err)
		}
	}

	return nil
}

func (s *Service) toTransactions(params []CreateParams) ([]*Transaction, error) {
	txs := make([]*Transaction, len(params))

	for i, p := range params {
		t, err := s.toTransaction(p)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}

		txs[i] = t
	}

	return txs, nil
}

func dateRange(txs []*Transaction) (time.Time, time.Time) {
	minDate := txs[0].Date
	maxDate := txs[0].Date

	for _, t := range txs[1:] {
		if t.Date.Before(minDate) {
			minDate = t.Date
		}

		if t.Date.After(maxDate) {
			maxDate = t.Date
		}
	}

	return minDate, maxDate
}
