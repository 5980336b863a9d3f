package invoice

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var feeNamespace = uuid.MustParse("6f1c2b8e-6a53-4f0e-9d7a-3c1b0c9e2f41")

// MonthlyFeeBatchID is the stable batch id of a membership-fee period, so
// the same month always maps to the same batch regardless of its title.
func MonthlyFeeBatchID(year int, month time.Month) uuid.UUID {
	return uuid.NewSHA1(feeNamespace, fmt.Appendf(nil, "membership-fee/%04d-%02d", year, int(month)))
}

func MonthlyFeeTitle(year int, month time.Month) string {
	return fmt.Sprintf("Medlemskontingent %04d-%02d", year, int(month))
}

func validPeriod(year int, month time.Month) bool {
	return year >= 2000 && year <= 9999 && month >= time.January && month <= time.December
}

type GenerateResult struct {
	BatchID uuid.UUID
	Title   string
	Created int
	Skipped int
}

// GenerateMonthlyFees makes sure every active member has exactly one
// membership-fee request for the period. Members that already have one are
// skipped, so running it again creates nothing.
func (s *Service) GenerateMonthlyFees(ctx context.Context, year int, month time.Month) (*GenerateResult, error) {
	if !validPeriod(year, month) {
		return nil, ErrInvalidPeriod
	}

	members, err := s.members.ActiveMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active members: %w", err)
	}

	schedule, err := s.members.FeeSchedule(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee schedule: %w", err)
	}

	batchID := MonthlyFeeBatchID(year, month)
	res := &GenerateResult{BatchID: batchID, Title: MonthlyFeeTitle(year, month)}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := tx.ListBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch: %w", err)
	}

	has := make(map[uuid.UUID]struct{}, len(existing))
	for _, r := range existing {
		has[r.MemberID] = struct{}{}
	}

	now := s.now()
	due := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)

	var rs []*Request

	for _, m := range members {
		if _, ok := has[m.ID]; ok {
			res.Skipped++
			continue
		}

		rs = append(rs, &Request{
			Title:       res.Title,
			Description: fmt.Sprintf("Medlemskontingent for %s", due.Format("2006-01")),
			Amount:      schedule.For(m.MembershipType).Round(2),
			Category:    CategoryMembershipFee,
			Status:      StatusPending,
			DueDate:     due,
			MemberID:    m.ID,
			BatchID:     &batchID,
			CreatedAt:   now,
		})
	}

	if len(rs) == 0 {
		return res, nil
	}

	if err := writeRequests(ctx, tx, rs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifyCreated(ctx, rs)

	res.Created = len(rs)

	return res, nil
}

func (s *Service) DeleteMonthlyFees(ctx context.Context, year int, month time.Month) (int, error) {
	if !validPeriod(year, month) {
		return 0, ErrInvalidPeriod
	}

	return s.DeleteBatch(ctx, MonthlyFeeBatchID(year, month))
}

func (s *Service) MarkMonthlyFeesPaid(ctx context.Context, year int, month time.Month) (*BatchResult, error) {
	if !validPeriod(year, month) {
		return nil, ErrInvalidPeriod
	}

	return s.MarkBatchPaid(ctx, MonthlyFeeBatchID(year, month))
}

// BatchSummary aggregates the requests of one batch.
type BatchSummary struct {
	BatchID   uuid.UUID
	Title     string
	Category  Category
	CreatedAt time.Time
	DueDate   time.Time
	Total     int
	Pending   int
	Paid      int
	Waived    int
	Amount    decimal.Decimal
	Collected decimal.Decimal
}

// Batches summarizes all batches, newest first.
func (s *Service) Batches(ctx context.Context) ([]*BatchSummary, error) {
	rs, err := s.repo.ListRequests(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}

	index := make(map[uuid.UUID]*BatchSummary)

	for _, r := range rs {
		if r.BatchID == nil {
			continue
		}

		b, ok := index[*r.BatchID]
		if !ok {
			b = &BatchSummary{
				BatchID:   *r.BatchID,
				Title:     r.Title,
				Category:  r.Category,
				CreatedAt: r.CreatedAt,
				DueDate:   r.DueDate,
				Amount:    decimal.Zero,
				Collected: decimal.Zero,
			}
			index[*r.BatchID] = b
		}

		b.Total++
		b.Amount = b.Amount.Add(r.Amount)

		switch r.Status {
		case StatusPending:
			b.Pending++
		case StatusPaid:
			b.Paid++
			b.Collected = b.Collected.Add(r.Amount)
		case StatusWaived:
			b.Waived++
		}
	}

	out := make([]*BatchSummary, 0, len(index))
	for _, b := range index {
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}

		return out[i].DueDate.After(out[j].DueDate)
	})

	return out, nil
}
