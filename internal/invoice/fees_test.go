package invoice_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/member"
)

func TestMonthlyFeeBatchID(t *testing.T) {
	assert.Equal(t, invoice.MonthlyFeeBatchID(2025, time.June), invoice.MonthlyFeeBatchID(2025, time.June))
	assert.NotEqual(t, invoice.MonthlyFeeBatchID(2025, time.June), invoice.MonthlyFeeBatchID(2025, time.July))
	assert.Equal(t, "Medlemskontingent 2025-06", invoice.MonthlyFeeTitle(2025, time.June))
}

func TestService_GenerateMonthlyFees(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.members.SetFee(ctx, member.TypeStudent, dec("150")))

	kari := f.addMember(t, "kari", member.TypeStandard)
	ola := f.addMember(t, "ola", member.TypeStudent)
	f.addMember(t, "per", member.TypeStandard)
	gone := f.addMember(t, "gone", member.TypeStandard)
	require.NoError(t, f.members.Deactivate(ctx, gone.ID))

	res, err := f.invoices.GenerateMonthlyFees(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, "Medlemskontingent 2025-06", res.Title)
	assert.Equal(t, invoice.MonthlyFeeBatchID(2025, time.June), res.BatchID)

	rs, err := f.invoices.List(ctx, invoice.ListFilter{BatchID: &res.BatchID})
	require.NoError(t, err)
	require.Len(t, rs, 3)

	amounts := map[string]string{}
	for _, r := range rs {
		amounts[r.MemberName] = r.Amount.StringFixed(2)
		assert.Equal(t, invoice.CategoryMembershipFee, r.Category)
		assert.Equal(t, time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC), r.DueDate)
		assert.Equal(t, "2025-06", r.Period())
	}

	assert.Equal(t, map[string]string{"kari": "300.00", "ola": "150.00", "per": "300.00"}, amounts)

	t.Run("SecondRunCreatesNothing", func(t *testing.T) {
		again, err := f.invoices.GenerateMonthlyFees(ctx, 2025, time.June)
		require.NoError(t, err)
		assert.Equal(t, 0, again.Created)
		assert.Equal(t, 3, again.Skipped)

		rs, err := f.invoices.List(ctx, invoice.ListFilter{BatchID: &res.BatchID})
		require.NoError(t, err)
		assert.Len(t, rs, 3)
	})

	t.Run("NewMemberIsAdded", func(t *testing.T) {
		f.addMember(t, "lise", member.TypeStandard)

		again, err := f.invoices.GenerateMonthlyFees(ctx, 2025, time.June)
		require.NoError(t, err)
		assert.Equal(t, 1, again.Created)
		assert.Equal(t, 3, again.Skipped)
	})

	t.Run("InvalidPeriod", func(t *testing.T) {
		_, err := f.invoices.GenerateMonthlyFees(ctx, 2025, 13)
		assert.ErrorIs(t, err, invoice.ErrInvalidPeriod)
	})

	t.Run("DeleteWithPaidMemberKeepsBatch", func(t *testing.T) {
		kariReq, err := f.invoices.List(ctx, invoice.ListFilter{BatchID: &res.BatchID, MemberID: &kari.ID})
		require.NoError(t, err)
		require.Len(t, kariReq, 1)

		_, err = f.invoices.MarkPaid(ctx, kariReq[0].ID, 0)
		require.NoError(t, err)

		_, err = f.invoices.DeleteMonthlyFees(ctx, 2025, time.June)
		assert.ErrorIs(t, err, invoice.ErrBatchHasPaid)

		rs, err := f.invoices.List(ctx, invoice.ListFilter{BatchID: &res.BatchID})
		require.NoError(t, err)
		assert.Len(t, rs, 4)
	})

	t.Run("Summary", func(t *testing.T) {
		batches, err := f.invoices.Batches(ctx)
		require.NoError(t, err)
		require.Len(t, batches, 1)

		b := batches[0]
		assert.Equal(t, 4, b.Total)
		assert.Equal(t, 1, b.Paid)
		assert.Equal(t, 3, b.Pending)
		assert.Equal(t, "1050.00", b.Amount.StringFixed(2))
		assert.Equal(t, "300.00", b.Collected.StringFixed(2))
	})

	t.Run("DeleteAfterUnpay", func(t *testing.T) {
		kariReq, err := f.invoices.List(ctx, invoice.ListFilter{BatchID: &res.BatchID, MemberID: &kari.ID})
		require.NoError(t, err)

		_, err = f.invoices.TogglePaid(ctx, kariReq[0].ID, kariReq[0].Version)
		require.NoError(t, err)

		n, err := f.invoices.DeleteMonthlyFees(ctx, 2025, time.June)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		_, err = f.invoices.DeleteMonthlyFees(ctx, 2025, time.June)
		assert.ErrorIs(t, err, invoice.ErrBatchNotFound)

		assert.Equal(t, "0.00", f.balance(t, kari.ID))
		assert.Empty(t, f.transactions(t, ola.ID))

		payments, err := f.invoices.ListPayments(ctx, "2025-06")
		require.NoError(t, err)
		assert.Empty(t, payments)
	})
}

func TestService_DeleteFeeDropsPeriodRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	kari := f.addMember(t, "kari", member.TypeStandard)
	ola := f.addMember(t, "ola", member.TypeStandard)
	per := f.addMember(t, "per", member.TypeStandard)

	res, err := f.invoices.GenerateMonthlyFees(ctx, 2025, time.August)
	require.NoError(t, err)

	payments, err := f.invoices.ListPayments(ctx, "2025-08")
	require.NoError(t, err)
	require.Len(t, payments, 3)

	byMember := func(id uuid.UUID) *invoice.Request {
		rs, err := f.invoices.List(ctx, invoice.ListFilter{BatchID: &res.BatchID, MemberID: &id})
		require.NoError(t, err)
		require.Len(t, rs, 1)

		return rs[0]
	}

	_, err = f.invoices.MarkPaid(ctx, byMember(per.ID).ID, 0)
	require.NoError(t, err)

	require.NoError(t, f.invoices.Delete(ctx, byMember(kari.ID).ID))

	payments, err = f.invoices.ListPayments(ctx, "2025-08")
	require.NoError(t, err)
	require.Len(t, payments, 2)

	status := map[uuid.UUID]invoice.PaymentStatus{}
	for _, p := range payments {
		status[p.MemberID] = p.Status
	}

	assert.Equal(t, map[uuid.UUID]invoice.PaymentStatus{
		ola.ID: invoice.PaymentUnpaid,
		per.ID: invoice.PaymentPaid,
	}, status)

	t.Run("RegenerateRestoresRow", func(t *testing.T) {
		again, err := f.invoices.GenerateMonthlyFees(ctx, 2025, time.August)
		require.NoError(t, err)
		assert.Equal(t, 1, again.Created)

		payments, err := f.invoices.ListPayments(ctx, "2025-08")
		require.NoError(t, err)
		assert.Len(t, payments, 3)
	})
}

func TestService_MarkBatchPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	kari := f.addMember(t, "kari", member.TypeStandard)
	ola := f.addMember(t, "ola", member.TypeStandard)
	per := f.addMember(t, "per", member.TypeStandard)

	res, err := f.invoices.GenerateMonthlyFees(ctx, 2025, time.May)
	require.NoError(t, err)
	require.Equal(t, 3, res.Created)

	perReq, err := f.invoices.List(ctx, invoice.ListFilter{BatchID: &res.BatchID, MemberID: &per.ID})
	require.NoError(t, err)

	_, err = f.invoices.Waive(ctx, perReq[0].ID, 0)
	require.NoError(t, err)

	kariReq, err := f.invoices.List(ctx, invoice.ListFilter{BatchID: &res.BatchID, MemberID: &kari.ID})
	require.NoError(t, err)

	// Simulates a run that stopped after the first request.
	_, err = f.invoices.MarkPaid(ctx, kariReq[0].ID, 0)
	require.NoError(t, err)

	out, err := f.invoices.MarkMonthlyFeesPaid(ctx, 2025, time.May)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Paid)
	assert.Equal(t, 0, out.Failed)
	assert.Empty(t, out.FailedIDs)

	assert.Equal(t, "300.00", f.balance(t, kari.ID))
	assert.Equal(t, "300.00", f.balance(t, ola.ID))
	assert.Equal(t, "0.00", f.balance(t, per.ID))

	payments, err := f.invoices.ListPayments(ctx, "2025-05")
	require.NoError(t, err)
	require.Len(t, payments, 3)

	paid := 0
	for _, p := range payments {
		if p.Status == invoice.PaymentPaid {
			paid++
		}
	}

	assert.Equal(t, 2, paid)

	t.Run("RerunIsNoop", func(t *testing.T) {
		out, err := f.invoices.MarkMonthlyFeesPaid(ctx, 2025, time.May)
		require.NoError(t, err)
		assert.Equal(t, 0, out.Paid)
		assert.Equal(t, "300.00", f.balance(t, kari.ID))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		_, err := f.invoices.Create(ctx, invoice.CreateParams{Title: "Cup", Amount: dec("10"), MemberIDs: []uuid.UUID{kari.ID, ola.ID}})
		require.NoError(t, err)

		batches, err := f.invoices.Batches(ctx)
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		var cup *invoice.BatchSummary
		for _, b := range batches {
			if b.Title == "Cup" {
				cup = b
			}
		}
		require.NotNil(t, cup)

		out, err := f.invoices.MarkBatchPaid(cctx, cup.BatchID)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, out.Paid)
	})
}
