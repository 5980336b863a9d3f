package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/member"
	"github.com/MrJamesThe3rd/klubb/internal/store/memory"
)

func addMember(t *testing.T, s *memory.Store, name string) *member.Member {
	t.Helper()

	m := &member.Member{
		ExternalID:     "auth|" + name,
		Name:           name,
		Email:          name + "@example.com",
		Role:           member.RoleMember,
		MembershipType: member.TypeStandard,
		Active:         true,
	}
	require.NoError(t, s.Members().CreateMember(context.Background(), m))

	return m
}

func balance(t *testing.T, s *memory.Store, id uuid.UUID) string {
	t.Helper()

	m, err := s.Members().GetMember(context.Background(), id)
	require.NoError(t, err)

	return m.Balance.StringFixed(2)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		total string
		n     int
		want  []string
	}{
		{name: "Even", total: "300", n: 2, want: []string{"150.00", "150.00"}},
		{name: "RemainderToFirst", total: "100", n: 3, want: []string{"33.34", "33.33", "33.33"}},
		{name: "Single", total: "12.5", n: 1, want: []string{"12.50"}},
		{name: "LessThanOneCentEach", total: "0.02", n: 3, want: []string{"0.01", "0.01", "0.00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := ledger.Split(dec(tt.total), tt.n)

			got := make([]string, len(parts))
			sum := decimal.Zero

			for i, p := range parts {
				got[i] = p.StringFixed(2)
				sum = sum.Add(p)
			}

			assert.Equal(t, tt.want, got)
			assert.True(t, sum.Equal(dec(tt.total)), "parts must sum to the total")
		})
	}
}

func TestService_Create(t *testing.T) {
	memberID := uuid.New()

	type testCase struct {
		name      string
		params    ledger.CreateParams
		setupMock func(repo *ledger.MockRepository, tx *ledger.MockTx, n *ledger.MockNotifier)
		wantErr   error
	}

	tests := []testCase{
		{
			name: "MemberExpenseAdjustsBalanceAndNotifies",
			params: ledger.CreateParams{
				Amount:      dec("99.999"),
				Type:        ledger.TypeExpense,
				Description: " Kaffe ",
				MemberID:    &memberID,
			},
			setupMock: func(repo *ledger.MockRepository, tx *ledger.MockTx, n *ledger.MockNotifier) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, tr *ledger.Transaction) error {
						assert.Equal(t, "100.00", tr.Amount.StringFixed(2))
						assert.Equal(t, "Kaffe", tr.Description)
						assert.Equal(t, ledger.CategoryOther, tr.Category)
						assert.False(t, tr.Date.IsZero())
						tr.ID = uuid.New()

						return nil
					})
				tx.EXPECT().AdjustBalance(gomock.Any(), memberID, gomock.Any()).
					DoAndReturn(func(_ context.Context, _ uuid.UUID, delta decimal.Decimal) error {
						assert.Equal(t, "-100.00", delta.StringFixed(2))
						return nil
					})
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Rollback().Return(nil)
				n.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(1)
			},
		},
		{
			name: "ClubIncomeSkipsBalance",
			params: ledger.CreateParams{
				Amount:      dec("250"),
				Type:        ledger.TypeIncome,
				Description: "Sponsor",
			},
			setupMock: func(repo *ledger.MockRepository, tx *ledger.MockTx, _ *ledger.MockNotifier) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Rollback().Return(nil)
			},
		},
		{
			name:    "NegativeAmount",
			params:  ledger.CreateParams{Amount: dec("-1"), Type: ledger.TypeIncome, Description: "x"},
			wantErr: ledger.ErrNegativeAmount,
		},
		{
			name:    "InvalidType",
			params:  ledger.CreateParams{Amount: dec("1"), Type: "refund", Description: "x"},
			wantErr: ledger.ErrInvalidType,
		},
		{
			name:    "MissingDescription",
			params:  ledger.CreateParams{Amount: dec("1"), Type: ledger.TypeIncome, Description: "  "},
			wantErr: ledger.ErrDescriptionRequired,
		},
		{
			name: "UnknownMember",
			params: ledger.CreateParams{
				Amount: dec("1"), Type: ledger.TypeIncome, Description: "x", MemberID: &memberID,
			},
			setupMock: func(repo *ledger.MockRepository, tx *ledger.MockTx, _ *ledger.MockNotifier) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().AdjustBalance(gomock.Any(), memberID, gomock.Any()).Return(ledger.ErrMemberNotFound)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr: ledger.ErrMemberNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := ledger.NewMockRepository(ctrl)
			tx := ledger.NewMockTx(ctrl)
			n := ledger.NewMockNotifier(ctrl)

			if tt.setupMock != nil {
				tt.setupMock(repo, tx, n)
			}

			svc := ledger.NewService(repo, nil, n)

			got, err := svc.Create(context.Background(), tt.params)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}

func TestService_RegisterExpense(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := ledger.NewService(store.Ledger(), nil, nil)

	kari := addMember(t, store, "kari")
	ola := addMember(t, store, "ola")

	txs, err := svc.RegisterExpense(ctx, ledger.ExpenseParams{
		Total:       dec("300"),
		Description: "Pizza",
		Category:    ledger.CategoryEvent,
		MemberIDs:   []uuid.UUID{kari.ID, ola.ID, kari.ID},
	})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	for _, tr := range txs {
		assert.Equal(t, ledger.TypeExpense, tr.Type)
		assert.Equal(t, "150.00", tr.Amount.StringFixed(2))
		assert.Equal(t, "Pizza (Splittet)", tr.Description)
	}

	assert.Equal(t, "-150.00", balance(t, store, kari.ID))
	assert.Equal(t, "-150.00", balance(t, store, ola.ID))

	t.Run("SingleMemberKeepsDescription", func(t *testing.T) {
		txs, err := svc.RegisterExpense(ctx, ledger.ExpenseParams{
			Total: dec("40"), Description: "Taxi", MemberIDs: []uuid.UUID{ola.ID},
		})
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "Taxi", txs[0].Description)
	})

	t.Run("NoMembers", func(t *testing.T) {
		_, err := svc.RegisterExpense(ctx, ledger.ExpenseParams{Total: dec("10"), Description: "x"})
		assert.ErrorIs(t, err, ledger.ErrNoRecipients)
	})

	t.Run("UnknownMemberWritesNothing", func(t *testing.T) {
		before, err := svc.List(ctx, ledger.ListFilter{})
		require.NoError(t, err)

		_, err = svc.RegisterExpense(ctx, ledger.ExpenseParams{
			Total: dec("10"), Description: "x", MemberIDs: []uuid.UUID{kari.ID, uuid.New()},
		})
		assert.ErrorIs(t, err, ledger.ErrMemberNotFound)

		after, err := svc.List(ctx, ledger.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, after, len(before))
		assert.Equal(t, "-150.00", balance(t, store, kari.ID))
	})
}

func TestService_BalanceFollowsTransactions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := ledger.NewService(store.Ledger(), nil, nil)

	kari := addMember(t, store, "kari")

	income, err := svc.Create(ctx, ledger.CreateParams{
		Amount: dec("500"), Type: ledger.TypeIncome, Description: "Innbetaling", MemberID: &kari.ID,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, ledger.CreateParams{
		Amount: dec("120.50"), Type: ledger.TypeExpense, Description: "Lisens", MemberID: &kari.ID,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, ledger.CreateParams{
		Amount: dec("1000"), Type: ledger.TypeIncome, Description: "Sponsor",
	})
	require.NoError(t, err)

	assert.Equal(t, "379.50", balance(t, store, kari.ID))

	drifts, err := svc.Recalculate(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts, "incremental updates must match a full recalculation")

	require.NoError(t, svc.Delete(ctx, income.ID))
	assert.Equal(t, "-120.50", balance(t, store, kari.ID))

	_, err = svc.Get(ctx, income.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	drifts, err = svc.Recalculate(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	t.Run("DeleteMissingIsAtomic", func(t *testing.T) {
		txs, err := svc.List(ctx, ledger.ListFilter{MemberID: &kari.ID})
		require.NoError(t, err)
		require.Len(t, txs, 1)

		err = svc.DeleteMany(ctx, []uuid.UUID{txs[0].ID, uuid.New()})
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		assert.Equal(t, "-120.50", balance(t, store, kari.ID))
	})

	t.Run("DeleteAllZeroesBalances", func(t *testing.T) {
		require.NoError(t, svc.DeleteAll(ctx))

		txs, err := svc.List(ctx, ledger.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, txs)
		assert.Equal(t, "0.00", balance(t, store, kari.ID))
	})
}

func TestService_SetBalance(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := ledger.NewService(store.Ledger(), nil, nil)

	kari := addMember(t, store, "kari")

	_, err := svc.Create(ctx, ledger.CreateParams{
		Amount: dec("100"), Type: ledger.TypeIncome, Description: "Innbetaling", MemberID: &kari.ID,
	})
	require.NoError(t, err)

	t.Run("ReasonRequired", func(t *testing.T) {
		_, err := svc.SetBalance(ctx, kari.ID, dec("0"), " ")
		assert.ErrorIs(t, err, ledger.ErrReasonRequired)
	})

	t.Run("Down", func(t *testing.T) {
		tr, err := svc.SetBalance(ctx, kari.ID, dec("-25.005"), "Korrigering")
		require.NoError(t, err)
		require.NotNil(t, tr)

		assert.Equal(t, ledger.TypeExpense, tr.Type)
		assert.Equal(t, "125.01", tr.Amount.StringFixed(2))
		assert.Equal(t, ledger.CategoryManualAdjustment, tr.Category)
		assert.Equal(t, "-25.01", balance(t, store, kari.ID))
	})

	t.Run("Unchanged", func(t *testing.T) {
		tr, err := svc.SetBalance(ctx, kari.ID, dec("-25.01"), "Ingen endring")
		require.NoError(t, err)
		assert.Nil(t, tr)
	})

	t.Run("UnknownMember", func(t *testing.T) {
		_, err := svc.SetBalance(ctx, uuid.New(), dec("1"), "x")
		assert.ErrorIs(t, err, ledger.ErrMemberNotFound)
	})

	drifts, err := svc.Recalculate(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestService_Recalculate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := ledger.NewService(store.Ledger(), nil, nil)

	kari := addMember(t, store, "kari")

	_, err := svc.Create(ctx, ledger.CreateParams{
		Amount: dec("80"), Type: ledger.TypeIncome, Description: "Innbetaling", MemberID: &kari.ID,
	})
	require.NoError(t, err)

	tx, err := store.Ledger().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SetBalance(ctx, kari.ID, dec("5")))
	require.NoError(t, tx.Commit())

	drifts, err := svc.Recalculate(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, kari.ID, drifts[0].MemberID)
	assert.Equal(t, "5.00", drifts[0].Previous.StringFixed(2))
	assert.Equal(t, "80.00", drifts[0].Current.StringFixed(2))

	drifts, err = svc.Recalculate(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestService_ReceiptCleanup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ctrl := gomock.NewController(t)
	receipts := ledger.NewMockReceiptDeleter(ctrl)
	svc := ledger.NewService(store.Ledger(), receipts, nil)

	kari := addMember(t, store, "kari")
	ola := addMember(t, store, "ola")

	txs, err := svc.RegisterExpense(ctx, ledger.ExpenseParams{
		Total:       dec("90"),
		Description: "Halleie",
		MemberIDs:   []uuid.UUID{kari.ID, ola.ID},
		ReceiptURL:  "https://res.cloudinary.com/demo/image/upload/v1/klubb/hall.jpg",
		ReceiptKey:  "klubb/hall",
	})
	require.NoError(t, err)

	// Still referenced by the other part.
	require.NoError(t, svc.Delete(ctx, txs[0].ID))

	receipts.EXPECT().Delete(gomock.Any(), "klubb/hall").Return(nil)
	require.NoError(t, svc.Delete(ctx, txs[1].ID))
}

func TestGroupForDisplay(t *testing.T) {
	date := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	kari, ola := uuid.New(), uuid.New()

	txs := []*ledger.Transaction{
		{ID: uuid.New(), Amount: dec("150"), Type: ledger.TypeExpense, Description: "Pizza (Splittet)", Category: ledger.CategoryEvent, Date: date, MemberID: &kari, MemberName: "Kari"},
		{ID: uuid.New(), Amount: dec("20"), Type: ledger.TypeIncome, Description: "Kaffe", Category: ledger.CategoryOther, Date: date},
		{ID: uuid.New(), Amount: dec("150"), Type: ledger.TypeExpense, Description: "Pizza (Splittet)", Category: ledger.CategoryEvent, Date: date, MemberID: &ola, MemberName: "Ola"},
		{ID: uuid.New(), Amount: dec("150"), Type: ledger.TypeExpense, Description: "Pizza", Category: ledger.CategoryEvent, Date: date.Add(time.Second), MemberID: &kari, MemberName: "Kari"},
	}

	groups := ledger.GroupForDisplay(txs)
	require.Len(t, groups, 3)

	assert.Equal(t, "Pizza", groups[0].Description)
	assert.Equal(t, "-300.00", groups[0].Amount.StringFixed(2))
	assert.Equal(t, []string{"Kari", "Ola"}, groups[0].MemberNames)
	assert.Len(t, groups[0].TransactionIDs, 2)

	assert.Equal(t, "Kaffe", groups[1].Description)
	assert.Empty(t, groups[1].MemberIDs)

	assert.Equal(t, "-150.00", groups[2].Amount.StringFixed(2))
}

func TestService_ListEndDateCoversWholeDay(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := ledger.NewService(store.Ledger(), nil, nil)

	for _, d := range []time.Time{
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 30, 14, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	} {
		_, err := svc.Create(ctx, ledger.CreateParams{Amount: dec("10"), Type: ledger.TypeIncome, Description: "Kiosk", Date: d})
		require.NoError(t, err)
	}

	start, err := time.Parse(time.DateOnly, "2025-06-01")
	require.NoError(t, err)

	end, err := time.Parse(time.DateOnly, "2025-06-30")
	require.NoError(t, err)

	txs, err := svc.List(ctx, ledger.ListFilter{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	for _, tr := range txs {
		assert.Equal(t, time.June, tr.Date.Month())
	}
}

func TestListFilter_Until(t *testing.T) {
	assert.Nil(t, ledger.ListFilter{}.Until())

	end := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	until := ledger.ListFilter{EndDate: &end}.Until()
	require.NotNil(t, until)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *until)
}

func TestService_ReceiptKeyFromURL(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ctrl := gomock.NewController(t)
	receipts := ledger.NewMockReceiptDeleter(ctrl)
	svc := ledger.NewService(store.Ledger(), receipts, nil)

	tr, err := svc.Create(ctx, ledger.CreateParams{
		Amount:      dec("249"),
		Type:        ledger.TypeExpense,
		Description: "Baller",
		ReceiptURL:  "https://res.cloudinary.com/demo/image/upload/v1712345678/receipts/baller.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "receipts/baller", tr.ReceiptKey)

	other, err := svc.Create(ctx, ledger.CreateParams{
		Amount:      dec("20"),
		Type:        ledger.TypeExpense,
		Description: "Kaffe",
		ReceiptURL:  "https://example.com/kvittering.jpg",
	})
	require.NoError(t, err)
	assert.Empty(t, other.ReceiptKey)

	receipts.EXPECT().Delete(gomock.Any(), "receipts/baller").Return(nil)
	require.NoError(t, svc.Delete(ctx, tr.ID))

	// No key, nothing to delete.
	require.NoError(t, svc.Delete(ctx, other.ID))
}

type feeFixture struct {
	store    *memory.Store
	ledger   *ledger.Service
	invoices *invoice.Service
	kari     *member.Member
}

// newFeeFixture pays kari's June 2025 membership fee.
func newFeeFixture(t *testing.T) *feeFixture {
	t.Helper()

	ctx := context.Background()
	store := memory.New()
	members := member.NewService(store.Members(), decimal.NewFromInt(300))

	f := &feeFixture{
		store:    store,
		ledger:   ledger.NewService(store.Ledger(), nil, nil),
		invoices: invoice.NewService(store.Invoices(), members, nil),
		kari:     addMember(t, store, "kari"),
	}

	_, err := f.invoices.GenerateMonthlyFees(ctx, 2025, time.June)
	require.NoError(t, err)

	f.payFee(t)

	return f
}

func (f *feeFixture) request(t *testing.T) *invoice.Request {
	t.Helper()

	batch := invoice.MonthlyFeeBatchID(2025, time.June)

	rs, err := f.invoices.List(context.Background(), invoice.ListFilter{BatchID: &batch, MemberID: &f.kari.ID})
	require.NoError(t, err)
	require.Len(t, rs, 1)

	return rs[0]
}

func (f *feeFixture) payFee(t *testing.T) {
	t.Helper()

	r, err := f.invoices.MarkPaid(context.Background(), f.request(t).ID, 0)
	require.NoError(t, err)
	require.Equal(t, invoice.StatusPaid, r.Status)
}

func (f *feeFixture) assertReleased(t *testing.T) {
	t.Helper()

	r := f.request(t)
	assert.Equal(t, invoice.StatusPending, r.Status)
	assert.Nil(t, r.TransactionID)

	ps, err := f.invoices.ListPayments(context.Background(), "2025-06")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, invoice.PaymentUnpaid, ps[0].Status)
	assert.Nil(t, ps[0].Amount)
	assert.Nil(t, ps[0].PaidAt)

	assert.Equal(t, "0.00", balance(t, f.store, f.kari.ID))
}

func TestService_DeleteReleasesMembershipFee(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t)

	paid := f.request(t)
	require.NotNil(t, paid.TransactionID)
	assert.Equal(t, "300.00", balance(t, f.store, f.kari.ID))

	ps, err := f.invoices.ListPayments(ctx, "2025-06")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Equal(t, invoice.PaymentPaid, ps[0].Status)

	require.NoError(t, f.ledger.Delete(ctx, *paid.TransactionID))

	f.assertReleased(t)

	t.Run("CanBePaidAgain", func(t *testing.T) {
		f.payFee(t)
		assert.Equal(t, "300.00", balance(t, f.store, f.kari.ID))
	})
}

func TestService_DeleteAllReleasesPayments(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t)

	_, err := f.ledger.Create(ctx, ledger.CreateParams{
		Amount: dec("75"), Type: ledger.TypeExpense, Description: "Drakt", MemberID: &f.kari.ID,
	})
	require.NoError(t, err)

	require.NoError(t, f.ledger.DeleteAll(ctx))

	f.assertReleased(t)

	txs, err := f.ledger.List(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}
