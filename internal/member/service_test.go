package member_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
	"github.com/MrJamesThe3rd/klubb/internal/member"
	"github.com/MrJamesThe3rd/klubb/internal/store/memory"
)

var fallback = decimal.NewFromInt(300)

func TestService_Create(t *testing.T) {
	type testCase struct {
		name      string
		params    member.CreateParams
		setupMock func(m *member.MockRepository)
		wantKind  apperr.Kind
		wantErr   bool
	}

	tests := []testCase{
		{
			name: "Success",
			params: member.CreateParams{
				ExternalID: "auth|123",
				Name:       "Kari Nordmann",
				Email:      "kari@example.com",
			},
			setupMock: func(m *member.MockRepository) {
				m.EXPECT().
					CreateMember(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, mem *member.Member) error {
						assert.Equal(t, member.RoleMember, mem.Role)
						assert.Equal(t, member.TypeStandard, mem.MembershipType)
						assert.True(t, mem.Balance.IsZero())
						assert.True(t, mem.Active)
						mem.ID = uuid.New()

						return nil
					})
			},
		},
		{
			name:     "MissingName",
			params:   member.CreateParams{ExternalID: "auth|1", Email: "a@b.no"},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "BadEmail",
			params:   member.CreateParams{ExternalID: "auth|1", Name: "Ola", Email: "nope"},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name: "BadRole",
			params: member.CreateParams{
				ExternalID: "auth|1", Name: "Ola", Email: "ola@example.com", Role: "OWNER",
			},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:   "RepoError",
			params: member.CreateParams{ExternalID: "auth|1", Name: "Ola", Email: "ola@example.com"},
			setupMock: func(m *member.MockRepository) {
				m.EXPECT().CreateMember(gomock.Any(), gomock.Any()).Return(errors.New("db error"))
			},
			wantErr:  true,
			wantKind: apperr.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := member.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			svc := member.NewService(repo, fallback)
			got, err := svc.Create(context.Background(), tt.params)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, got.ID)
		})
	}
}

func TestService_FeeSchedule(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := member.NewMockRepository(ctrl)
	repo.EXPECT().ListFees(gomock.Any()).Return([]member.Fee{
		{Type: member.TypeStudent, Amount: decimal.NewFromInt(150)},
		{Type: member.TypeHonorary, Amount: decimal.Zero},
	}, nil)

	svc := member.NewService(repo, fallback)

	schedule, err := svc.FeeSchedule(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "150", schedule.For(member.TypeStudent).String())
	assert.True(t, schedule.For(member.TypeHonorary).IsZero())
	assert.True(t, schedule.For(member.TypeStandard).Equal(fallback))
}

func TestService_Delete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	id := uuid.New()

	repo := member.NewMockRepository(ctrl)
	repo.EXPECT().DeleteMember(gomock.Any(), id).Return(member.ErrHasFinancialHistory)

	err := member.NewService(repo, fallback).Delete(context.Background(), id)
	assert.ErrorIs(t, err, member.ErrHasFinancialHistory)
}

func TestService_DeleteChecksBalanceUnderLock(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := member.NewService(store.Members(), fallback)

	create := func(name string) *member.Member {
		m, err := svc.Create(ctx, member.CreateParams{
			ExternalID:     "auth|" + name,
			Name:           name,
			Email:          name + "@example.com",
			MembershipType: member.TypeStandard,
		})
		require.NoError(t, err)

		return m
	}

	kari := create("kari")
	ola := create("ola")

	// A balance with no transaction behind it, as left by drift.
	tx, err := store.Ledger().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AdjustBalance(ctx, kari.ID, decimal.NewFromInt(-50)))
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, svc.Delete(ctx, kari.ID), member.ErrHasFinancialHistory)

	_, err = svc.Get(ctx, kari.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, ola.ID))

	_, err = svc.Get(ctx, ola.ID)
	assert.ErrorIs(t, err, member.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, ola.ID), member.ErrNotFound)
}

func TestService_SetFee(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := member.NewMockRepository(ctrl)
	repo.EXPECT().
		SetFee(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fee member.Fee) error {
			assert.Equal(t, member.TypeFamily, fee.Type)
			assert.Equal(t, "499.99", fee.Amount.StringFixed(2))

			return nil
		})

	svc := member.NewService(repo, fallback)

	require.NoError(t, svc.SetFee(context.Background(), member.TypeFamily, decimal.RequireFromString("499.985")))
	assert.Error(t, svc.SetFee(context.Background(), member.TypeFamily, decimal.NewFromInt(-1)))
	assert.ErrorIs(t, svc.SetFee(context.Background(), "GOLD", decimal.NewFromInt(1)), member.ErrInvalidType)
}
