package categorize_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/klubb/internal/categorize"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/store/memory"
)

func TestService_Apply(t *testing.T) {
	ctx := context.Background()
	svc := categorize.NewService(memory.New().Rules())

	_, err := svc.Learn(ctx, "vipps", "Vipps-innbetaling", ledger.CategoryMembershipFee)
	require.NoError(t, err)

	_, err = svc.Learn(ctx, "VIPPS*KIOSK", "Kioskinntekt", ledger.CategoryEvent)
	require.NoError(t, err)

	_, err = svc.Learn(ctx, "rema", "Dagligvarer", "")
	require.NoError(t, err)

	rows := []ledger.CreateParams{
		{Description: "Vipps*Kiosk 1234", RawDescription: "Vipps*Kiosk 1234"},
		{Description: "VIPPS KARI NORDMANN", RawDescription: "VIPPS KARI NORDMANN"},
		{Description: "Edited by hand", RawDescription: "REMA 1000 MAJORSTUEN"},
		{Description: "REMA 1000 MAJORSTUEN", RawDescription: "REMA 1000 MAJORSTUEN"},
		{Description: "SPOTIFY", RawDescription: "SPOTIFY"},
	}

	out, err := svc.Apply(ctx, rows)
	require.NoError(t, err)
	require.Len(t, out, len(rows))

	tests := []struct {
		description string
		category    string
	}{
		{"Kioskinntekt", ledger.CategoryEvent},
		{"Vipps-innbetaling", ledger.CategoryMembershipFee},
		{"Edited by hand", ""},
		{"Dagligvarer", ledger.CategoryOther},
		{"SPOTIFY", ""},
	}

	for i, tt := range tests {
		assert.Equal(t, tt.description, out[i].Description, "row %d", i)
		assert.Equal(t, tt.category, out[i].Category, "row %d", i)
	}

	assert.Equal(t, "Vipps*Kiosk 1234", rows[0].Description, "input is not modified")
}

func TestService_Learn(t *testing.T) {
	ctx := context.Background()
	svc := categorize.NewService(memory.New().Rules())

	_, err := svc.Learn(ctx, " ", "x", "")
	assert.ErrorIs(t, err, categorize.ErrInvalidRule)

	r, err := svc.Learn(ctx, "kiwi", "Dagligvarer", "")
	require.NoError(t, err)

	rules, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	require.NoError(t, svc.Delete(ctx, r.ID))
	assert.ErrorIs(t, svc.Delete(ctx, r.ID), categorize.ErrNotFound)

	match, err := svc.Suggest(ctx, "KIWI 123")
	require.NoError(t, err)
	assert.Nil(t, match)
}
