package view

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/member"
)

func TestSuggestMember(t *testing.T) {
	kari := &member.Member{ID: uuid.New(), Name: "Kari Nordmann"}
	ola := &member.Member{ID: uuid.New(), Name: "Ola Hansen"}
	members := []*member.Member{kari, ola}

	tests := []struct {
		name string
		raw  string
		want *uuid.UUID
	}{
		{name: "FullName", raw: "VIPPS FRA KARI NORDMANN", want: &kari.ID},
		{name: "FirstNameOnly", raw: "Overføring Kari"},
		{name: "TwoMembers", raw: "Kari Nordmann og Ola Hansen"},
		{name: "NoMatch", raw: "REMA 1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, suggestMember(tt.raw, members))
		})
	}
}

func TestNextMember(t *testing.T) {
	a := &member.Member{ID: uuid.New(), Name: "a"}
	b := &member.Member{ID: uuid.New(), Name: "b"}
	members := []*member.Member{a, b}

	got := nextMember(nil, members)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, *got)

	got = nextMember(got, members)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, *got)

	assert.Nil(t, nextMember(got, members))
	assert.Nil(t, nextMember(nil, nil))

	unknown := uuid.New()
	assert.Nil(t, nextMember(&unknown, members))
}

func TestNextCategory(t *testing.T) {
	assert.Equal(t, ledger.CategoryEvent, nextCategory(ledger.CategoryOther))
	assert.Equal(t, ledger.CategoryMembershipFee, nextCategory(ledger.CategoryEvent))
	assert.Equal(t, ledger.CategoryOther, nextCategory(ledger.CategoryMembershipFee))
	assert.Equal(t, ledger.CategoryOther, nextCategory("Kiosk"))
}

func TestMarkDuplicates(t *testing.T) {
	date := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	row := func(amount, raw string) importRow {
		return importRow{params: ledger.CreateParams{
			Amount:         decimal.RequireFromString(amount),
			Type:           ledger.TypeIncome,
			Description:    raw,
			RawDescription: raw,
			Date:           date,
		}}
	}

	rows := []importRow{row("300", "VIPPS"), row("300", "VIPPS"), row("50", "KIOSK")}
	existing := &ledger.Transaction{ID: uuid.New(), Description: "Kontingent"}

	// One earlier copy of a row that appears twice in the statement.
	incoming := rows[0].params
	incoming.Amount = decimal.RequireFromString("300.00")

	n := markDuplicates(rows, []ledger.Conflict{{Incoming: incoming, Existing: existing}})
	assert.Equal(t, 1, n)

	assert.True(t, rows[0].skip)
	assert.Same(t, existing, rows[0].existing)
	assert.False(t, rows[1].skip)
	assert.Nil(t, rows[1].existing)
	assert.False(t, rows[2].skip)
}
