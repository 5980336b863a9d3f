package bank_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/MrJamesThe3rd/klubb/internal/importer/bank"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func parse(t *testing.T, csv string, names ...string) ([]ledger.CreateParams, error) {
	t.Helper()

	p, err := bank.NewParser(names...)
	require.NoError(t, err)

	return p.Parse(strings.NewReader(csv))
}

func TestParser_DNB(t *testing.T) {
	csv := `"Dato";"Forklaring";"Rentedato";"Ut fra konto";"Inn på konto"
"30.01.2026";"Varekjøp REMA 1000 MAJORSTUEN";"30.01.2026";"588,74";""
"09.01.2026";"Vipps Kari Nordmann";"09.01.2026";"";"8 608,52"
`

	txs, err := parse(t, csv)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, date(2026, 1, 30), txs[0].Date)
	assert.Equal(t, "Varekjøp REMA 1000 MAJORSTUEN", txs[0].Description)
	assert.Equal(t, "588.74", txs[0].Amount.StringFixed(2))
	assert.Equal(t, ledger.TypeExpense, txs[0].Type)

	assert.Equal(t, date(2026, 1, 9), txs[1].Date)
	assert.Equal(t, "8608.52", txs[1].Amount.StringFixed(2))
	assert.Equal(t, ledger.TypeIncome, txs[1].Type)
}

func TestParser_SpareBank1(t *testing.T) {
	csv := `Dato;Beskrivelse;Rentedato;Inn;Ut;Til konto;Fra konto
13.02.2026;Halleie februar;13.02.2026;;-1.500,00;12345678901;
04.02.2026;Kontingent Ola;04.02.2026;300,00;;;98765432109
`

	txs, err := parse(t, csv, "sparebank1")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "1500.00", txs[0].Amount.StringFixed(2))
	assert.Equal(t, ledger.TypeExpense, txs[0].Type)

	assert.Equal(t, "300.00", txs[1].Amount.StringFixed(2))
	assert.Equal(t, ledger.TypeIncome, txs[1].Type)
}

func TestParser_Nordea(t *testing.T) {
	csv := `Bokføringsdato;Beløp;Avsender;Mottaker;Navn;Tittel;Valuta;Betalingstype
2025/12/16;-64,00;;;;KIWI 505 BISLETT;NOK;Varekjøp
2025/12/31;250,5;;;;Innbetaling cup;NOK;Overføring
Reservert;-10,00;;;;PENDING;NOK;
`

	txs, err := parse(t, csv)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, date(2025, 12, 16), txs[0].Date)
	assert.Equal(t, "64.00", txs[0].Amount.StringFixed(2))
	assert.Equal(t, ledger.TypeExpense, txs[0].Type)

	assert.Equal(t, "250.50", txs[1].Amount.StringFixed(2))
	assert.Equal(t, ledger.TypeIncome, txs[1].Type)
}

func TestParser_Latin1Encoding(t *testing.T) {
	utf8CSV := "Dato;Forklaring;Ut fra konto;Inn på konto\n30.01.2026;KAFÉ ÆRLIG;10,00;\n"

	latin1Bytes, err := charmap.Windows1252.NewEncoder().Bytes([]byte(utf8CSV))
	require.NoError(t, err)

	p, err := bank.NewParser()
	require.NoError(t, err)

	txs, err := p.Parse(bytes.NewReader(latin1Bytes))
	require.NoError(t, err)
	require.Len(t, txs, 1)

	assert.Equal(t, "KAFÉ ÆRLIG", txs[0].RawDescription)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		names   []string
		wantErr string
	}{
		{name: "EmptyFile", csv: "", wantErr: "no matching bank format"},
		{name: "MissingDescription", csv: "Dato;Forklaring;Ut fra konto;Inn på konto\n30.01.2026;;10,00;\n", wantErr: "description"},
		{name: "RestrictedToOtherBank", csv: "Dato;Forklaring;Ut fra konto;Inn på konto\n", names: []string{"nordea"}, wantErr: "no matching bank format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.csv, tt.names...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParser_HeaderOnly(t *testing.T) {
	txs, err := parse(t, "Dato;Forklaring;Rentedato;Ut fra konto;Inn på konto")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestParser_LargeAmounts(t *testing.T) {
	txs, err := parse(t, "Bokføringsdato;Beløp;Tittel\n2026/01/30;-1.234.567,89;BIG TRANSFER\n")
	require.NoError(t, err)
	require.Len(t, txs, 1)

	assert.Equal(t, "1234567.89", txs[0].Amount.StringFixed(2))
}

func TestNewParser_UnknownBank(t *testing.T) {
	_, err := bank.NewParser("cgd")
	assert.Error(t, err)
}
