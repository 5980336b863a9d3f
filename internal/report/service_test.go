package report_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/report"
)

type lister []*ledger.Transaction

func (l lister) List(context.Context, ledger.ListFilter) ([]*ledger.Transaction, error) {
	return l, nil
}

func tx(desc, amount string, typ ledger.Type, receipt string) *ledger.Transaction {
	return &ledger.Transaction{
		ID:          uuid.New(),
		Amount:      decimal.RequireFromString(amount),
		Type:        typ,
		Description: desc,
		Category:    ledger.CategoryOther,
		Date:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		ReceiptURL:  receipt,
	}
}

func TestService_Export(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/named.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", `attachment; filename="kvittering 1.pdf"`)
			_, _ = w.Write([]byte("pdf"))
		case "/unnamed":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("pdf"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	dir := t.TempDir()

	svc := report.NewService(lister{
		tx("Halleie", "1500", ledger.TypeExpense, ts.URL+"/named.pdf"),
		tx("Kaffe & kake", "89.5", ledger.TypeExpense, ts.URL+"/unnamed"),
		tx("Kontingent", "300", ledger.TypeIncome, ""),
	})

	items, err := svc.Export(context.Background(), ledger.ListFilter{}, dir)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "kvittering_1.pdf", filepath.Base(items[0].FilePath))
	assert.Equal(t, "20260314_Kaffe___kake.pdf", filepath.Base(items[1].FilePath))
	assert.Empty(t, items[2].FilePath)

	content, err := os.ReadFile(items[0].FilePath)
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(content))

	require.NoError(t, svc.WriteFiles(items, dir))
	assert.FileExists(t, filepath.Join(dir, report.SummaryFile))
	assert.FileExists(t, filepath.Join(dir, report.LedgerFile))
}

func TestService_ExportMissingReceipt(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	svc := report.NewService(lister{tx("Halleie", "1500", ledger.TypeExpense, ts.URL+"/gone.pdf")})

	_, err := svc.Export(context.Background(), ledger.ListFilter{}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestService_ExportDuplicateNames(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="scan.pdf"`)
		_, _ = w.Write([]byte("pdf"))
	}))
	defer ts.Close()

	svc := report.NewService(lister{
		tx("A", "1", ledger.TypeExpense, ts.URL+"/a"),
		tx("B", "2", ledger.TypeExpense, ts.URL+"/b"),
	})

	items, err := svc.Export(context.Background(), ledger.ListFilter{}, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "scan.pdf", filepath.Base(items[0].FilePath))
	assert.Equal(t, "scan_2.pdf", filepath.Base(items[1].FilePath))
}

func TestSummary(t *testing.T) {
	items := []report.Item{
		{Transaction: tx("Halleie", "1500", ledger.TypeExpense, ""), FilePath: "/tmp/x/halleie.pdf"},
		{Transaction: tx("Kontingent", "300", ledger.TypeIncome, "")},
	}

	got := report.Summary(items)

	assert.Contains(t, got, "* 2026-03-14 | Halleie | -1500.00 kr | halleie.pdf\n")
	assert.Contains(t, got, "* 2026-03-14 | Kontingent | +300.00 kr | Uten kvittering\n")
	assert.Contains(t, got, "Resultat: -1200.00 kr")
}

func TestWriteCSV(t *testing.T) {
	expense := tx("Halleie", "1500.5", ledger.TypeExpense, "")
	expense.MemberName = "Kari Nordmann"

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, []report.Item{{Transaction: expense}}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Dato;Beskrivelse;Kategori;Medlem;Beløp;Kvittering", lines[0])
	assert.Equal(t, "2026-03-14;Halleie;OTHER;Kari Nordmann;-1500,50;", lines[1])
}
