// Package report exports a period of the ledger for the auditor: every
// receipt file, a CSV of the transactions and a plain text summary.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

const (
	SummaryFile = "sammendrag.txt"
	LedgerFile  = "transaksjoner.csv"
)

// Item is an exported transaction with the local path of its receipt, if
// one was downloaded.
type Item struct {
	Transaction *ledger.Transaction
	FilePath    string
}

type Lister interface {
	List(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Transaction, error)
}

type Service struct {
	transactions Lister
	client       *http.Client
}

func NewService(transactions Lister) *Service {
	return &Service{
		transactions: transactions,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// Export writes the receipts of the transactions matching filter to dir.
// A receipt that cannot be downloaded fails the export; the auditor needs
// all of them.
func (s *Service) Export(ctx context.Context, filter ledger.ListFilter, dir string) ([]Item, error) {
	txs, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	items := make([]Item, 0, len(txs))
	used := make(map[string]int)

	for _, t := range txs {
		item := Item{Transaction: t}

		if t.ReceiptURL != "" {
			path, err := s.downloadReceipt(ctx, t, dir, used)
			if err != nil {
				return nil, fmt.Errorf("downloading receipt for transaction %s: %w", t.ID, err)
			}

			item.FilePath = path
		}

		items = append(items, item)
	}

	return items, nil
}

// WriteFiles writes the summary and the CSV next to the receipts in dir.
func (s *Service) WriteFiles(items []Item, dir string) error {
	if err := os.WriteFile(filepath.Join(dir, SummaryFile), []byte(Summary(items)), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, LedgerFile))
	if err != nil {
		return fmt.Errorf("creating csv: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, items); err != nil {
		return err
	}

	return f.Close()
}

func (s *Service) downloadReceipt(ctx context.Context, t *ledger.Transaction, dir string, used map[string]int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.ReceiptURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for url %s", resp.StatusCode, t.ReceiptURL)
	}

	path := filepath.Join(dir, unique(filename(resp, t), used))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}

	return path, nil
}

// filename prefers the server's Content-Disposition name and falls back to
// YYYYMMDD_description.ext.
func filename(resp *http.Response, t *ledger.Transaction) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return strings.ReplaceAll(filepath.Base(name), " ", "_")
			}
		}
	}

	ext := ".pdf"

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if exts, _ := mime.ExtensionsByType(ct); len(exts) > 0 {
			ext = exts[0]
		}
	}

	safe := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}

		return '_'
	}, t.Description)

	return fmt.Sprintf("%s_%s%s", t.Date.Format("20060102"), safe, ext)
}

// unique appends a counter when two receipts would share a name.
func unique(name string, used map[string]int) string {
	n := used[name]
	used[name] = n + 1

	if n == 0 {
		return name
	}

	ext := filepath.Ext(name)

	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}

// Summary renders one line per transaction followed by the period totals.
func Summary(items []Item) string {
	var sb strings.Builder

	income, expense := decimal.Zero, decimal.Zero

	for _, item := range items {
		t := item.Transaction

		sign := "-"
		if t.Type == ledger.TypeIncome {
			sign = "+"
			income = income.Add(t.Amount)
		} else {
			expense = expense.Add(t.Amount)
		}

		file := "Uten kvittering"
		if item.FilePath != "" {
			file = filepath.Base(item.FilePath)
		}

		fmt.Fprintf(&sb, "* %s | %s | %s%s kr | %s\n",
			t.Date.Format(time.DateOnly), t.Description, sign, t.Amount.StringFixed(2), file)
	}

	fmt.Fprintf(&sb, "\nInntekter: %s kr\nUtgifter: %s kr\nResultat: %s kr\n",
		income.StringFixed(2), expense.StringFixed(2), income.Sub(expense).StringFixed(2))

	return sb.String()
}

// WriteCSV writes the items semicolon separated, the way Norwegian
// spreadsheets expect.
func WriteCSV(w io.Writer, items []Item) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write([]string{"Dato", "Beskrivelse", "Kategori", "Medlem", "Beløp", "Kvittering"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, item := range items {
		t := item.Transaction

		receipt := ""
		if item.FilePath != "" {
			receipt = filepath.Base(item.FilePath)
		}

		row := []string{
			t.Date.Format(time.DateOnly),
			t.Description,
			t.Category,
			t.MemberName,
			strings.Replace(t.Signed().StringFixed(2), ".", ",", 1),
			receipt,
		}

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}
