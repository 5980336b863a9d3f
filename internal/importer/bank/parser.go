// Package bank reads CSV account statements exported from Norwegian online
// banks.
package bank

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	enc "github.com/MrJamesThe3rd/klubb/internal/encoding"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

// Parser produces ledger params from a statement. It detects which bank
// format is being used by matching column headers against known profiles.
type Parser struct {
	profiles []Profile
}

// NewParser returns a parser restricted to the named profiles, or one that
// tries every known profile when no names are given.
func NewParser(names ...string) (*Parser, error) {
	if len(names) == 0 {
		return &Parser{profiles: profiles}, nil
	}

	var selected []Profile

	for _, name := range names {
		found := false

		for _, p := range profiles {
			if p.Name == name {
				selected = append(selected, p)
				found = true
			}
		}

		if !found {
			return nil, fmt.Errorf("unknown bank format %q", name)
		}
	}

	return &Parser{profiles: selected}, nil
}

func (p *Parser) Parse(r io.Reader) ([]ledger.CreateParams, error) {
	utf8r, err := enc.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	reader := csv.NewReader(utf8r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	profile, cols, headerIdx := p.detectProfile(rows)
	if profile == nil {
		return nil, fmt.Errorf("no matching bank format found: expected columns for %s", strings.Join(Names(), ", "))
	}

	return parseRows(profile, cols, rows[headerIdx+1:], headerIdx+1)
}

// colIndex maps column names to their index in the row.
type colIndex map[string]int

func (p *Parser) detectProfile(rows [][]string) (*Profile, colIndex, int) {
	for rowIdx, row := range rows {
		cols := make(colIndex)

		for i, cell := range row {
			if name := strings.TrimSpace(cell); name != "" {
				cols[name] = i
			}
		}

		for i := range p.profiles {
			if matchesProfile(&p.profiles[i], cols) {
				return &p.profiles[i], cols, rowIdx
			}
		}
	}

	return nil, nil, 0
}

func matchesProfile(p *Profile, cols colIndex) bool {
	for _, name := range p.requiredCols() {
		if _, ok := cols[name]; !ok {
			return false
		}
	}

	return true
}

// parseRows extracts params from data rows. headerRowNum is the 0-based index
// of the header in the original file, used in error messages.
func parseRows(p *Profile, cols colIndex, rows [][]string, headerRowNum int) ([]ledger.CreateParams, error) {
	dateIdx := cols[p.DateCol]
	descIdx := cols[p.DescCol]

	var out []ledger.CreateParams

	for i, row := range rows {
		rowNum := headerRowNum + i + 1

		date, ok := parseDate(row, dateIdx, p.DateLayout)
		if !ok {
			continue
		}

		desc := cellValue(row, descIdx)
		if desc == "" {
			return nil, fmt.Errorf("row %d: missing description", rowNum)
		}

		amount, typ, ok := parseRowAmount(p, cols, row)
		if !ok {
			continue
		}

		out = append(out, ledger.CreateParams{
			Amount:         amount,
			Type:           typ,
			Description:    desc,
			RawDescription: desc,
			Date:           date,
		})
	}

	return out, nil
}

// parseDate returns false for empty cells and unparseable values (footer
// rows, balance lines).
func parseDate(row []string, idx int, layout string) (time.Time, bool) {
	s := cellValue(row, idx)
	if s == "" {
		return time.Time{}, false
	}

	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

func parseRowAmount(p *Profile, cols colIndex, row []string) (decimal.Decimal, ledger.Type, bool) {
	switch p.AmountMode {
	case amountSingle:
		return parseSingleAmount(row, cols[p.AmountCol])
	case amountSplit:
		return parseSplitAmount(row, cols[p.DebitCol], cols[p.CreditCol])
	}

	return decimal.Zero, "", false
}

func parseSingleAmount(row []string, idx int) (decimal.Decimal, ledger.Type, bool) {
	s := cellValue(row, idx)
	if s == "" {
		return decimal.Zero, "", false
	}

	d, err := parseAmount(s)
	if err != nil || d.IsZero() {
		return decimal.Zero, "", false
	}

	typ, amount := ledger.FromSigned(d)

	return amount, typ, true
}

// parseSplitAmount handles separate debit and credit columns. Some banks
// write outgoing amounts with a minus sign, others without.
func parseSplitAmount(row []string, debitIdx, creditIdx int) (decimal.Decimal, ledger.Type, bool) {
	if s := cellValue(row, debitIdx); s != "" {
		d, err := parseAmount(s)
		if err == nil && !d.IsZero() {
			return d.Abs(), ledger.TypeExpense, true
		}
	}

	if s := cellValue(row, creditIdx); s != "" {
		d, err := parseAmount(s)
		if err == nil && !d.IsZero() {
			return d.Abs(), ledger.TypeIncome, true
		}
	}

	return decimal.Zero, "", false
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}
