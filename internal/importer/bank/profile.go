package bank

// amountMode determines how amounts are extracted from a row.
type amountMode int

const (
	// amountSingle means one signed column (e.g. "Beløp" with value "-10,00").
	amountSingle amountMode = iota
	// amountSplit means separate outgoing and incoming columns (e.g. "Ut fra konto"/"Inn på konto").
	amountSplit
)

// Profile describes the column layout of one bank's CSV export.
// Adding a bank is adding a Profile to the profiles slice.
type Profile struct {
	Name       string
	DateCol    string
	DateLayout string
	DescCol    string
	AmountMode amountMode
	AmountCol  string // used when AmountMode == amountSingle
	DebitCol   string // used when AmountMode == amountSplit
	CreditCol  string // used when AmountMode == amountSplit
}

func (p Profile) requiredCols() []string {
	cols := []string{p.DateCol, p.DescCol}

	switch p.AmountMode {
	case amountSingle:
		cols = append(cols, p.AmountCol)
	case amountSplit:
		cols = append(cols, p.DebitCol, p.CreditCol)
	}

	return cols
}

// profiles is the ordered list of export formats tried during auto-detection.
// More specific profiles come first.
var profiles = []Profile{
	{
		Name:       "dnb",
		DateCol:    "Dato",
		DateLayout: "02.01.2006",
		DescCol:    "Forklaring",
		AmountMode: amountSplit,
		DebitCol:   "Ut fra konto",
		CreditCol:  "Inn på konto",
	},
	{
		Name:       "sparebank1",
		DateCol:    "Dato",
		DateLayout: "02.01.2006",
		DescCol:    "Beskrivelse",
		AmountMode: amountSplit,
		DebitCol:   "Ut",
		CreditCol:  "Inn",
	},
	{
		Name:       "nordea",
		DateCol:    "Bokføringsdato",
		DateLayout: "2006/01/02",
		DescCol:    "Tittel",
		AmountMode: amountSingle,
		AmountCol:  "Beløp",
	},
}

// Names lists the supported export formats.
func Names() []string {
	out := make([]string, len(profiles))
	for i, p := range profiles {
		out[i] = p.Name
	}

	return out
}
