package importer

import (
	"io"

	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

// Bank selects a statement format. BankAuto detects it from the header.
type Bank string

const (
	BankAuto       Bank = ""
	BankDNB        Bank = "dnb"
	BankSpareBank1 Bank = "sparebank1"
	BankNordea     Bank = "nordea"
)

type Importer interface {
	Parse(r io.Reader) ([]ledger.CreateParams, error)
}
