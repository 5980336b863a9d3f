package importer

import (
	"fmt"
	"io"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
	"github.com/MrJamesThe3rd/klubb/internal/importer/bank"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

type Service struct {
	importers map[Bank]Importer
}

func NewService() (*Service, error) {
	s := &Service{importers: make(map[Bank]Importer)}

	for _, b := range []Bank{BankAuto, BankDNB, BankSpareBank1, BankNordea} {
		var names []string
		if b != BankAuto {
			names = []string{string(b)}
		}

		p, err := bank.NewParser(names...)
		if err != nil {
			return nil, fmt.Errorf("parser for %q: %w", b, err)
		}

		s.importers[b] = p
	}

	return s, nil
}

// Import parses a statement. Parse failures are reported as validation
// errors since they are caused by the uploaded file.
func (s *Service) Import(b Bank, r io.Reader) ([]ledger.CreateParams, error) {
	imp, ok := s.importers[b]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown bank: %s", b))
	}

	params, err := imp.Parse(r)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	return params, nil
}
