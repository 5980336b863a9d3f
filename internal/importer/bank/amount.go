package bank

import (
	"strings"

	"github.com/shopspring/decimal"
)

// parseAmount parses a Norwegian formatted amount.
// Format examples: "1 234,56" -> 1234.56, "-588,74" -> -588.74, "1.234,56" -> 1234.56.
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '.':
			return -1
		case ',':
			return '.'
		}

		return r
	}, s)

	return decimal.NewFromString(clean)
}
