package fleet

import (
	"strconv"
	"strings"
)

// currencySymbols are stripped from monetary and odometer fields before
// numeric parsing. The data originates from a German spreadsheet, so the
// euro sign dominates, but a few common symbols are tolerated.
var currencySymbols = []string{"€", "$", "£", "EUR", "eur"}

// ParseCurrency parses a locale-formatted monetary or numeric string:
// currency symbols are stripped, "." is treated as the thousands separator,
// "," as the decimal separator ("1.234,56 €" -> 1234.56).
//
// A value that still fails to parse resolves to 0 with no error. This silent
// fallback is deliberate: the dashboard stays available on dirty data, and
// callers relying on totals accept degraded rows instead of rejected ones.
func ParseCurrency(s string) float64 {
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	// German locale: a comma is the decimal separator and any periods are
	// thousands separators. Without a comma the string is already parseable.
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
