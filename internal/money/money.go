// Package money normalizes locale-ambiguous monetary strings.
//
// Stored event prices arrive in whatever format an operator typed into the
// admin: "30", "30.00", "30,00", "1.234,56", "30,00 €". Parsing never fails;
// unparseable input degrades to 0.0 so a bad price renders as "no price"
// instead of breaking the checkout flow.
package money

import (
	"math"
	"strconv"
	"strings"
)

// ToFloat converts a monetary string to a float64.
//
// Disambiguation: when both comma and dot are present, the separator that
// occurs last is the decimal separator and the other is stripped as a
// thousands separator. A single comma with no dot is a decimal separator.
// Multiple commas with no dot are all thousands separators.
func ToFloat(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0.0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}

	// Keep digits, comma, dot, minus. Drops currency symbols and spaces.
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()

	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")

	switch {
	case commas == 1 && dots >= 1:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas == 1 && dots == 0:
		s = strings.ReplaceAll(s, ",", ".")
	case commas > 1:
		// Ambiguous legacy case: all commas are thousands separators.
		s = strings.ReplaceAll(s, ",", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return v
}

// Round rounds to currency cents. The epsilon counters binary float
// artifacts such as 19.999999999 landing on 19.99 instead of 20.00.
func Round(v float64) float64 {
	return math.Round((v+1e-9)*100) / 100
}

// ToCanonicalString renders a two-decimal dot-separated amount with no
// thousands separator or currency symbol.
func ToCanonicalString(v float64) string {
	return strconv.FormatFloat(Round(v), 'f', 2, 64)
}
