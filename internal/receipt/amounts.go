package receipt

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency-reasonable bounds for a single receipt amount.
var (
	minAmount = decimal.NewFromFloat(0.01)
	maxAmount = decimal.NewFromInt(10000)
)

// amountPatterns is the ordered matcher list. Order matters only for
// documentation purposes; every pattern runs and all captures are pooled.
var amountPatterns = []*regexp.Regexp{
	// Currency-prefixed amounts.
	regexp.MustCompile(`(?i)RM\s*(\d{1,6}(?:[,.]\d{2})?)`),
	regexp.MustCompile(`(?i)MYR\s*(\d{1,6}(?:[,.]\d{2})?)`),
	// Label-prefixed totals, with or without a currency marker.
	regexp.MustCompile(`(?i)(?:TOTAL|JUMLAH|AMOUNT|BAYAR|GRAND\s*TOTAL)\s*:?\s*RM?\s*(\d{1,6}(?:[,.]\d{2})?)`),
	// Bare decimal immediately before a currency marker or end of text.
	regexp.MustCompile(`(?i)(\d{1,4}[,.]\d{2})\s*(?:RM|MYR|$)`),
	// Whole number printed with trailing .00.
	regexp.MustCompile(`(?i)(\d{1,6})\.00\s*(?:RM|MYR)?`),
}

// ExtractAmounts runs the monetary-pattern matchers over normalized text
// and returns the candidate amounts, de-duplicated and sorted descending.
// Receipt totals are typically the largest figure present. Values outside
// [0.01, 10000] are rejected. Pure function.
func ExtractAmounts(text string) []decimal.Decimal {
	seen := make(map[string]bool)
	var amounts []decimal.Decimal

	for _, pattern := range amountPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			amount, ok := parseAmount(m[1])
			if !ok {
				continue
			}
			key := amount.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			amounts = append(amounts, amount)
		}
	}

	sort.Slice(amounts, func(i, j int) bool {
		return amounts[i].GreaterThan(amounts[j])
	})
	return amounts
}

// parseAmount cleans one captured token and applies the missing-decimal
// heuristic: OCR often drops the separator, so a bare 3-4 digit integer is
// reinterpreted with its last two digits as cents (1550 -> 15.50). Longer
// integers are left alone; a 5-digit figure is more plausibly a real
// whole-number total than a mangled one.
func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.ReplaceAll(raw, ",", "")

	if !strings.Contains(s, ".") && (len(s) == 3 || len(s) == 4) {
		s = s[:len(s)-2] + "." + s[len(s)-2:]
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return decimal.Decimal{}, false
	}
	return amount, true
}
