package receipt

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Status is the business outcome of one validation.
type Status string

const (
	StatusMatch          Status = "match"
	StatusCloseMatch     Status = "close_match"
	StatusNoMatch        Status = "no_match"
	StatusNoAmountsFound Status = "no_amounts_found"
	StatusFailed         Status = "failed"
	StatusSkipped        Status = "skipped"
)

// Matching and scoring constants. These are deliberately collected in one
// place rather than scattered through the decision and scoring code.
const (
	// exactToleranceRate is the relative half-width of the exact-match
	// band: 0.1% of the expected amount, floored at one sen.
	exactToleranceRate = "0.001"
	exactToleranceMin  = "0.01"

	// closeMatchMaxPercent is the widest relative difference still
	// reported as a close match.
	closeMatchMaxPercent = "2"

	baseScoreMatch          = 85
	baseScoreCloseMatch     = 70
	baseScoreNoMatch        = 20
	baseScoreNoAmountsFound = 10

	bonusBankInfo         = 5
	bonusTotalIndicator   = 5
	bonusDate             = 3
	bonusTransactionID    = 8
	bonusTransactionMatch = 10
	bonusAmountsFound     = 2
)

var (
	exactTolRate = decimal.RequireFromString(exactToleranceRate)
	exactTolMin  = decimal.RequireFromString(exactToleranceMin)
	closeMaxPct  = decimal.RequireFromString(closeMatchMaxPercent)
	ten          = decimal.NewFromInt(10)
)

// Decision is the outcome of comparing extracted amounts to the expected
// amount.
type Decision struct {
	Status        Status
	Message       string
	MatchedAmount *decimal.Decimal
}

// Decide applies the tiered matching rules, first applicable rule wins:
// exact match within max(0.01, 0.1% of expected); close match within 2%
// relative difference; then the digit-drop detector for candidates equal to
// exactly one tenth of the expected amount, the single most common OCR
// failure (a lost leading digit), surfaced with its own message so an
// operator can tell systematic OCR error from a genuine mismatch.
func Decide(amounts []decimal.Decimal, expected decimal.Decimal) Decision {
	if len(amounts) == 0 {
		return Decision{
			Status:  StatusNoAmountsFound,
			Message: "No monetary amounts detected",
		}
	}

	tolerance := decimal.Max(exactTolMin, expected.Mul(exactTolRate))
	for _, amount := range amounts {
		if amount.Sub(expected).Abs().LessThanOrEqual(tolerance) {
			matched := amount
			return Decision{
				Status:        StatusMatch,
				Message:       fmt.Sprintf("Amount validated: RM%s", amount.StringFixed(2)),
				MatchedAmount: &matched,
			}
		}
	}

	for _, amount := range amounts {
		diffPct := amount.Sub(expected).Abs().Div(expected).Mul(decimal.NewFromInt(100))
		if diffPct.LessThanOrEqual(closeMaxPct) {
			matched := amount
			return Decision{
				Status:        StatusCloseMatch,
				Message:       fmt.Sprintf("Close match: RM%s vs RM%s", amount.StringFixed(2), expected.StringFixed(2)),
				MatchedAmount: &matched,
			}
		}
	}

	if expected.GreaterThanOrEqual(ten) {
		tenth := expected.Div(ten)
		for _, amount := range amounts {
			if amount.Equal(tenth) {
				return Decision{
					Status: StatusNoMatch,
					Message: fmt.Sprintf(
						"OCR reading error detected: found RM%s, expected RM%s. A leading digit of the amount may have been misread.",
						amount.StringFixed(2), expected.StringFixed(2)),
				}
			}
		}
	}

	shown := amounts
	if len(shown) > 3 {
		shown = shown[:3]
	}
	list := make([]string, len(shown))
	for i, a := range shown {
		list[i] = "RM" + a.StringFixed(2)
	}
	return Decision{
		Status:  StatusNoMatch,
		Message: fmt.Sprintf("Expected RM%s not found. Detected: %s", expected.StringFixed(2), strings.Join(list, ", ")),
	}
}

// Score combines the decision status with the metadata and reference
// signals into a confidence value, clamped to [0, 100]. Every bonus is
// additive, so strengthening any single signal never lowers the score.
func Score(status Status, meta Metadata, transactionMatched bool, amountCount int, hasExtractedID bool) int {
	var score int
	switch status {
	case StatusMatch:
		score = baseScoreMatch
	case StatusCloseMatch:
		score = baseScoreCloseMatch
	case StatusNoMatch:
		score = baseScoreNoMatch
	case StatusNoAmountsFound:
		score = baseScoreNoAmountsFound
	}

	if meta.HasBankInfo {
		score += bonusBankInfo
	}
	if meta.HasTotalIndicator {
		score += bonusTotalIndicator
	}
	if meta.HasDate {
		score += bonusDate
	}
	if meta.HasTransactionID || hasExtractedID {
		score += bonusTransactionID
	}
	if transactionMatched {
		score += bonusTransactionMatch
	}
	if amountCount > 0 {
		score += bonusAmountsFound
	}

	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// ShouldAutoApprove reports whether a payment with the given confidence may
// be approved without human review. A threshold of zero disables
// auto-approval entirely.
func ShouldAutoApprove(confidence, threshold int) bool {
	return threshold > 0 && confidence >= threshold
}
