package receipt

import (
	"regexp"
	"strings"
)

// ReceiptType classifies the payment channel a receipt came from.
type ReceiptType string

const (
	ReceiptTypeOnlineBanking ReceiptType = "online_banking"
	ReceiptTypeATM           ReceiptType = "atm"
	ReceiptTypeCardPayment   ReceiptType = "card_payment"
	ReceiptTypeQRPayment     ReceiptType = "qr_payment"
	ReceiptTypeUnknown       ReceiptType = "unknown"
)

// Metadata holds the corroborating signals detected alongside the amounts.
type Metadata struct {
	HasBankInfo       bool        `json:"has_bank_info"`
	BankDetected      string      `json:"bank_detected,omitempty"`
	HasTotalIndicator bool        `json:"has_total_indicator"`
	HasDate           bool        `json:"has_date"`
	HasTime           bool        `json:"has_time"`
	HasTransactionID  bool        `json:"has_transaction_id"`
	ReceiptType       ReceiptType `json:"receipt_type"`
}

// Fixed vocabularies for Malaysian bank receipts.
var (
	totalIndicators = []string{"TOTAL", "JUMLAH", "AMOUNT", "BAYARAN", "PAYMENT", "GRAND TOTAL"}
	bankIndicators  = []string{"MAYBANK", "CIMB", "PUBLIC BANK", "HONG LEONG", "RHB", "AMBANK", "BSN", "OCBC"}
)

var (
	datePattern = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	timePattern = regexp.MustCompile(`\d{1,2}:\d{2}`)
)

// transactionIDPatterns is the ordered labelled-reference list. Candidates
// are collected in pattern order; that order breaks scoring ties. Labels
// match either case, but the reference itself must be uppercase so plain
// prose after a word like "no" never qualifies.
var transactionIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:TXN|TRANSACTION|REF|REFERENCE|ID|NO)[:\s#]*([A-Z0-9]{6,20})`),
	regexp.MustCompile(`(?i:APPROVAL|AUTH)[:\s#]*([A-Z0-9]{6,12})`),
	regexp.MustCompile(`(?i:TRACE|RECEIPT)[:\s#]*([0-9]{6,15})`),
	regexp.MustCompile(`(?i:FT|IBG|IBFT)[:\s#]*([A-Z0-9]{8,20})`),
	// Bank-prefixed references.
	regexp.MustCompile(`(?i:MAYBANK|MBB)[:\s#]*([A-Z0-9]{8,15})`),
	regexp.MustCompile(`(?i:CIMB)[:\s#]*([A-Z0-9]{8,15})`),
	regexp.MustCompile(`(?i:PUBLIC)[:\s#]*([A-Z0-9]{8,15})`),
	regexp.MustCompile(`(?i:HONG LEONG|HLBB)[:\s#]*([A-Z0-9]{8,15})`),
	regexp.MustCompile(`(?i:RHB)[:\s#]*([A-Z0-9]{8,15})`),
	// Generic alphanumeric fallbacks.
	regexp.MustCompile(`\b([A-Z]{2,4}[0-9]{6,12})\b`),
	regexp.MustCompile(`\b([0-9]{8,15})\s*(?i:SUCCESS|APPROVED|COMPLETED)`),
	// QR payments (DuitNow) and FPX.
	regexp.MustCompile(`(?i:QR|DUITNOW)[:\s#]*([A-Z0-9]{8,20})`),
	regexp.MustCompile(`(?i:FPX)[:\s#]*([A-Z0-9]{10,20})`),
}

// ExtractMetadata scans normalized text for bank names, total indicators,
// date/time presence and the receipt type. Pure function.
func ExtractMetadata(text string) Metadata {
	meta := Metadata{ReceiptType: ReceiptTypeUnknown}
	upper := strings.ToUpper(text)

	for _, bank := range bankIndicators {
		if strings.Contains(upper, bank) {
			meta.HasBankInfo = true
			meta.BankDetected = bank
			break
		}
	}

	for _, indicator := range totalIndicators {
		if strings.Contains(upper, indicator) {
			meta.HasTotalIndicator = true
			break
		}
	}

	meta.HasDate = datePattern.MatchString(text)
	meta.HasTime = timePattern.MatchString(text)
	meta.HasTransactionID = ExtractTransactionID(text) != ""

	// Keyword priority: transfer beats ATM beats card beats QR.
	switch {
	case strings.Contains(upper, "TRANSFER") || strings.Contains(upper, "IBFT"):
		meta.ReceiptType = ReceiptTypeOnlineBanking
	case strings.Contains(upper, "ATM"):
		meta.ReceiptType = ReceiptTypeATM
	case strings.Contains(upper, "DEBIT") || strings.Contains(upper, "CREDIT"):
		meta.ReceiptType = ReceiptTypeCardPayment
	case strings.Contains(upper, "QR") || strings.Contains(upper, "DUITNOW"):
		meta.ReceiptType = ReceiptTypeQRPayment
	}

	return meta
}

// ExtractTransactionID returns the best-scoring transaction reference found
// in the text, or "" when no candidate clears the 6-20 character length
// constraint. Ties are broken by the order patterns were evaluated.
func ExtractTransactionID(text string) string {
	seen := make(map[string]bool)
	var candidates []string

	for _, pattern := range transactionIDPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			id := strings.TrimSpace(m[1])
			if len(id) < 6 || len(id) > 20 || seen[id] {
				continue
			}
			seen[id] = true
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	best := candidates[0]
	bestScore := scoreTransactionID(best, text)
	for _, id := range candidates[1:] {
		if s := scoreTransactionID(id, text); s > bestScore {
			best, bestScore = id, s
		}
	}
	return best
}

var (
	bankPrefixFormat = regexp.MustCompile(`^[A-Z]{2,4}[0-9]{6,}$`)
	numericFormat    = regexp.MustCompile(`^[0-9]{8,}$`)
	alnumFormat      = regexp.MustCompile(`^[A-Z0-9]+$`)
)

// scoreTransactionID rates a candidate by length bucket, format, and
// whether it appears directly after a recognized label in the source text.
// Pure function of the id and the text.
func scoreTransactionID(id, text string) int {
	score := 0

	switch n := len(id); {
	case n >= 8 && n <= 12:
		score += 10
	case n >= 6 && n <= 15:
		score += 5
	}

	switch {
	case bankPrefixFormat.MatchString(id):
		score += 15 // common bank format: letter prefix + digits
	case numericFormat.MatchString(id):
		score += 10
	case alnumFormat.MatchString(id):
		score += 8
	}

	quoted := regexp.QuoteMeta(id)
	if regexp.MustCompile(`(?i)\b(?:TXN|TRANSACTION):\s*` + quoted).MatchString(text) {
		score += 20
	}
	if regexp.MustCompile(`(?i)\b(?:REF|REFERENCE):\s*` + quoted).MatchString(text) {
		score += 15
	}
	if regexp.MustCompile(`(?i)\bAPPROVAL:\s*` + quoted).MatchString(text) {
		score += 12
	}

	return score
}
