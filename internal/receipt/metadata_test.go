package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMetadataSignals(t *testing.T) {
	meta := ExtractMetadata("MAYBANK TRANSFER TOTAL RM25.00 12/01/2025 14:30 TXN: MBB12345678")

	assert.True(t, meta.HasBankInfo)
	assert.Equal(t, "MAYBANK", meta.BankDetected)
	assert.True(t, meta.HasTotalIndicator)
	assert.True(t, meta.HasDate)
	assert.True(t, meta.HasTime)
	assert.True(t, meta.HasTransactionID)
	assert.Equal(t, ReceiptTypeOnlineBanking, meta.ReceiptType)
}

func TestExtractMetadataEmptyText(t *testing.T) {
	meta := ExtractMetadata("nothing useful here")

	assert.False(t, meta.HasBankInfo)
	assert.Empty(t, meta.BankDetected)
	assert.False(t, meta.HasTotalIndicator)
	assert.False(t, meta.HasDate)
	assert.False(t, meta.HasTime)
	assert.Equal(t, ReceiptTypeUnknown, meta.ReceiptType)
}

func TestExtractMetadataReceiptType(t *testing.T) {
	tests := []struct {
		name string
		text string
		want ReceiptType
	}{
		{"ibft transfer", "IBFT PAYMENT SUCCESSFUL", ReceiptTypeOnlineBanking},
		{"transfer keyword wins over card", "TRANSFER VIA DEBIT", ReceiptTypeOnlineBanking},
		{"atm", "ATM CASH DEPOSIT", ReceiptTypeATM},
		{"debit card", "DEBIT CARD PURCHASE", ReceiptTypeCardPayment},
		{"duitnow qr", "DUITNOW QR PAYMENT", ReceiptTypeQRPayment},
		{"unknown", "CASH SALE", ReceiptTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMetadata(tt.text).ReceiptType)
		})
	}
}

func TestExtractTransactionIDLabelled(t *testing.T) {
	// The labelled candidate must beat any weaker generic alphanumeric
	// token appearing elsewhere in the same text.
	got := ExtractTransactionID("TXN: ABC12345 completed at branch XY989901 today")

	assert.Equal(t, "ABC12345", got)
}

func TestExtractTransactionIDLengthConstraints(t *testing.T) {
	assert.Empty(t, ExtractTransactionID("REF: AB12"), "below minimum length")
	assert.Empty(t, ExtractTransactionID("no reference at all"))
}

// Label words appearing in ordinary sentences must not turn the following
// prose into a reference; only uppercase alphanumerics qualify.
func TestExtractTransactionIDIgnoresProse(t *testing.T) {
	assert.Empty(t, ExtractTransactionID("transaction reference pending"))
	assert.Empty(t, ExtractTransactionID("id number missing from receipt"))
	assert.Equal(t, "MBB12345678", ExtractTransactionID("txn: MBB12345678 recorded"))
}

func TestExtractTransactionIDNumericWithOutcomeKeyword(t *testing.T) {
	got := ExtractTransactionID("payment 1234567890 SUCCESS")

	assert.Equal(t, "1234567890", got)
}

func TestScoreTransactionID(t *testing.T) {
	text := "TXN: MBB1234567 REF: 987654321 APPROVAL: XY12345678"

	tests := []struct {
		name    string
		id      string
		atLeast int
		below   int
	}{
		// 10 chars (+10), letter prefix + digits (+15), TXN label (+20).
		{"labelled bank format", "MBB1234567", 45, 46},
		// 9 digits (+10), numeric (+10), REF label (+15).
		{"labelled numeric", "987654321", 35, 36},
		// 10 chars (+10), letter prefix + digits (+15), APPROVAL label (+12).
		{"approval labelled", "XY12345678", 37, 38},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := scoreTransactionID(tt.id, text)
			assert.GreaterOrEqual(t, score, tt.atLeast)
			assert.Less(t, score, tt.below)
		})
	}
}

// Strengthening the label context never demotes a candidate below an
// unlabelled one of the same shape.
func TestTransactionIDLabelBeatsUnlabelled(t *testing.T) {
	labelled := scoreTransactionID("ABC12345", "TXN: ABC12345")
	unlabelled := scoreTransactionID("ABC12345", "ABC12345 printed somewhere")

	assert.Greater(t, labelled, unlabelled)
}
