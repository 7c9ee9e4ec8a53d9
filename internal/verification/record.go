// Package verification manages payment verification records: the outcome
// of validating a customer's receipt against their order, persisted for
// the back office to review, approve or reject.
package verification

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the review state of one payment record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// ValidStatus reports whether s is a known review state.
func ValidStatus(s Status) bool {
	return s == StatusPending || s == StatusVerified || s == StatusRejected
}

// Record is one payment verification entry. OCR fields carry the engine's
// verdict at submission time; AmountsFound and Metadata are stored as JSON
// for operator triage.
type Record struct {
	ID            int64           `json:"id"`
	OrderID       string          `json:"order_id"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiptPath   string          `json:"receipt_path,omitempty"`
	Status        Status          `json:"verification_status"`
	AdminNotes    string          `json:"admin_notes,omitempty"`

	OCRValidation   string `json:"ocr_validation,omitempty"`
	OCRConfidence   int    `json:"ocr_confidence"`
	OCRMessage      string `json:"ocr_message,omitempty"`
	OCRAmountsFound string `json:"ocr_amounts_found,omitempty"`
	OCRMetadata     string `json:"ocr_metadata,omitempty"`
	AutoApproved    bool   `json:"auto_approved_by_ocr"`

	CreatedAt  time.Time  `json:"created_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// Stats aggregates record counts for the dashboard.
type Stats struct {
	Total          int             `json:"total"`
	Pending        int             `json:"pending"`
	Verified       int             `json:"verified"`
	Rejected       int             `json:"rejected"`
	AutoApproved   int             `json:"auto_approved"`
	VerifiedAmount decimal.Decimal `json:"verified_amount"`
}

// Analytics summarizes OCR performance over a trailing window.
type Analytics struct {
	Days              int     `json:"days"`
	Validated         int     `json:"validated"`
	AverageConfidence float64 `json:"average_confidence"`
	AutoApproved      int     `json:"auto_approved"`
	AutoApprovalRate  float64 `json:"auto_approval_rate"`
}
