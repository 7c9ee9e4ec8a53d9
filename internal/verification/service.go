package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ssfood4u/receipt-validator/internal/receipt"
)

// ReceiptValidator runs the OCR pipeline against one receipt file.
type ReceiptValidator interface {
	Validate(ctx context.Context, req receipt.Request) receipt.Result
	ExtractReference(ctx context.Context, filePath string) (string, error)
}

// FileStore moves an accepted receipt out of the upload area into
// long-term storage and returns the stored path.
type FileStore interface {
	SaveReceipt(ctx context.Context, srcPath, orderID string) (string, error)
}

// Policy controls how validation outcomes map to review states.
type Policy struct {
	// AutoApproveThreshold is the minimum confidence for automatic
	// verification. Zero disables auto-approval entirely.
	AutoApproveThreshold int
	// RequireTransactionID rejects submissions that carry no reference,
	// neither customer-supplied nor extracted from the receipt.
	RequireTransactionID bool
}

// Submission is one customer payment claim with its receipt upload.
type Submission struct {
	OrderID       string
	CustomerEmail string
	PaymentMethod string
	TransactionID string
	Amount        decimal.Decimal
	// ReceiptTempPath is the upload's temporary location; the file is
	// moved into storage only once validation passes.
	ReceiptTempPath string
}

// Outcome reports what happened to a submission.
type Outcome struct {
	Record       *Record        `json:"record,omitempty"`
	Validation   receipt.Result `json:"validation"`
	Accepted     bool           `json:"accepted"`
	AutoApproved bool           `json:"auto_approved"`
	Message      string         `json:"message"`
}

// ErrDuplicateOrder is returned when an order already has a payment record.
var ErrDuplicateOrder = errors.New("order already has a payment record")

// Service processes payment submissions end to end.
type Service struct {
	validator ReceiptValidator
	store     RecordStore
	files     FileStore
	policy    Policy
	logger    *zap.Logger
}

// NewService creates the payment verification service.
func NewService(validator ReceiptValidator, store RecordStore, files FileStore, policy Policy, logger *zap.Logger) *Service {
	return &Service{
		validator: validator,
		store:     store,
		files:     files,
		policy:    policy,
		logger:    logger,
	}
}

// ProcessSubmission validates the submission's receipt and persists a
// payment record when the receipt is accepted. Rejected receipts leave no
// record so the customer can resubmit under the same order.
func (s *Service) ProcessSubmission(ctx context.Context, sub Submission) (*Outcome, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	existing, err := s.store.GetByOrderID(ctx, sub.OrderID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing record: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateOrder
	}

	result := s.validator.Validate(ctx, receipt.Request{
		FilePath:        sub.ReceiptTempPath,
		ExpectedAmount:  sub.Amount,
		TransactionHint: sub.TransactionID,
	})

	s.logger.Info("Receipt validated",
		zap.String("order_id", sub.OrderID),
		zap.String("status", string(result.Status)),
		zap.Int("confidence", result.Confidence))

	outcome := &Outcome{Validation: result}

	switch result.Status {
	case receipt.StatusFailed:
		outcome.Message = "Receipt validation failed: " + result.Message
		return outcome, nil

	case receipt.StatusSkipped:
		// No OCR available; fall back to manual review.
		if s.policy.RequireTransactionID && sub.TransactionID == "" {
			outcome.Message = "A transaction reference is required"
			return outcome, nil
		}
		return s.accept(ctx, sub, result, StatusPending, false, outcome,
			"Receipt received; awaiting manual review")
	}

	// Adopt a reference pulled off the receipt when the customer gave none.
	transactionID := sub.TransactionID
	if transactionID == "" && result.ExtractedTransactionID != "" {
		transactionID = result.ExtractedTransactionID
	}
	if s.policy.RequireTransactionID && transactionID == "" {
		outcome.Message = "A transaction reference is required"
		return outcome, nil
	}
	sub.TransactionID = transactionID

	if result.Status != receipt.StatusMatch && result.Status != receipt.StatusCloseMatch {
		outcome.Message = "Receipt amount could not be verified: " + result.Message
		return outcome, nil
	}

	autoApprove := receipt.ShouldAutoApprove(result.Confidence, s.policy.AutoApproveThreshold)
	status := StatusPending
	message := "Receipt accepted; awaiting manual review"
	if autoApprove {
		status = StatusVerified
		message = "Receipt verified automatically"
	}
	return s.accept(ctx, sub, result, status, autoApprove, outcome, message)
}

func (s *Service) accept(ctx context.Context, sub Submission, result receipt.Result, status Status, autoApproved bool, outcome *Outcome, message string) (*Outcome, error) {
	storedPath, err := s.files.SaveReceipt(ctx, sub.ReceiptTempPath, sub.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to store receipt: %w", err)
	}

	record := &Record{
		OrderID:       sub.OrderID,
		CustomerEmail: sub.CustomerEmail,
		PaymentMethod: sub.PaymentMethod,
		TransactionID: sub.TransactionID,
		Amount:        sub.Amount,
		ReceiptPath:   storedPath,
		Status:        status,
		OCRConfidence: result.Confidence,
		OCRMessage:    result.Message,
		AutoApproved:  autoApproved,
		CreatedAt:     time.Now().UTC(),
	}
	// Skipped validations keep ocr_validation empty so analytics only
	// counts receipts the engine actually processed.
	if result.Success {
		record.OCRValidation = string(result.Status)
	}
	if status == StatusVerified {
		now := time.Now().UTC()
		record.VerifiedAt = &now
	}
	if len(result.AmountsFound) > 0 {
		if data, err := json.Marshal(result.AmountsFound); err == nil {
			record.OCRAmountsFound = string(data)
		}
	}
	if result.Success {
		if data, err := json.Marshal(result.Metadata); err == nil {
			record.OCRMetadata = string(data)
		}
	}

	if err := s.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist payment record: %w", err)
	}

	outcome.Record = record
	outcome.Accepted = true
	outcome.AutoApproved = autoApproved
	outcome.Message = message
	return outcome, nil
}

// Get returns the payment record for one order.
func (s *Service) Get(ctx context.Context, orderID string) (*Record, error) {
	return s.store.GetByOrderID(ctx, orderID)
}

// List returns payment records, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]Record, error) {
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("invalid verification status: %s", status)
	}
	return s.store.List(ctx, status, limit, offset)
}

// UpdateStatus applies a manual review decision.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status, adminNotes string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid verification status: %s", status)
	}
	return s.store.UpdateStatus(ctx, id, status, adminNotes)
}

// Stats aggregates record counts for the dashboard.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// Analytics summarizes OCR performance over the trailing days window.
func (s *Service) Analytics(ctx context.Context, days int) (*Analytics, error) {
	return s.store.Analytics(ctx, days)
}

// PreviewReference extracts a transaction reference from an uploaded
// receipt without creating a record, so the checkout form can prefill it.
func (s *Service) PreviewReference(ctx context.Context, filePath string) (string, error) {
	return s.validator.ExtractReference(ctx, filePath)
}

func validateSubmission(sub Submission) error {
	if strings.TrimSpace(sub.OrderID) == "" {
		return errors.New("order id is required")
	}
	if !sub.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if strings.TrimSpace(sub.ReceiptTempPath) == "" {
		return errors.New("receipt file is required")
	}
	return nil
}
