// Package receipt implements the receipt validation engine: given an
// uploaded payment-receipt image or PDF and the expected order amount, it
// decides whether the receipt proves payment of that amount and assigns a
// confidence score used to auto-approve or defer to manual review.
//
// The pipeline is strictly sequential and request-scoped: admissibility
// check, text extraction (external OCR provider with engine fallback, or
// the local embedded-text fast path for born-digital PDFs), normalization,
// amount and reference extraction, decision, confidence scoring. No state
// is shared between calls and the uploaded file is never modified.
package receipt

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config carries everything the engine needs; there are no ambient lookups.
type Config struct {
	APIKey   string
	APIURL   string
	Timeout  time.Duration
	Language string

	// Feature flags. The legacy image-only validator and the enhanced
	// one are collapsed into this single engine; both flags default on.
	PDFSupport               bool
	AutoExtractTransactionID bool

	// PDFTextFastPath reads the embedded text layer of born-digital PDFs
	// locally instead of calling the OCR provider.
	PDFTextFastPath bool
}

// DefaultConfig returns the engine defaults; only APIKey must be supplied.
func DefaultConfig() Config {
	return Config{
		APIURL:                   DefaultOCRAPIURL,
		Timeout:                  DefaultOCRTimeout,
		Language:                 "eng",
		PDFSupport:               true,
		AutoExtractTransactionID: true,
		PDFTextFastPath:          true,
	}
}

// Request identifies one receipt to validate. The file at FilePath is owned
// by the caller; the engine only reads it.
type Request struct {
	FilePath        string
	ExpectedAmount  decimal.Decimal
	TransactionHint string // optional reference supplied by the customer
}

// Result is the engine's complete answer for one request. Failures are
// captured here rather than returned as errors: the engine never crashes
// the caller's request, and every failure path carries an operator-readable
// message.
type Result struct {
	Success                bool              `json:"success"`
	Status                 Status            `json:"status"`
	Confidence             int               `json:"confidence"`
	Message                string            `json:"message"`
	OCRText                string            `json:"ocr_text,omitempty"`
	ProcessedText          string            `json:"processed_text,omitempty"`
	AmountsFound           []decimal.Decimal `json:"amounts_found,omitempty"`
	Metadata               Metadata          `json:"metadata"`
	TransactionMatch       bool              `json:"transaction_match"`
	ExtractedTransactionID string            `json:"extracted_transaction_id,omitempty"`
	MatchedAmount          *decimal.Decimal  `json:"matched_amount,omitempty"`
	EngineUsed             string            `json:"engine_used,omitempty"`
	FileReport             *FileReport       `json:"file_report,omitempty"`
}

// Validator is the receipt validation engine. It is stateless per request
// and safe for concurrent use.
type Validator struct {
	cfg    Config
	ocr    *OCRClient
	logger *zap.Logger
}

// NewValidator creates the engine. Defaults are applied for any zero-value
// provider settings.
func NewValidator(cfg Config, logger *zap.Logger) *Validator {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultOCRAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOCRTimeout
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Validator{
		cfg: cfg,
		ocr: NewOCRClient(OCRConfig{
			APIKey:   cfg.APIKey,
			APIURL:   cfg.APIURL,
			Timeout:  cfg.Timeout,
			Language: cfg.Language,
		}, logger),
		logger: logger,
	}
}

// Validate runs the full pipeline for one receipt.
func (v *Validator) Validate(ctx context.Context, req Request) Result {
	log := v.logger.With(
		zap.String("file", req.FilePath),
		zap.String("expected_amount", req.ExpectedAmount.StringFixed(2)))

	if v.cfg.APIKey == "" {
		log.Warn("OCR API key not configured, skipping validation")
		return Result{Status: StatusSkipped, Message: "OCR API key not configured"}
	}

	report := CheckFile(req.FilePath)
	if !report.Valid {
		log.Warn("File admissibility check failed",
			zap.String("error_kind", string(report.ErrorKind)),
			zap.String("error", report.Error))
		return Result{
			Status:     StatusFailed,
			Message:    "File validation failed: " + report.Error,
			FileReport: &report,
		}
	}

	if report.IsPDF && !v.cfg.PDFSupport {
		return Result{
			Status:     StatusFailed,
			Message:    "PDF receipts are not enabled",
			FileReport: &report,
		}
	}

	extraction, err := v.extract(ctx, req.FilePath, report)
	if err != nil {
		log.Error("Text extraction failed", zap.Error(err))
		return Result{
			Status:     StatusFailed,
			Message:    "OCR processing failed: " + err.Error(),
			FileReport: &report,
		}
	}

	processed := Normalize(extraction.Text)
	amounts := ExtractAmounts(processed)
	meta := ExtractMetadata(processed)

	var extractedID string
	if v.cfg.AutoExtractTransactionID {
		extractedID = ExtractTransactionID(processed)
	}

	// With no caller-supplied hint there is nothing to contradict, so the
	// reference is considered matched; the scorer takes it from there.
	transactionMatch := true
	if req.TransactionHint != "" {
		transactionMatch = containsTransactionID(processed, req.TransactionHint)
	}

	decision := Decide(amounts, req.ExpectedAmount)
	confidence := Score(decision.Status, meta, transactionMatch, len(amounts), extractedID != "")

	log.Info("Receipt validated",
		zap.String("status", string(decision.Status)),
		zap.Int("confidence", confidence),
		zap.Int("amounts_found", len(amounts)),
		zap.String("engine", extraction.Engine),
		zap.String("extracted_transaction_id", extractedID))

	return Result{
		Success:                true,
		Status:                 decision.Status,
		Confidence:             confidence,
		Message:                decision.Message,
		OCRText:                extraction.Text,
		ProcessedText:          processed,
		AmountsFound:           amounts,
		Metadata:               meta,
		TransactionMatch:       transactionMatch,
		ExtractedTransactionID: extractedID,
		MatchedAmount:          decision.MatchedAmount,
		EngineUsed:             extraction.Engine,
		FileReport:             &report,
	}
}

// ExtractReference runs only the extraction half of the pipeline and
// returns the best transaction reference found in the receipt. Used by the
// checkout form to pre-fill the reference field before submission.
func (v *Validator) ExtractReference(ctx context.Context, filePath string) (string, error) {
	if v.cfg.APIKey == "" {
		return "", ErrUnconfigured
	}

	report := CheckFile(filePath)
	if !report.Valid {
		return "", fmt.Errorf("file validation failed: %s", report.Error)
	}

	extraction, err := v.extract(ctx, filePath, report)
	if err != nil {
		return "", err
	}
	return ExtractTransactionID(Normalize(extraction.Text)), nil
}

// extract obtains raw text: embedded PDF text when available, otherwise the
// OCR provider with its engine fallback.
func (v *Validator) extract(ctx context.Context, path string, report FileReport) (Extraction, error) {
	if report.IsPDF && v.cfg.PDFTextFastPath {
		text, err := extractPDFText(path)
		if err != nil {
			v.logger.Debug("Embedded PDF text unavailable", zap.String("path", path), zap.Error(err))
		} else if len(text) >= minEmbeddedTextLen {
			v.logger.Debug("Using embedded PDF text", zap.Int("length", len(text)))
			return Extraction{Text: text, Engine: "pdf-text"}, nil
		}
	}

	// Temporary uploads carry no usable extension, so the provider gets an
	// explicit file-type hint derived from the detected MIME type.
	hint := ""
	if report.IsTempUpload || report.Extension == "" {
		hint = ocrFileType(report.PrimaryMIME)
	}
	return v.ocr.ExtractText(ctx, path, hint)
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// containsTransactionID checks whether the hint appears in the text, both
// sides reduced to uppercase alphanumerics so OCR punctuation noise cannot
// hide a genuine match.
func containsTransactionID(text, hint string) bool {
	cleanHint := nonAlnum.ReplaceAllString(strings.ToUpper(hint), "")
	if cleanHint == "" {
		return true
	}
	cleanText := nonAlnum.ReplaceAllString(strings.ToUpper(text), "")
	return strings.Contains(cleanText, cleanHint)
}
