package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no record matches the lookup.
var ErrNotFound = errors.New("payment record not found")

// RecordStore is the persistence contract the service depends on.
type RecordStore interface {
	Create(ctx context.Context, record *Record) error
	GetByOrderID(ctx context.Context, orderID string) (*Record, error)
	List(ctx context.Context, status Status, limit, offset int) ([]Record, error)
	UpdateStatus(ctx context.Context, id int64, status Status, adminNotes string) error
	Stats(ctx context.Context) (*Stats, error)
	Analytics(ctx context.Context, days int) (*Analytics, error)
}

// Repository implements RecordStore on sqlite.
type Repository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRepository creates a payment record repository.
func NewRepository(db *sql.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

const recordColumns = `
	id, order_id, customer_email, payment_method, transaction_id, amount,
	receipt_path, verification_status, admin_notes, ocr_validation,
	ocr_confidence, ocr_message, ocr_amounts_found, ocr_metadata,
	auto_approved_by_ocr, created_at, verified_at`

// Create inserts a new payment record. Order IDs are unique; a duplicate
// submission fails here.
func (r *Repository) Create(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO payments (
			order_id, customer_email, payment_method, transaction_id, amount,
			receipt_path, verification_status, admin_notes, ocr_validation,
			ocr_confidence, ocr_message, ocr_amounts_found, ocr_metadata,
			auto_approved_by_ocr, created_at, verified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Status == "" {
		record.Status = StatusPending
	}

	result, err := r.db.ExecContext(ctx, query,
		record.OrderID,
		record.CustomerEmail,
		record.PaymentMethod,
		record.TransactionID,
		record.Amount.StringFixed(2),
		record.ReceiptPath,
		string(record.Status),
		record.AdminNotes,
		record.OCRValidation,
		record.OCRConfidence,
		record.OCRMessage,
		record.OCRAmountsFound,
		record.OCRMetadata,
		record.AutoApproved,
		record.CreatedAt,
		record.VerifiedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payment record",
			zap.String("order_id", record.OrderID),
			zap.Error(err))
		return fmt.Errorf("failed to create payment record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	record.ID = id
	return nil
}

// GetByOrderID retrieves the payment record for one order.
func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*Record, error) {
	query := `SELECT` + recordColumns + ` FROM payments WHERE order_id = ?`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}
	return record, nil
}

// List returns records newest-first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status Status, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT` + recordColumns + ` FROM payments`
	args := []any{}
	if status != "" {
		query += ` WHERE verification_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// UpdateStatus moves a record to a new review state; verified records get
// their verified_at timestamp set.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status, adminNotes string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid verification status: %s", status)
	}

	var verifiedAt *time.Time
	if status == StatusVerified {
		now := time.Now().UTC()
		verifiedAt = &now
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET verification_status = ?, admin_notes = ?, verified_at = ? WHERE id = ?`,
		string(status), adminNotes, verifiedAt, id)
	if err != nil {
		r.logger.Error("Failed to update payment status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates counts and the verified amount total.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN verification_status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN verification_status = 'verified' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN verification_status = 'rejected' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN auto_approved_by_ocr = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN verification_status = 'verified' THEN CAST(amount AS REAL) ELSE 0 END), 0)
		FROM payments
	`

	var stats Stats
	var verifiedAmount float64
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Total, &stats.Pending, &stats.Verified, &stats.Rejected,
		&stats.AutoApproved, &verifiedAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to compute payment stats: %w", err)
	}
	stats.VerifiedAmount = decimal.NewFromFloat(verifiedAmount).Round(2)
	return &stats, nil
}

// Analytics reports OCR performance over the trailing days window.
func (r *Repository) Analytics(ctx context.Context, days int) (*Analytics, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(ocr_confidence), 0),
			COALESCE(SUM(CASE WHEN auto_approved_by_ocr = 1 THEN 1 ELSE 0 END), 0)
		FROM payments
		WHERE ocr_validation != '' AND created_at >= ?
	`

	analytics := Analytics{Days: days}
	err := r.db.QueryRowContext(ctx, query, since).Scan(
		&analytics.Validated, &analytics.AverageConfidence, &analytics.AutoApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ocr analytics: %w", err)
	}
	if analytics.Validated > 0 {
		analytics.AutoApprovalRate = float64(analytics.AutoApproved) / float64(analytics.Validated) * 100
	}
	return &analytics, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record     Record
		amount     string
		status     string
		verifiedAt sql.NullTime
	)
	err := row.Scan(
		&record.ID,
		&record.OrderID,
		&record.CustomerEmail,
		&record.PaymentMethod,
		&record.TransactionID,
		&amount,
		&record.ReceiptPath,
		&status,
		&record.AdminNotes,
		&record.OCRValidation,
		&record.OCRConfidence,
		&record.OCRMessage,
		&record.OCRAmountsFound,
		&record.OCRMetadata,
		&record.AutoApproved,
		&record.CreatedAt,
		&verifiedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = Status(status)
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	record.Amount = parsed
	if verifiedAt.Valid {
		record.VerifiedAt = &verifiedAt.Time
	}
	return &record, nil
}
