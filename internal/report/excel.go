// Package report builds downloadable exports of payment records.
package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ssfood4u/receipt-validator/internal/verification"
)

const sheetName = "Payments"

var headers = []string{
	"ID", "Order ID", "Customer Email", "Payment Method", "Transaction ID",
	"Amount", "Status", "OCR Validation", "OCR Confidence", "Auto Approved",
	"Created At", "Verified At",
}

// BuildWorkbook renders payment records into an xlsx workbook with one
// "Payments" sheet. The caller owns closing the returned file.
func BuildWorkbook(records []verification.Record) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for col, title := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, record := range records {
		row := []any{
			record.ID,
			record.OrderID,
			record.CustomerEmail,
			record.PaymentMethod,
			record.TransactionID,
			record.Amount.StringFixed(2),
			string(record.Status),
			record.OCRValidation,
			record.OCRConfidence,
			record.AutoApproved,
			record.CreatedAt.Format(time.RFC3339),
			formatVerifiedAt(record.VerifiedAt),
		}
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write record row: %w", err)
			}
		}
	}

	return f, nil
}

func formatVerifiedAt(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
