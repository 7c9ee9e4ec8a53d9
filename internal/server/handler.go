package server

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ssfood4u/receipt-validator/internal/report"
	"github.com/ssfood4u/receipt-validator/internal/verification"
)

// PaymentService is the application surface the HTTP layer exposes.
type PaymentService interface {
	ProcessSubmission(ctx context.Context, sub verification.Submission) (*verification.Outcome, error)
	Get(ctx context.Context, orderID string) (*verification.Record, error)
	List(ctx context.Context, status verification.Status, limit, offset int) ([]verification.Record, error)
	UpdateStatus(ctx context.Context, id int64, status verification.Status, adminNotes string) error
	Stats(ctx context.Context) (*verification.Stats, error)
	Analytics(ctx context.Context, days int) (*verification.Analytics, error)
	PreviewReference(ctx context.Context, filePath string) (string, error)
}

// Handlers contains all HTTP request handlers.
type Handlers struct {
	payments PaymentService
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(payments PaymentService, logger *zap.Logger) *Handlers {
	return &Handlers{payments: payments, logger: logger}
}

// Response is the standard JSON envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// SubmitPayment handles POST /api/v1/payments. The receipt arrives as a
// multipart upload together with the order fields.
func (h *Handlers) SubmitPayment(c *gin.Context) {
	orderID := c.PostForm("order_id")
	amountRaw := c.PostForm("amount")

	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid amount"})
		return
	}

	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "receipt file is required"})
		return
	}

	tempPath, cleanup, err := h.spoolUpload(fileHeader)
	if err != nil {
		h.logger.Error("Failed to spool receipt upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to read upload"})
		return
	}
	defer cleanup()

	outcome, err := h.payments.ProcessSubmission(c.Request.Context(), verification.Submission{
		OrderID:         orderID,
		CustomerEmail:   c.PostForm("customer_email"),
		PaymentMethod:   c.PostForm("payment_method"),
		TransactionID:   c.PostForm("transaction_id"),
		Amount:          amount,
		ReceiptTempPath: tempPath,
	})
	if errors.Is(err, verification.ErrDuplicateOrder) {
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Payment submission failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	status := http.StatusCreated
	if !outcome.Accepted {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, Response{Success: outcome.Accepted, Data: outcome})
}

// spoolUpload writes the multipart part to a temp file. The extension is
// preserved when present so image decoding hints survive the round trip.
func (h *Handlers) spoolUpload(fileHeader *multipart.FileHeader) (string, func(), error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "receipt-upload-*"+filepath.Ext(fileHeader.Filename))
	if err != nil {
		return "", nil, err
	}

	if _, err := tmp.ReadFrom(src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}

	path := tmp.Name()
	return path, func() { os.Remove(path) }, nil
}

// ListPayments handles GET /api/v1/payments.
func (h *Handlers) ListPayments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	status := verification.Status(c.Query("status"))

	records, err := h.payments.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// GetPayment handles GET /api/v1/payments/:order_id.
func (h *Handlers) GetPayment(c *gin.Context) {
	record, err := h.payments.Get(c.Request.Context(), c.Param("order_id"))
	if errors.Is(err, verification.ErrNotFound) {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "payment not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: record})
}

// UpdateStatusRequest is the manual review decision payload.
type UpdateStatusRequest struct {
	Status     string `json:"status" binding:"required"`
	AdminNotes string `json:"admin_notes"`
}

// UpdatePaymentStatus handles PATCH /api/v1/payments/:id/status.
func (h *Handlers) UpdatePaymentStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid payment id"})
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	err = h.payments.UpdateStatus(c.Request.Context(), id, verification.Status(req.Status), req.AdminNotes)
	if errors.Is(err, verification.ErrNotFound) {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "payment not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// GetStats handles GET /api/v1/payments/stats.
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.payments.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to compute stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// GetAnalytics handles GET /api/v1/payments/analytics.
func (h *Handlers) GetAnalytics(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	analytics, err := h.payments.Analytics(c.Request.Context(), days)
	if err != nil {
		h.logger.Error("Failed to compute analytics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: analytics})
}

// maxExportRecords bounds a single export download.
const maxExportRecords = 10000

// ExportPayments handles GET /api/v1/payments/export, streaming an xlsx
// workbook of payment records.
func (h *Handlers) ExportPayments(c *gin.Context) {
	status := verification.Status(c.Query("status"))

	records, err := h.payments.List(c.Request.Context(), status, maxExportRecords, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	workbook, err := report.BuildWorkbook(records)
	if err != nil {
		h.logger.Error("Failed to build export workbook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
		return
	}
	defer workbook.Close()

	filename := "payments-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := workbook.Write(c.Writer); err != nil {
		h.logger.Error("Failed to stream export workbook", zap.Error(err))
	}
}

// PreviewReference handles POST /api/v1/receipts/preview: extract a
// transaction reference from an upload without creating a record.
func (h *Handlers) PreviewReference(c *gin.Context) {
	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "receipt file is required"})
		return
	}

	tempPath, cleanup, err := h.spoolUpload(fileHeader)
	if err != nil {
		h.logger.Error("Failed to spool receipt upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to read upload"})
		return
	}
	defer cleanup()

	reference, err := h.payments.PreviewReference(c.Request.Context(), tempPath)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"transaction_id": reference, "found": reference != ""},
	})
}
