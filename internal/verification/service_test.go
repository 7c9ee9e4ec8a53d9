package verification

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ssfood4u/receipt-validator/internal/receipt"
)

type fakeValidator struct {
	result    receipt.Result
	reference string
	lastReq   receipt.Request
}

func (f *fakeValidator) Validate(_ context.Context, req receipt.Request) receipt.Result {
	f.lastReq = req
	return f.result
}

func (f *fakeValidator) ExtractReference(_ context.Context, _ string) (string, error) {
	return f.reference, nil
}

type fakeStore struct {
	records []Record
	created *Record
	updated struct {
		id     int64
		status Status
		notes  string
	}
}

func (f *fakeStore) Create(_ context.Context, record *Record) error {
	record.ID = int64(len(f.records) + 1)
	f.records = append(f.records, *record)
	f.created = record
	return nil
}

func (f *fakeStore) GetByOrderID(_ context.Context, orderID string) (*Record, error) {
	for i := range f.records {
		if f.records[i].OrderID == orderID {
			return &f.records[i], nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) List(_ context.Context, status Status, _, _ int) ([]Record, error) {
	if status == "" {
		return f.records, nil
	}
	var out []Record
	for _, r := range f.records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id int64, status Status, notes string) error {
	f.updated.id = id
	f.updated.status = status
	f.updated.notes = notes
	return nil
}

func (f *fakeStore) Stats(_ context.Context) (*Stats, error) {
	return &Stats{Total: len(f.records)}, nil
}

func (f *fakeStore) Analytics(_ context.Context, days int) (*Analytics, error) {
	return &Analytics{Days: days}, nil
}

type fakeFiles struct {
	saved bool
}

func (f *fakeFiles) SaveReceipt(_ context.Context, _, orderID string) (string, error) {
	f.saved = true
	return "receipts/" + orderID + ".png", nil
}

func newTestService(result receipt.Result, policy Policy) (*Service, *fakeValidator, *fakeStore, *fakeFiles) {
	validator := &fakeValidator{result: result}
	store := &fakeStore{}
	files := &fakeFiles{}
	svc := NewService(validator, store, files, policy, zap.NewNop())
	return svc, validator, store, files
}

func submission() Submission {
	return Submission{
		OrderID:         "ORD-1001",
		CustomerEmail:   "customer@example.com",
		PaymentMethod:   "bank_transfer",
		Amount:          decimal.RequireFromString("25.50"),
		ReceiptTempPath: "/tmp/upload-123",
	}
}

func TestProcessSubmissionAutoApproved(t *testing.T) {
	matched := decimal.RequireFromString("25.50")
	svc, _, store, files := newTestService(receipt.Result{
		Success:       true,
		Status:        receipt.StatusMatch,
		Confidence:    95,
		Message:       "Amount verified: RM25.50",
		AmountsFound:  []decimal.Decimal{matched},
		MatchedAmount: &matched,
	}, Policy{AutoApproveThreshold: 80})

	outcome, err := svc.ProcessSubmission(context.Background(), submission())
	require.NoError(t, err)

	assert.True(t, outcome.Accepted)
	assert.True(t, outcome.AutoApproved)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, StatusVerified, outcome.Record.Status)
	assert.True(t, outcome.Record.AutoApproved)
	assert.NotNil(t, outcome.Record.VerifiedAt)
	assert.Equal(t, "receipts/ORD-1001.png", outcome.Record.ReceiptPath)
	assert.True(t, files.saved)
	require.NotNil(t, store.created)
	assert.Equal(t, "match", store.created.OCRValidation)
	assert.Contains(t, store.created.OCRAmountsFound, "25.5")
}

func TestProcessSubmissionBelowThresholdGoesPending(t *testing.T) {
	svc, _, _, _ := newTestService(receipt.Result{
		Success:    true,
		Status:     receipt.StatusCloseMatch,
		Confidence: 75,
	}, Policy{AutoApproveThreshold: 80})

	outcome, err := svc.ProcessSubmission(context.Background(), submission())
	require.NoError(t, err)

	assert.True(t, outcome.Accepted)
	assert.False(t, outcome.AutoApproved)
	assert.Equal(t, StatusPending, outcome.Record.Status)
	assert.Nil(t, outcome.Record.VerifiedAt)
}

func TestProcessSubmissionZeroThresholdNeverAutoApproves(t *testing.T) {
	svc, _, _, _ := newTestService(receipt.Result{
		Success:    true,
		Status:     receipt.StatusMatch,
		Confidence: 100,
	}, Policy{})

	outcome, err := svc.ProcessSubmission(context.Background(), submission())
	require.NoError(t, err)

	assert.True(t, outcome.Accepted)
	assert.False(t, outcome.AutoApproved)
	assert.Equal(t, StatusPending, outcome.Record.Status)
}

func TestProcessSubmissionAmountMismatchRejected(t *testing.T) {
	svc, _, store, files := newTestService(receipt.Result{
		Success:    true,
		Status:     receipt.StatusNoMatch,
		Confidence: 20,
		Message:    "Amount mismatch",
	}, Policy{AutoApproveThreshold: 80})

	outcome, err := svc.ProcessSubmission(context.Background(), submission())
	require.NoError(t, err)

	assert.False(t, outcome.Accepted)
	assert.Nil(t, outcome.Record)
	assert.Contains(t, outcome.Message, "could not be verified")
	assert.False(t, files.saved)
	assert.Nil(t, store.created)
}

func TestProcessSubmissionValidationFailure(t *testing.T) {
	svc, _, store, _ := newTestService(receipt.Result{
		Status:  receipt.StatusFailed,
		Message: "OCR processing failed",
	}, Policy{AutoApproveThreshold: 80})

	outcome, err := svc.ProcessSubmission(context.Background(), submission())
	require.NoError(t, err)

	assert.False(t, outcome.Accepted)
	assert.Nil(t, store.created)
	assert.Contains(t, outcome.Message, "OCR processing failed")
}

func TestProcessSubmissionSkippedGoesPending(t *testing.T) {
	svc, _, _, files := newTestService(receipt.Result{
		Status:  receipt.StatusSkipped,
		Message: "OCR validation not configured",
	}, Policy{AutoApproveThreshold: 80})

	outcome, err := svc.ProcessSubmission(context.Background(), submission())
	require.NoError(t, err)

	assert.True(t, outcome.Accepted)
	assert.False(t, outcome.AutoApproved)
	assert.Equal(t, StatusPending, outcome.Record.Status)
	assert.True(t, files.saved)
	assert.Contains(t, outcome.Message, "manual review")
}

func TestProcessSubmissionSkippedRequiresReference(t *testing.T) {
	svc, _, store, _ := newTestService(receipt.Result{
		Status: receipt.StatusSkipped,
	}, Policy{RequireTransactionID: true})

	outcome, err := svc.ProcessSubmission(context.Background(), submission())
	require.NoError(t, err)

	assert.False(t, outcome.Accepted)
	assert.Nil(t, store.created)
	assert.Contains(t, outcome.Message, "transaction reference")
}

func TestProcessSubmissionAdoptsExtractedReference(t *testing.T) {
	svc, _, store, _ := newTestService(receipt.Result{
		Success:                true,
		Status:                 receipt.StatusMatch,
		Confidence:             90,
		ExtractedTransactionID: "MB12345678",
	}, Policy{AutoApproveThreshold: 80, RequireTransactionID: true})

	sub := submission()
	sub.TransactionID = ""
	outcome, err := svc.ProcessSubmission(context.Background(), sub)
	require.NoError(t, err)

	assert.True(t, outcome.Accepted)
	assert.Equal(t, "MB12345678", store.created.TransactionID)
}

func TestProcessSubmissionKeepsCustomerReference(t *testing.T) {
	svc, validator, store, _ := newTestService(receipt.Result{
		Success:                true,
		Status:                 receipt.StatusMatch,
		Confidence:             90,
		ExtractedTransactionID: "MB12345678",
	}, Policy{AutoApproveThreshold: 80})

	sub := submission()
	sub.TransactionID = "CUST99887766"
	outcome, err := svc.ProcessSubmission(context.Background(), sub)
	require.NoError(t, err)

	assert.True(t, outcome.Accepted)
	assert.Equal(t, "CUST99887766", store.created.TransactionID)
	assert.Equal(t, "CUST99887766", validator.lastReq.TransactionHint)
}

func TestProcessSubmissionDuplicateOrder(t *testing.T) {
	svc, _, store, _ := newTestService(receipt.Result{
		Success: true,
		Status:  receipt.StatusMatch,
	}, Policy{})
	store.records = append(store.records, Record{ID: 1, OrderID: "ORD-1001"})

	_, err := svc.ProcessSubmission(context.Background(), submission())
	assert.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestProcessSubmissionInputValidation(t *testing.T) {
	svc, _, _, _ := newTestService(receipt.Result{}, Policy{})

	tests := []struct {
		name   string
		mutate func(*Submission)
	}{
		{"missing order id", func(s *Submission) { s.OrderID = " " }},
		{"zero amount", func(s *Submission) { s.Amount = decimal.Zero }},
		{"negative amount", func(s *Submission) { s.Amount = decimal.RequireFromString("-5") }},
		{"missing receipt", func(s *Submission) { s.ReceiptTempPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := submission()
			tt.mutate(&sub)
			_, err := svc.ProcessSubmission(context.Background(), sub)
			assert.Error(t, err)
		})
	}
}

func TestUpdateStatusRejectsUnknownState(t *testing.T) {
	svc, _, store, _ := newTestService(receipt.Result{}, Policy{})

	err := svc.UpdateStatus(context.Background(), 1, Status("bogus"), "")
	assert.Error(t, err)

	err = svc.UpdateStatus(context.Background(), 1, StatusRejected, "blurry receipt")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, store.updated.status)
	assert.Equal(t, "blurry receipt", store.updated.notes)
}

func TestPreviewReference(t *testing.T) {
	svc, validator, _, _ := newTestService(receipt.Result{}, Policy{})
	validator.reference = "FT22334455"

	ref, err := svc.PreviewReference(context.Background(), "/tmp/upload-9")
	require.NoError(t, err)
	assert.Equal(t, "FT22334455", ref)
}
