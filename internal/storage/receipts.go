// Package storage moves accepted receipt uploads out of the temporary
// upload area into long-term local storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ReceiptStore keeps receipt files on the local filesystem under a single
// base directory. Stored names carry the order id plus a random suffix so
// resubmissions never collide.
type ReceiptStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewReceiptStore creates the store and its base directory.
func NewReceiptStore(baseDir string, logger *zap.Logger) (*ReceiptStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create receipts directory: %w", err)
	}
	return &ReceiptStore{baseDir: baseDir, logger: logger}, nil
}

// SaveReceipt copies the upload at srcPath into the store and returns the
// stored path. The source file is left in place; upload cleanup belongs to
// the HTTP layer.
func (s *ReceiptStore) SaveReceipt(ctx context.Context, srcPath, orderID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open receipt upload: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("%s_%s%s",
		sanitize(orderID),
		uuid.New().String(),
		strings.ToLower(filepath.Ext(srcPath)))
	destPath := filepath.Join(s.baseDir, name)

	if err := s.validatePath(destPath); err != nil {
		return "", err
	}

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create stored receipt: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("failed to copy receipt: %w", err)
	}

	s.logger.Debug("Receipt stored",
		zap.String("order_id", orderID),
		zap.String("path", destPath))
	return destPath, nil
}

// Open returns the stored receipt for reading, refusing paths outside the
// base directory.
func (s *ReceiptStore) Open(path string) (*os.File, error) {
	if err := s.validatePath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored receipt: %w", err)
	}
	return f, nil
}

func (s *ReceiptStore) validatePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes receipts directory: %s", path)
	}
	return nil
}

func sanitize(orderID string) string {
	clean := unsafeChars.ReplaceAllString(orderID, "-")
	if clean == "" {
		clean = "order"
	}
	return clean
}
