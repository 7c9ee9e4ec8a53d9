package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultOCRAPIURL is the OCR.space parse endpoint.
const DefaultOCRAPIURL = "https://api.ocr.space/parse/image"

// DefaultOCRTimeout bounds a single provider call. PDFs can take a while,
// but an unbounded hang here would block the whole checkout flow.
const DefaultOCRTimeout = 90 * time.Second

// Extraction error taxonomy. The validator maps any of these to a failed
// result instead of letting them escape the engine boundary.
var (
	ErrUnconfigured       = errors.New("ocr api key not configured")
	ErrProviderTransport  = errors.New("provider transport error")
	ErrProviderProcessing = errors.New("provider processing error")
	ErrMalformedResponse  = errors.New("malformed provider response")
)

// OCRConfig configures the external text-recognition provider.
type OCRConfig struct {
	APIKey   string
	APIURL   string        // defaults to DefaultOCRAPIURL
	Timeout  time.Duration // defaults to DefaultOCRTimeout
	Language string        // defaults to "eng"
}

// Extraction is the raw text pulled out of a receipt and the engine that
// produced it.
type Extraction struct {
	Text   string
	Engine string // "2", "1", or "pdf-text" for the local fast path
}

// OCRClient talks to an OCR.space-compatible provider. Engine variant "2"
// (tuned for tabular/receipt layouts) is tried first, with a single
// fallback to variant "1"; further retries belong to the caller.
type OCRClient struct {
	cfg    OCRConfig
	http   *http.Client
	logger *zap.Logger
}

// NewOCRClient creates a provider client with defaults applied.
func NewOCRClient(cfg OCRConfig, logger *zap.Logger) *OCRClient {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultOCRAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOCRTimeout
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &OCRClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// ExtractText submits the file to the provider, trying engine 2 then
// engine 1. fileTypeHint carries an explicit type ("jpg", "pdf", ...) for
// temporary uploads whose path has no usable extension; pass "" otherwise.
func (c *OCRClient) ExtractText(ctx context.Context, path, fileTypeHint string) (Extraction, error) {
	if c.cfg.APIKey == "" {
		return Extraction{}, ErrUnconfigured
	}

	text, err := c.parse(ctx, path, fileTypeHint, "2")
	if err == nil {
		return Extraction{Text: text, Engine: "2"}, nil
	}
	c.logger.Warn("OCR engine 2 failed, falling back to engine 1",
		zap.String("path", path),
		zap.Error(err))

	text, err = c.parse(ctx, path, fileTypeHint, "1")
	if err != nil {
		c.logger.Error("Both OCR engines failed", zap.String("path", path), zap.Error(err))
		return Extraction{}, err
	}
	return Extraction{Text: text, Engine: "1"}, nil
}

// ocrResponse models the provider's JSON body. ErrorMessage is sometimes a
// string and sometimes an array of strings, so it is decoded lazily.
type ocrResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
	OCRExitCode           int             `json:"OCRExitCode"`
}

func (r *ocrResponse) errorMessage() string {
	if len(r.ErrorMessage) == 0 {
		return "unknown OCR error"
	}
	var many []string
	if err := json.Unmarshal(r.ErrorMessage, &many); err == nil {
		return strings.Join(many, " | ")
	}
	var one string
	if err := json.Unmarshal(r.ErrorMessage, &one); err == nil {
		return one
	}
	return string(r.ErrorMessage)
}

func (c *OCRClient) parse(ctx context.Context, path, fileTypeHint, engine string) (string, error) {
	body, contentType, err := c.buildRequestBody(path, fileTypeHint, engine)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderTransport, err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrProviderTransport, err)
	}

	c.logger.Debug("OCR provider responded",
		zap.String("engine", engine),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", ErrProviderTransport, resp.StatusCode)
	}

	var parsed ocrResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: invalid JSON: %v", ErrMalformedResponse, err)
	}

	if parsed.IsErroredOnProcessing {
		return "", fmt.Errorf("%w: %s (exit code %d)", ErrProviderProcessing, parsed.errorMessage(), parsed.OCRExitCode)
	}
	if parsed.ParsedResults == nil {
		return "", fmt.Errorf("%w: ParsedResults missing", ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, pr := range parsed.ParsedResults {
		sb.WriteString(pr.ParsedText)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// buildRequestBody assembles the multipart form: recognition parameters
// plus the file itself.
func (c *OCRClient) buildRequestBody(path, fileTypeHint, engine string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := map[string]string{
		"apikey":                c.cfg.APIKey,
		"language":              c.cfg.Language,
		"isOverlayRequired":     "false",
		"detectOrientation":     "true",
		"isTable":               "true",
		"OCREngine":             engine,
		"scale":                 "true",
		"isCreateSearchablePdf": "false",
	}
	if fileTypeHint != "" {
		fields["filetype"] = fileTypeHint
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copying file: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// ocrFileType maps a detected MIME type to the provider's filetype value.
func ocrFileType(mime string) string {
	switch mime {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/webp":
		return "webp"
	case "application/pdf":
		return "pdf"
	}
	return ""
}
