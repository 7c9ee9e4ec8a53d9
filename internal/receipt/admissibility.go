package receipt

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxFileSize is the upper bound for an uploaded receipt (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// FileErrorKind classifies why a file failed admissibility.
type FileErrorKind string

const (
	FileErrNone              FileErrorKind = ""
	FileErrNotFound          FileErrorKind = "file_not_found"
	FileErrUnreadable        FileErrorKind = "file_unreadable"
	FileErrEmpty             FileErrorKind = "file_empty"
	FileErrTooLarge          FileErrorKind = "file_too_large"
	FileErrInvalidMimeType   FileErrorKind = "invalid_mime_type"
	FileErrSignatureMismatch FileErrorKind = "signature_mismatch"
)

// FileReport is the outcome of admissibility checking for one upload.
// It is produced once per validation request and never persisted.
type FileReport struct {
	Valid             bool          `json:"valid"`
	ErrorKind         FileErrorKind `json:"error_kind,omitempty"`
	Error             string        `json:"error,omitempty"`
	SizeBytes         int64         `json:"size_bytes"`
	Extension         string        `json:"extension"`
	SniffedMIME       string        `json:"sniffed_mime"`
	ImageMIME         string        `json:"image_mime"`
	PrimaryMIME       string        `json:"primary_mime"`
	IsPDF             bool          `json:"is_pdf"`
	IsTempUpload      bool          `json:"is_temp_upload"`
	SignatureVerified bool          `json:"signature_verified"`
}

var allowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/bmp":       true,
	"image/webp":      true,
	"application/pdf": true,
}

var allowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"bmp":  true,
	"webp": true,
	"pdf":  true,
}

// magicSignatures maps a MIME type to the byte prefixes a genuine file of
// that type must start with.
var magicSignatures = map[string][][]byte{
	"image/jpeg":      {{0xFF, 0xD8, 0xFF}},
	"image/png":       {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	"image/gif":       {[]byte("GIF87a"), []byte("GIF89a")},
	"image/bmp":       {[]byte("BM")},
	"image/webp":      {[]byte("RIFF")},
	"application/pdf": {[]byte("%PDF")},
}

// CheckFile validates that path points to a real, readable, size-bounded
// image or PDF whose content matches its declared type. It only reads the
// file; it never moves or deletes it.
//
// Temporary uploads (files under the OS temp directory, or paths without an
// extension) carry no trustworthy extension, so the extension check is
// replaced by a magic-byte signature check against the detected MIME type.
func CheckFile(path string) FileReport {
	report := FileReport{
		Extension:    strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")),
		IsTempUpload: isTempUpload(path),
	}

	info, err := os.Stat(path)
	if err != nil {
		report.ErrorKind = FileErrNotFound
		report.Error = fmt.Sprintf("file does not exist at path: %s", path)
		return report
	}
	report.SizeBytes = info.Size()

	if report.SizeBytes == 0 {
		report.ErrorKind = FileErrEmpty
		report.Error = "file is empty (0 bytes)"
		return report
	}
	if report.SizeBytes > MaxFileSize {
		report.ErrorKind = FileErrTooLarge
		report.Error = fmt.Sprintf("file too large: %d bytes (max %d)", report.SizeBytes, MaxFileSize)
		return report
	}

	// Two independent MIME probes: content sniffing and image header
	// decoding. Either may fail on its own; the declared extension is the
	// fallback of last resort.
	if mt, err := mimetype.DetectFile(path); err == nil {
		report.SniffedMIME = baseMIME(mt.String())
	}
	report.ImageMIME = probeImageHeader(path)

	report.PrimaryMIME = report.SniffedMIME
	if report.PrimaryMIME == "" || report.PrimaryMIME == "application/octet-stream" {
		report.PrimaryMIME = report.ImageMIME
	}
	if report.PrimaryMIME == "" {
		report.PrimaryMIME = extensionMIME(report.Extension)
	}

	report.IsPDF = report.PrimaryMIME == "application/pdf" || report.Extension == "pdf"

	if !allowedMIMETypes[report.PrimaryMIME] {
		report.ErrorKind = FileErrInvalidMimeType
		report.Error = fmt.Sprintf("invalid file type %q, allowed: jpeg, png, gif, bmp, webp, pdf", report.PrimaryMIME)
		return report
	}

	if report.IsTempUpload {
		ok, err := verifySignature(path, report.PrimaryMIME)
		if err != nil {
			report.ErrorKind = FileErrUnreadable
			report.Error = fmt.Sprintf("could not read file header: %v", err)
			return report
		}
		if !ok {
			report.ErrorKind = FileErrSignatureMismatch
			report.Error = fmt.Sprintf("file signature does not match detected type %s", report.PrimaryMIME)
			return report
		}
		report.SignatureVerified = true
	} else {
		if report.Extension == "" {
			report.ErrorKind = FileErrInvalidMimeType
			report.Error = "file has no extension"
			return report
		}
		if !allowedExtensions[report.Extension] {
			report.ErrorKind = FileErrInvalidMimeType
			report.Error = fmt.Sprintf("invalid extension %q, allowed: jpg, jpeg, png, gif, bmp, webp, pdf", report.Extension)
			return report
		}
	}

	report.Valid = true
	return report
}

// isTempUpload reports whether the path looks like a temporary upload with
// no reliable extension (PHP-style tmp_name uploads, os.CreateTemp files).
func isTempUpload(path string) bool {
	if filepath.Ext(path) == "" {
		return true
	}
	tmp := os.TempDir()
	if !strings.HasSuffix(tmp, string(os.PathSeparator)) {
		tmp += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, tmp) || strings.HasPrefix(path, "/tmp/")
}

// probeImageHeader decodes just the image header and reports the implied
// MIME type, or "" when the file is not a recognized image.
func probeImageHeader(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return ""
	}
	return "image/" + format
}

// verifySignature checks the first bytes of the file against the known
// magic sequences for the given MIME type. Types without a registered
// signature pass by default.
func verifySignature(path, mime string) (bool, error) {
	sigs, ok := magicSignatures[mime]
	if !ok {
		return true, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, 16)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return false, err
	}
	header = header[:n]

	for _, sig := range sigs {
		if bytes.HasPrefix(header, sig) {
			return true, nil
		}
	}
	return false, nil
}

func baseMIME(m string) string {
	if i := strings.Index(m, ";"); i >= 0 {
		m = m[:i]
	}
	return strings.TrimSpace(m)
}

func extensionMIME(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "webp":
		return "image/webp"
	case "pdf":
		return "application/pdf"
	}
	return ""
}
