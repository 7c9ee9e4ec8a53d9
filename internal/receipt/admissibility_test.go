package receipt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}

// writeFile creates a file in dir with the given content.
func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// nonTempDir creates a directory outside the OS temp dir, so uploads in it
// take the regular (extension-checked) path.
func nonTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp(".", "uploads")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestCheckFileNotFound(t *testing.T) {
	report := CheckFile(filepath.Join(t.TempDir(), "missing.png"))

	assert.False(t, report.Valid)
	assert.Equal(t, FileErrNotFound, report.ErrorKind)
}

func TestCheckFileEmptyRegardlessOfExtension(t *testing.T) {
	for _, name := range []string{"empty.png", "empty.pdf", "empty.jpg"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), name, nil)

			report := CheckFile(path)

			assert.False(t, report.Valid)
			assert.Equal(t, FileErrEmpty, report.ErrorKind)
			assert.Zero(t, report.SizeBytes)
		})
	}
}

func TestCheckFileTooLarge(t *testing.T) {
	path := writeFile(t, t.TempDir(), "big.png", pngHeader)
	require.NoError(t, os.Truncate(path, MaxFileSize+1))

	report := CheckFile(path)

	assert.False(t, report.Valid)
	assert.Equal(t, FileErrTooLarge, report.ErrorKind)
}

func TestCheckFileTempUploadSignatureMismatch(t *testing.T) {
	// Binary junk named receipt.pdf, routed through the temporary-upload
	// path: the extension says PDF but the content does not start with
	// %PDF, so the signature check must fail.
	junk := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	path := writeFile(t, t.TempDir(), "receipt.pdf", junk)

	report := CheckFile(path)

	assert.False(t, report.Valid)
	assert.Equal(t, FileErrSignatureMismatch, report.ErrorKind)
	assert.True(t, report.IsTempUpload)
	assert.False(t, report.SignatureVerified)
}

func TestCheckFileTempUploadValidSignature(t *testing.T) {
	path := writeFile(t, t.TempDir(), "upload.pdf", []byte("%PDF-1.4\n%fake"))

	report := CheckFile(path)

	assert.True(t, report.Valid)
	assert.True(t, report.IsPDF)
	assert.True(t, report.IsTempUpload)
	assert.True(t, report.SignatureVerified)
	assert.Equal(t, "application/pdf", report.PrimaryMIME)
}

func TestCheckFileTempUploadNoExtension(t *testing.T) {
	// PHP-style tmp_name upload: no extension at all. The MIME probes and
	// the signature check must carry the decision alone.
	path := writeFile(t, nonTempDir(t), "phpA1B2C3", pngHeader)

	report := CheckFile(path)

	assert.True(t, report.Valid)
	assert.True(t, report.IsTempUpload, "extension-less files take the temp-upload path")
	assert.True(t, report.SignatureVerified)
	assert.Equal(t, "image/png", report.PrimaryMIME)
}

func TestCheckFileRegularUploadAllowedExtension(t *testing.T) {
	path := writeFile(t, nonTempDir(t), "receipt.png", pngHeader)

	report := CheckFile(path)

	assert.True(t, report.Valid)
	assert.False(t, report.IsTempUpload)
	assert.False(t, report.IsPDF)
	assert.Equal(t, "png", report.Extension)
}

func TestCheckFileRegularUploadBadExtension(t *testing.T) {
	path := writeFile(t, nonTempDir(t), "receipt.exe", pngHeader)

	report := CheckFile(path)

	assert.False(t, report.Valid)
	assert.Equal(t, FileErrInvalidMimeType, report.ErrorKind)
	assert.Contains(t, report.Error, "exe")
}

func TestCheckFileRejectsUnknownContent(t *testing.T) {
	path := writeFile(t, nonTempDir(t), "notes.txt", []byte("just some text"))

	report := CheckFile(path)

	assert.False(t, report.Valid)
	assert.Equal(t, FileErrInvalidMimeType, report.ErrorKind)
}

func TestCheckFileNeverMutatesInput(t *testing.T) {
	content := []byte("%PDF-1.7 payload")
	path := writeFile(t, t.TempDir(), "receipt.pdf", content)

	CheckFile(path)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, after)
}
