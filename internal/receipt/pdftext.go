package receipt

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// minEmbeddedTextLen is the smallest embedded-text payload worth trusting.
// Scanned PDFs typically yield nothing or a few stray characters, in which
// case the receipt goes to the OCR provider instead.
const minEmbeddedTextLen = 40

// extractPDFText pulls the embedded text layer out of a born-digital PDF.
// Banking apps export receipts as real PDFs with selectable text, which
// makes the OCR round-trip unnecessary for them.
func extractPDFText(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("reading pdf page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
