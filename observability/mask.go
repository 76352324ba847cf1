package observability

import "regexp"

// Masking patterns for free text that may reach a log line. Conservative on
// purpose: names are not guessable by regex, so callers must never log raw
// verification inputs in the first place.
var (
	maskPhone  = regexp.MustCompile(`\(\d{2,3}\)\s*\d{3,5}-\d{4}|\b\d{10,11}\b`)
	maskEmail  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	maskDate   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{4}\b`)
	maskDigits = regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`)
)

// MaskPII replaces phone numbers, emails, dates and document numbers in text
// with placeholder tokens. Used before any free text is handed to a logger.
func MaskPII(text string) string {
	if text == "" {
		return text
	}
	text = maskDigits.ReplaceAllString(text, "[DOCUMENT]")
	text = maskPhone.ReplaceAllString(text, "[PHONE]")
	text = maskEmail.ReplaceAllString(text, "[EMAIL]")
	text = maskDate.ReplaceAllString(text, "[DATE]")
	return text
}
