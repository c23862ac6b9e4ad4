package scanning

import (
	"regexp"
	"strings"
)

var (
	// Numeric dates such as 03/14/2024 or 1-2-24. Not checked against a calendar.
	reDate = regexp.MustCompile(`\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}`)
	// "Total", optional ":" or "-", optional "$", then the amount.
	// \b keeps "Subtotal" lines from matching.
	reTotal = regexp.MustCompile(`(?i)\btotal\s*[:\-]?\s*\$?(\d+[.,]?\d*)`)
)

// ParseReceiptText extracts receipt fields from recognized text.
// It never fails; a field that does not match is left nil.
func ParseReceiptText(text string) *ReceiptData {
	return &ReceiptData{
		PurchasedAt:  findDate(text),
		MerchantName: findMerchant(text),
		TotalAmount:  findTotal(text),
	}
}

func findDate(text string) *string {
	m := reDate.FindString(text)
	if m == "" {
		return nil
	}
	return &m
}

// findTotal always reports dollars, whatever symbol the receipt used
func findTotal(text string) *string {
	m := reTotal.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	amount := "$" + m[1]
	return &amount
}

// findMerchant takes the first non-blank line as is
func findMerchant(text string) *string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return &line
		}
	}
	return nil
}
