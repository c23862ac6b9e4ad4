package scanning

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// pdfSignature is the magic number every PDF starts with
var pdfSignature = []byte("%PDF")

const invalidDocumentReason = "not a valid PDF document"

// ValidationResult reports whether a file looks like a usable document
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidateDocument checks the leading bytes of r against the PDF signature.
// It reads only as many bytes as the signature is long.
func ValidateDocument(r io.Reader) ValidationResult {
	header := make([]byte, len(pdfSignature))
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ValidationResult{Reason: invalidDocumentReason}
		}
		return ValidationResult{Reason: fmt.Sprintf("unreadable document: %v", err)}
	}
	if !bytes.Equal(header, pdfSignature) {
		return ValidationResult{Reason: invalidDocumentReason}
	}
	return ValidationResult{Valid: true}
}

// ValidateFile opens the file at path and validates its signature.
// Open errors are reported as an invalid result.
func ValidateFile(path string) ValidationResult {
	f, err := os.Open(path)
	if err != nil {
		return ValidationResult{Reason: fmt.Sprintf("unreadable document: %v", err)}
	}
	defer f.Close()

	return ValidateDocument(f)
}
