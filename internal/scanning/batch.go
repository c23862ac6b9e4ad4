package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ScanResult is the outcome for one document of a batch
type ScanResult struct {
	File    string       `json:"file"`
	Receipt *ReceiptData `json:"receipt,omitempty"`
	Error   string       `json:"error,omitempty"`
	Stage   Stage        `json:"stage,omitempty"`
}

// ScanFiles validates and scans each path in turn, writing one JSON object
// per file to w. Documents that fail validation are not scanned. It reports
// whether every file produced a receipt; the error is only for write failures.
func ScanFiles(ctx context.Context, scanner Scanner, paths []string, w io.Writer) (bool, error) {
	enc := json.NewEncoder(w)
	ok := true
	for _, path := range paths {
		result := ScanResult{File: path}
		if validation := ValidateFile(path); !validation.Valid {
			result.Error = validation.Reason
		} else if data, err := scanner.ScanReceipt(ctx, path); err != nil {
			result.Error = err.Error()
			var stageErr *StageError
			if errors.As(err, &stageErr) {
				result.Stage = stageErr.Stage
			}
		} else {
			result.Receipt = data
		}

		if result.Error != "" {
			ok = false
		}
		if err := enc.Encode(result); err != nil {
			return false, fmt.Errorf("writing result for %s: %w", path, err)
		}
	}
	return ok, nil
}
