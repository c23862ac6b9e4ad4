// Package tesseract recognizes text locally with the Tesseract engine.
// It needs libtesseract at build time, which is why it lives apart from scanning.
package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/receipt-scanner/internal/scanning"
)

// Recognizer implements scanning.TextRecognizer with gosseract
type Recognizer struct {
	Language             string // Tesseract language code, e.g. "eng" or "eng+fra"
	PageSegmentationMode gosseract.PageSegMode
	logger               *slog.Logger
}

// New creates a Recognizer. An empty language selects "eng".
func New(language string, logger *slog.Logger) *Recognizer {
	if language == "" {
		language = "eng"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		Language:             language,
		PageSegmentationMode: gosseract.PSM_AUTO,
		logger:               logger,
	}
}

type ocrResult struct {
	text string
	err  error
}

// Recognize runs one OCR pass over the page. The engine is created for this
// call and closed before the page is removed.
func (r *Recognizer) Recognize(ctx context.Context, page *scanning.Artifact) (string, error) {
	defer func() {
		if err := page.Release(); err != nil {
			r.logger.Warn("Failed to remove rendered page", "image", page.Path, "error", err)
		}
	}()

	// Read up front so the file can go away even if the engine outlives ctx
	imageData, err := os.ReadFile(page.Path)
	if err != nil {
		return "", fmt.Errorf("reading page image: %w", err)
	}

	done := make(chan ocrResult, 1)
	go func() {
		text, err := r.run(imageData)
		done <- ocrResult{text: text, err: err}
	}()

	// A cancelled call returns at once. Tesseract cannot be interrupted, so
	// run keeps the engine until the pass ends and closes it on its own
	// goroutine; it only holds the copied bytes, never the page file.
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		return scanning.NormalizeText(res.text), nil
	}
}

func (r *Recognizer) run(imageData []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.Language); err != nil {
		return "", fmt.Errorf("setting OCR language %q: %w", r.Language, err)
	}
	if err := client.SetPageSegMode(r.PageSegmentationMode); err != nil {
		return "", fmt.Errorf("setting page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(imageData); err != nil {
		return "", fmt.Errorf("setting OCR image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	return text, nil
}
