package scanning

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
)

// DefaultDPI is the resolution used to rasterize a page for OCR
const DefaultDPI = 300

var errNoPages = errors.New("document has no pages")

// FitzRenderer implements PageRenderer using MuPDF through go-fitz
type FitzRenderer struct {
	dpi    float64
	logger *slog.Logger
}

// NewFitzRenderer creates a renderer. A non-positive dpi selects DefaultDPI.
func NewFitzRenderer(dpi int, logger *slog.Logger) *FitzRenderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FitzRenderer{
		dpi:    float64(dpi),
		logger: logger,
	}
}

type renderResult struct {
	img image.Image
	err error
}

// Render rasterizes the first page of the document next to it, under a name
// unique to this call.
func (r *FitzRenderer) Render(ctx context.Context, documentPath string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// MuPDF calls can't be interrupted, so rendering happens in memory on its
	// own goroutine and nothing touches disk if ctx finishes first.
	done := make(chan renderResult, 1)
	go func() {
		img, err := r.renderFirstPage(documentPath)
		done <- renderResult{img: img, err: err}
	}()

	var res renderResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return nil, res.err
	}

	out := artifactPath(documentPath, uuid.NewString())
	if err := writePNG(out, res.img); err != nil {
		return nil, err
	}

	r.logger.Debug("rendered page", "document", documentPath, "image", out, "dpi", r.dpi)
	return NewArtifact(out), nil
}

func (r *FitzRenderer) renderFirstPage(documentPath string) (image.Image, error) {
	doc, err := fitz.New(documentPath)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, errNoPages
	}

	// Receipts are single page
	img, err := doc.ImageDPI(0, r.dpi)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// artifactPath places the image beside the document, suffixed with id so
// documents sharing a base name never share an image.
func artifactPath(documentPath, id string) string {
	dir := filepath.Dir(documentPath)
	base := filepath.Base(documentPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, fmt.Sprintf("%s-%s.png", base, id))
}

func writePNG(path string, img image.Image) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encoding PNG: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing image file: %w", err)
	}
	return nil
}
