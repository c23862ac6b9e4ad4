package scanning

import (
	"context"
	"log/slog"
	"time"
)

// Pipeline renders, recognizes and parses a single document per call.
// Calls are independent and may run concurrently.
type Pipeline struct {
	renderer   PageRenderer
	recognizer TextRecognizer
	logger     *slog.Logger
	timeout    time.Duration
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithTimeout bounds the render and recognize stages of each call.
// Zero disables the bound.
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// NewPipeline creates a Pipeline
func NewPipeline(renderer PageRenderer, recognizer TextRecognizer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		renderer:   renderer,
		recognizer: recognizer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ScanReceipt implements Scanner. Render and recognition failures abort the
// call with a *StageError; parsing never does.
func (p *Pipeline) ScanReceipt(ctx context.Context, path string) (*ReceiptData, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	page, err := p.renderer.Render(ctx, path)
	if err != nil {
		p.logger.Error("Failed to render document", "path", path, "error", err)
		return nil, &StageError{Stage: StageRender, Err: err}
	}
	// The recognizer owns the page from here and releases it itself;
	// this covers the paths where it never gets that far.
	defer releasePage(page, p.logger)

	text, err := p.recognizer.Recognize(ctx, page)
	if err != nil {
		p.logger.Error("Failed to recognize text", "path", path, "image", page.Path, "error", err)
		return nil, &StageError{Stage: StageRecognize, Err: err}
	}

	data := ParseReceiptText(text)
	p.logger.Info("Scanned receipt",
		"path", path,
		"duration_ms", time.Since(start).Milliseconds(),
		"text_length", len(text),
		"date_found", data.PurchasedAt != nil,
		"merchant_found", data.MerchantName != nil,
		"total_found", data.TotalAmount != nil,
	)
	return data, nil
}
