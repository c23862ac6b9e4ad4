package scanning

import "context"

// ReceiptData contains the fields extracted from a receipt.
// A nil field means the pattern for it did not match.
type ReceiptData struct {
	PurchasedAt  *string `json:"purchased_at"`
	MerchantName *string `json:"merchant_name"`
	TotalAmount  *string `json:"total_amount"`
}

// Scanner turns a document on disk into receipt fields
type Scanner interface {
	// ScanReceipt runs the full extraction for the document at path
	ScanReceipt(ctx context.Context, path string) (*ReceiptData, error)
}

// PageRenderer rasterizes the first page of a document
type PageRenderer interface {
	// Render writes a PNG of the first page and returns it as an Artifact.
	// On error no artifact is left behind.
	Render(ctx context.Context, documentPath string) (*Artifact, error)
}

// TextRecognizer runs OCR over a rendered page.
//
// The artifact is consumed: implementations must Release it before returning,
// whether recognition succeeded or not. Any engine acquired for the call is
// also released before returning.
type TextRecognizer interface {
	Recognize(ctx context.Context, page *Artifact) (string, error)
}
