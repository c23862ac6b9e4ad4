package receipt

import "time"

// File is an uploaded source document
type File struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`    // name as uploaded
	StoredName    string    `json:"stored_name"` // name in storage
	Validated     bool      `json:"validated"`
	Valid         bool      `json:"is_valid"`
	InvalidReason string    `json:"invalid_reason,omitempty"`
	Processed     bool      `json:"is_processed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Receipt holds the fields extracted from a processed File.
// Fields that could not be extracted are nil.
type Receipt struct {
	ID           string    `json:"id"`
	FileID       string    `json:"file_id"`
	PurchasedAt  *string   `json:"purchased_at"`
	MerchantName *string   `json:"merchant_name"`
	TotalAmount  *string   `json:"total_amount"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
