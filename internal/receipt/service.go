package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-scanner/internal/scanning"
)

// ErrFileInvalid is returned when processing a file that failed validation
var ErrFileInvalid = errors.New("file is not a valid document")

// IDGenerator generates unique IDs for files and receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles file and receipt operations around the scanning pipeline
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	reUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	// Keep only alphanumeric, spaces, hyphens, and underscores
	base = reUnsafeChars.ReplaceAllString(base, "")
	base = reSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// UploadFile stores an uploaded document and records it as not yet validated
func (s *Service) UploadFile(filename string, data []byte) (*File, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	// The ID prefix keeps uploads that share a name apart
	storedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	file := &File{
		ID:         id,
		Filename:   filename,
		StoredName: storedName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.db.SaveFile(file); err != nil {
		s.storage.Delete(storedName)
		return nil, fmt.Errorf("saving file to database: %w", err)
	}

	return file, nil
}

// GetFile retrieves a file record by ID
func (s *Service) GetFile(id string) (*File, error) {
	file, err := s.db.GetFile(id)
	if err != nil {
		return nil, fmt.Errorf("getting file: %w", err)
	}
	return file, nil
}

// ListFiles returns all file records
func (s *Service) ListFiles() ([]*File, error) {
	files, err := s.db.ListFiles()
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

// GetFileData retrieves the stored content of a file
func (s *Service) GetFileData(id string) ([]byte, error) {
	file, err := s.db.GetFile(id)
	if err != nil {
		return nil, fmt.Errorf("getting file: %w", err)
	}

	data, err := s.storage.Get(file.StoredName)
	if err != nil {
		return nil, fmt.Errorf("getting file data: %w", err)
	}
	return data, nil
}

// ValidateFile checks the stored document's signature and records the outcome
func (s *Service) ValidateFile(id string) (*File, scanning.ValidationResult, error) {
	file, err := s.db.GetFile(id)
	if err != nil {
		return nil, scanning.ValidationResult{}, fmt.Errorf("getting file: %w", err)
	}

	result := s.validate(file)
	if err := s.db.SaveFile(file); err != nil {
		return nil, scanning.ValidationResult{}, fmt.Errorf("saving file to database: %w", err)
	}

	return file, result, nil
}

func (s *Service) validate(file *File) scanning.ValidationResult {
	result := scanning.ValidateFile(s.storage.Path(file.StoredName))
	if !result.Valid {
		slog.Warn("File failed validation", "file_id", file.ID, "filename", file.Filename, "reason", result.Reason)
	}

	file.Validated = true
	file.Valid = result.Valid
	file.InvalidReason = result.Reason
	file.UpdatedAt = s.timeSource.Now()
	return result
}

// ProcessFile extracts a receipt from a file and saves it. Files that were
// never validated are validated first; invalid files are refused.
func (s *Service) ProcessFile(ctx context.Context, id string) (*Receipt, error) {
	file, err := s.db.GetFile(id)
	if err != nil {
		return nil, fmt.Errorf("getting file: %w", err)
	}

	if !file.Validated {
		s.validate(file)
		if err := s.db.SaveFile(file); err != nil {
			return nil, fmt.Errorf("saving file to database: %w", err)
		}
	}
	if !file.Valid {
		return nil, fmt.Errorf("%w: %s", ErrFileInvalid, file.InvalidReason)
	}

	data, err := s.scanner.ScanReceipt(ctx, s.storage.Path(file.StoredName))
	if err != nil {
		slog.Error("Failed to scan receipt",
			"file_id", file.ID,
			"filename", file.Filename,
			"error", err,
		)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	now := s.timeSource.Now()
	receipt := &Receipt{
		ID:           s.idGenerator.Generate(),
		FileID:       file.ID,
		PurchasedAt:  data.PurchasedAt,
		MerchantName: data.MerchantName,
		TotalAmount:  data.TotalAmount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	file.Processed = true
	file.UpdatedAt = now
	if err := s.db.SaveFile(file); err != nil {
		// Drop the receipt so the file can be processed again
		if delErr := s.db.DeleteReceipt(receipt.ID); delErr != nil {
			slog.Warn("Failed to remove orphaned receipt", "receipt_id", receipt.ID, "error", delErr)
		}
		return nil, fmt.Errorf("marking file processed: %w", err)
	}

	return receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt. The source file is kept.
func (s *Service) DeleteReceipt(id string) error {
	if _, err := s.db.GetReceipt(id); err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}
