package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-enricher/internal/enrich"
	"github.com/zombor/receipt-enricher/internal/export"
)

// ErrAnalysisFailed wraps failures of the enrichment pipeline
var ErrAnalysisFailed = errors.New("analysis failed")

// Analyzer runs the enrichment pipeline over one uploaded document
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, contentType string) (*enrich.ParsedReceipt, error)
}

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt operations
type Service struct {
	db          DB
	analyzer    Analyzer
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, analyzer Analyzer, storage Storage) *Service {
	return NewServiceWithDeps(db, analyzer, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, analyzer Analyzer, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		analyzer:    analyzer,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, "_")
	base = strings.Trim(base, " _")

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ProcessReceipt stores an upload, runs the enrichment pipeline on it and
// saves the result
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Receipt, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	result, err := s.analyzer.Analyze(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to analyze receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedName)
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	receipt := &Receipt{
		ID:           id,
		OriginalName: filename,
		Filename:     savedName,
		ContentType:  contentType,
		Result:       result,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.storage.Delete(savedName)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
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

// ListReceipts returns all receipts, optionally only those with the given status
func (s *Service) ListReceipts(status enrich.Status) ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	if status == "" {
		return receipts, nil
	}

	filtered := make([]*Receipt, 0, len(receipts))
	for _, r := range receipts {
		if r.Status() == status {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the uploaded document for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// ExportReceipts serializes receipts, optionally filtered by status
func (s *Service) ExportReceipts(format export.Format, status enrich.Status) ([]byte, error) {
	receipts, err := s.ListReceipts(status)
	if err != nil {
		return nil, err
	}

	rows := make([]export.Row, 0, len(receipts))
	for _, r := range receipts {
		rows = append(rows, export.NewRow(r.ID, r.OriginalName, r.CreatedAt, r.Result))
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, rows); err != nil {
		return nil, fmt.Errorf("exporting receipts: %w", err)
	}
	return buf.Bytes(), nil
}
