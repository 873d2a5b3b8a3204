// Package enrich turns a raw OCR result into a confidence-scored,
// categorized receipt record.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zombor/receipt-enricher/internal/config"
	"github.com/zombor/receipt-enricher/internal/llm"
	"github.com/zombor/receipt-enricher/internal/metrics"
	"github.com/zombor/receipt-enricher/internal/ocr"
)

// Status is the approval decision for an enriched receipt
type Status string

const (
	StatusApproved    Status = "approved"
	StatusNeedsReview Status = "needs_review"
)

// DeriveStatus approves a receipt whose confidence reaches the threshold
func DeriveStatus(confidence, threshold int) Status {
	if confidence >= threshold {
		return StatusApproved
	}
	return StatusNeedsReview
}

// Item is one line item, in document order
type Item struct {
	Description Field `json:"description"`
	TotalPrice  Field `json:"total_price"`
	Quantity    Field `json:"quantity"`
}

// ParsedReceipt is the enriched record produced by one pipeline run
type ParsedReceipt struct {
	MerchantName      Field  `json:"merchant_name"`
	TransactionDate   Field  `json:"transaction_date"`
	Total             Field  `json:"total"`
	TaxAmount         Field  `json:"tax_amount"`
	GSTIN             Field  `json:"gstin"`
	HSN               Field  `json:"hsn"`
	Items             []Item `json:"items"`
	Currency          string `json:"currency"`
	OverallConfidence int    `json:"overall_confidence"`
	Category          string `json:"category"`
	Status            Status `json:"status"`
}

// newParsedReceipt returns the record for a document with nothing recognized
func newParsedReceipt() *ParsedReceipt {
	return &ParsedReceipt{
		Items:    []Item{},
		Currency: DefaultCurrency,
		Category: config.DefaultCategory,
		Status:   StatusNeedsReview,
	}
}

// Pipeline sequences extraction, enrichment, categorization and the status
// decision for a single document. It holds no per-document state.
type Pipeline struct {
	analyzer    ocr.Analyzer
	settings    config.Settings
	categorizer *Categorizer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics records pipeline outcomes to m
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a Pipeline. analyzer may be nil when credentials are
// missing; Analyze then fails with ocr.ErrMissingCredentials. completer may
// be nil to disable AI categorization.
func NewPipeline(analyzer ocr.Analyzer, settings config.Settings, completer llm.Completer, opts ...Option) *Pipeline {
	p := &Pipeline{
		analyzer: analyzer,
		settings: settings,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.categorizer = NewCategorizer(settings, completer, p.logger)
	return p
}

// Analyze sends one document to the OCR service and enriches the result.
// Only missing credentials and OCR failures are returned as errors.
func (p *Pipeline) Analyze(ctx context.Context, data []byte, contentType string) (*ParsedReceipt, error) {
	if p.analyzer == nil {
		return nil, ocr.ErrMissingCredentials
	}

	start := time.Now()
	result, err := p.analyzer.Analyze(ctx, data, contentType)
	if err != nil {
		p.metrics.IncrementOCRFailure()
		return nil, fmt.Errorf("analyzing document: %w", err)
	}

	receipt := p.Enrich(ctx, result)
	p.metrics.ObserveAnalyzeLatency(time.Since(start))
	return receipt, nil
}

// AnalyzeFile reads a document from disk and analyzes it
func (p *Pipeline) AnalyzeFile(ctx context.Context, path string) (*ParsedReceipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return p.Analyze(ctx, data, ocr.ContentTypeFromFilename(path))
}

// Enrich builds the record from an OCR result. Only the first analyzed
// document is used; a result with no documents yields an empty record.
func (p *Pipeline) Enrich(ctx context.Context, result *ocr.Result) *ParsedReceipt {
	if result == nil || len(result.Documents) == 0 {
		p.logger.Info("OCR result contains no documents")
		receipt := newParsedReceipt()
		p.metrics.ObserveReceipt(string(receipt.Status), receipt.Category, receipt.OverallConfidence)
		return receipt
	}
	return p.EnrichSource(ctx, FieldMap(result.Documents[0].Fields), result.Content)
}

// EnrichSource runs the enrichment stages over any field source and the
// full document text
func (p *Pipeline) EnrichSource(ctx context.Context, src FieldSource, text string) *ParsedReceipt {
	receipt := newParsedReceipt()

	// Standard fields
	receipt.MerchantName = GetField(src, "MerchantName", KindString)
	receipt.TransactionDate = GetField(src, "TransactionDate", KindDate)
	receipt.Total = GetField(src, "Total", KindAmount)
	receipt.TaxAmount = GetField(src, "TotalTax", KindAmount)
	receipt.Items = extractItems(src)

	// Tax identifiers, falling back to the merchant address
	ids := ExtractTaxIDs(text, GetField(src, "MerchantAddress", KindString).Text())
	receipt.GSTIN = ids.GSTIN
	receipt.HSN = ids.HSN

	receipt.Currency = ResolveCurrency(src, receipt.GSTIN.Text())
	receipt.OverallConfidence = AggregateConfidence(receipt, p.settings.Weights)

	descriptions := make([]string, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		if d := item.Description.Text(); d != "" {
			descriptions = append(descriptions, d)
		}
	}
	receipt.Category = p.categorizer.Categorize(ctx, receipt.MerchantName.Text(), descriptions)

	receipt.Status = DeriveStatus(receipt.OverallConfidence, p.settings.ConfidenceThreshold)

	p.logger.Info("Receipt enriched",
		"merchant", receipt.MerchantName.Text(),
		"currency", receipt.Currency,
		"confidence", receipt.OverallConfidence,
		"category", receipt.Category,
		"status", receipt.Status,
	)
	p.metrics.ObserveReceipt(string(receipt.Status), receipt.Category, receipt.OverallConfidence)
	return receipt
}

func extractItems(src FieldSource) []Item {
	items := []Item{}
	if src == nil {
		return items
	}
	raw, ok := src.Get("Items")
	if !ok {
		return items
	}
	sources, ok := raw.Value.([]FieldSource)
	if !ok {
		return items
	}
	for _, itemSrc := range sources {
		items = append(items, Item{
			Description: GetField(itemSrc, "Description", KindString),
			TotalPrice:  GetField(itemSrc, "TotalPrice", KindAmount),
			Quantity:    GetField(itemSrc, "Quantity", KindNumber),
		})
	}
	return items
}
