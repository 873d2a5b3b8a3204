package receipt

import (
	"time"

	"github.com/zombor/receipt-enricher/internal/enrich"
)

// Receipt is an uploaded document together with its enriched record
type Receipt struct {
	ID           string                `json:"id"`
	OriginalName string                `json:"original_name"`
	Filename     string                `json:"filename"`
	ContentType  string                `json:"content_type"`
	Result       *enrich.ParsedReceipt `json:"result"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Status returns the approval status of the enriched record
func (r *Receipt) Status() enrich.Status {
	if r.Result == nil {
		return enrich.StatusNeedsReview
	}
	return r.Result.Status
}
