package enrich

import "math"

// weightedFields lists the record fields that may carry weight in the overall
// score. Tax identifiers and line items are deliberately absent.
var weightedFields = []string{"merchant_name", "transaction_date", "total", "tax_amount"}

// weightedField returns the record field for a weight name
func (r *ParsedReceipt) weightedField(name string) Field {
	switch name {
	case "merchant_name":
		return r.MerchantName
	case "transaction_date":
		return r.TransactionDate
	case "total":
		return r.Total
	case "tax_amount":
		return r.TaxAmount
	}
	return Field{}
}

// AggregateConfidence combines per-field confidences into a 0-100 score. The
// average is normalized by the weights actually applied, so missing fields
// lower the evidence but do not cap the score. Returns 0 when no weighted
// field has a confidence.
func AggregateConfidence(r *ParsedReceipt, weights map[string]float64) int {
	if r == nil {
		return 0
	}

	var weightedSum, weightSum float64
	for _, name := range weightedFields {
		weight, ok := weights[name]
		if !ok || weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			continue
		}
		field := r.weightedField(name)
		if !field.Present() || field.Confidence == nil {
			continue
		}
		weightedSum += *field.Confidence * weight
		weightSum += weight
	}

	if weightSum == 0 {
		return 0
	}

	score := int(math.Round(weightedSum / weightSum))
	return max(0, min(100, score))
}
