package enrich

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-enricher/internal/ocr"
)

// Kind selects how a raw field value is normalized
type Kind int

const (
	KindString Kind = iota
	KindAmount
	KindNumber
	KindDate
)

// Field is an extracted value with its confidence percentage (0-100).
// An absent field has a nil Value and a nil Confidence.
type Field struct {
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// Present reports whether the field carries a value
func (f Field) Present() bool {
	return f.Value != nil
}

// Score returns the confidence, or 0 when none was assigned
func (f Field) Score() float64 {
	if f.Confidence == nil {
		return 0
	}
	return *f.Confidence
}

// Text formats the value for display; absent fields are empty
func (f Field) Text() string {
	switch v := f.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case decimal.Decimal:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// withConfidence builds a present field with a fixed confidence
func withConfidence(value any, confidence float64) Field {
	return Field{Value: value, Confidence: &confidence}
}

// Money is a compound monetary value. The currency code is ignored by the
// accessor and only consulted by the currency resolver.
type Money struct {
	Amount       decimal.Decimal
	CurrencyCode string
}

// RawField is a field as exposed by a FieldSource
type RawField struct {
	Value   any
	Content string
	// Confidence is the service's 0-1 fraction; nil when not reported
	Confidence *float64
}

// FieldSource is any shape of OCR output that can be looked up by field name
type FieldSource interface {
	Get(name string) (RawField, bool)
}

// FieldMap adapts the structured field mapping of an analyzed document or
// a line item object
type FieldMap map[string]ocr.Field

// Get implements FieldSource
func (m FieldMap) Get(name string) (RawField, bool) {
	f, ok := m[name]
	if !ok {
		return RawField{}, false
	}

	raw := RawField{Content: f.Content, Confidence: f.Confidence}
	switch v := f.Value().(type) {
	case ocr.Currency:
		raw.Value = Money{Amount: decimal.NewFromFloat(v.Amount), CurrencyCode: v.CurrencyCode}
	case ocr.Address:
		raw.Value = addressText(f.Content, v)
	case []ocr.Field:
		sources := make([]FieldSource, 0, len(v))
		for _, elem := range v {
			if elem.ValueObject != nil {
				sources = append(sources, FieldMap(elem.ValueObject))
			}
		}
		raw.Value = sources
	case map[string]ocr.Field:
		raw.Value = FieldMap(v)
	default:
		raw.Value = v
	}
	return raw, true
}

func addressText(content string, a ocr.Address) string {
	if content != "" {
		return content
	}
	parts := make([]string, 0, 6)
	for _, p := range []string{a.StreetAddress, a.HouseNumber, a.Road, a.City, a.State, a.PostalCode, a.CountryRegion} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// PlainMap adapts a plain name -> value mapping. Values may be RawField
// entries or bare scalars.
type PlainMap map[string]any

// Get implements FieldSource
func (m PlainMap) Get(name string) (RawField, bool) {
	v, ok := m[name]
	if !ok || v == nil {
		return RawField{}, false
	}
	switch f := v.(type) {
	case RawField:
		return f, true
	case *RawField:
		if f == nil {
			return RawField{}, false
		}
		return *f, true
	case []map[string]any:
		sources := make([]FieldSource, 0, len(f))
		for _, item := range f {
			sources = append(sources, PlainMap(item))
		}
		return RawField{Value: sources}, true
	case map[string]any:
		return RawField{Value: PlainMap(f)}, true
	}
	return RawField{Value: v}, true
}

// GetField extracts a named field from src and normalizes its value for kind.
// It never fails: a missing or unusable field yields an absent Field.
func GetField(src FieldSource, name string, kind Kind) Field {
	if src == nil {
		return Field{}
	}
	raw, ok := src.Get(name)
	if !ok {
		return Field{}
	}

	value := normalizeValue(raw, kind)
	if value == nil {
		return Field{}
	}

	confidence := 100.0
	if raw.Confidence != nil {
		confidence = math.Round(*raw.Confidence*100*100) / 100
		confidence = math.Max(0, math.Min(100, confidence))
	}
	return withConfidence(value, confidence)
}

func normalizeValue(raw RawField, kind Kind) any {
	switch kind {
	case KindAmount, KindNumber:
		if d, ok := toDecimal(raw.Value); ok {
			return d
		}
		return nil
	case KindDate:
		if date, ok := toISODate(raw.Value); ok {
			return date
		}
		if date, ok := toISODate(raw.Content); ok {
			return date
		}
		return nil
	default:
		switch v := raw.Value.(type) {
		case nil:
			if s := strings.TrimSpace(raw.Content); s != "" {
				return s
			}
			return nil
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				s = strings.TrimSpace(raw.Content)
			}
			if s == "" {
				return nil
			}
			return s
		case Money:
			return v.Amount.String()
		case decimal.Decimal:
			return v.String()
		case float64, float32, int, int64, int32, bool:
			return fmt.Sprint(v)
		}
		// compound values have no scalar form
		return nil
	}
}

func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case Money:
		return v.Amount, true
	case decimal.Decimal:
		return v, true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case int32:
		return decimal.NewFromInt32(v), true
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, v)
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"02.01.2006",
	"02-Jan-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

func toISODate(value any) (string, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return "", false
		}
		return v.Format("2006-01-02"), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", false
		}
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return d.Format("2006-01-02"), true
			}
		}
	}
	return "", false
}
