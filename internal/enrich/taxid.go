package enrich

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	gstinLength = 15
	// gstinZIndex is the position that always holds a literal Z
	gstinZIndex = 13

	textConfidence    = 100.0
	addressConfidence = 85.0
)

var (
	// labeledGSTINPattern matches "GSTIN", "GST No", "GSTIN No." and similar
	// labels followed by a 15 character token
	labeledGSTINPattern = regexp.MustCompile(`(?i)\bGST(?:IN(?:[\s.]*NO)?|[\s.]*NO)\b[\s:.\-]*([A-Z0-9]{15})\b`)

	// structuralGSTINPattern matches the positional GSTIN shape. The 14th
	// character tolerates a misread 2 in place of Z.
	structuralGSTINPattern = regexp.MustCompile(`\b\d{2}[A-Z]{5}\d{4}[A-Z][A-Z0-9][Z2][A-Z0-9]\b`)

	hsnPattern = regexp.MustCompile(`(?i)\bHSN(?:[\s:.\-]*CODE)?[\s:.\-]*(\d{4,8})\b`)
)

// TaxIDs holds the identifiers recovered from a document
type TaxIDs struct {
	GSTIN Field
	HSN   Field
}

// ExtractTaxIDs finds the GSTIN and HSN code in the full document text. When
// the text has no GSTIN, the merchant address is searched instead and the
// result is assigned a lower confidence.
func ExtractTaxIDs(text, address string) TaxIDs {
	var ids TaxIDs

	if gstin := findGSTIN(text); gstin != "" {
		ids.GSTIN = withConfidence(gstin, textConfidence)
	} else if gstin := findGSTIN(address); gstin != "" {
		ids.GSTIN = withConfidence(gstin, addressConfidence)
	}

	if hsn := FindHSN(text); hsn != "" {
		ids.HSN = withConfidence(hsn, textConfidence)
	}

	return ids
}

// findGSTIN tries a labeled match first, then the structural shape
func findGSTIN(text string) string {
	if text == "" {
		return ""
	}
	if m := labeledGSTINPattern.FindStringSubmatch(text); m != nil {
		if gstin := SanitizeGSTIN(m[1]); gstin != "" {
			return gstin
		}
	}
	if m := structuralGSTINPattern.FindString(strings.ToUpper(text)); m != "" {
		return SanitizeGSTIN(m)
	}
	return ""
}

// SanitizeGSTIN strips separators and upper-cases a candidate. It returns ""
// unless exactly 15 characters remain. A 2 read at index 13 is corrected to Z.
func SanitizeGSTIN(candidate string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return -1
	}, candidate)

	if len(cleaned) != gstinLength {
		return ""
	}
	if cleaned[gstinZIndex] == '2' {
		cleaned = cleaned[:gstinZIndex] + "Z" + cleaned[gstinZIndex+1:]
	}
	return cleaned
}

// FindHSN returns the first labeled 4-8 digit HSN code in text
func FindHSN(text string) string {
	if m := hsnPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// IsIndianGSTIN reports whether gstin has the Indian GSTIN shape: 15
// characters starting with a two digit state code
func IsIndianGSTIN(gstin string) bool {
	return len(gstin) == gstinLength && isDigit(gstin[0]) && isDigit(gstin[1])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
