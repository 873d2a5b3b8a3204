// Package config holds the read-only enrichment settings loaded once at
// startup. Every input is defaulted independently; a missing or malformed
// file never stops the process.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"go.yaml.in/yaml/v3"
)

// DefaultCategory is the sentinel category; it is always a valid category
const DefaultCategory = "Uncategorized"

// DefaultConfidenceThreshold is the minimum overall confidence for approval
const DefaultConfidenceThreshold = 90

// Rule maps a category to the merchant-name keywords that select it
type Rule struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// Settings is the enrichment configuration
type Settings struct {
	ConfidenceThreshold int                `json:"confidence_threshold"`
	Weights             map[string]float64 `json:"weights"`
	// Rules are evaluated in order; the first matching category wins
	Rules      []Rule   `json:"rules"`
	Categories []string `json:"categories"`
}

// Paths names the optional configuration files
type Paths struct {
	Weights    string
	Rules      string
	Categories string
}

// DefaultWeights returns the built-in confidence weights
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"total":            0.4,
		"merchant_name":    0.25,
		"gstin":            0.2,
		"transaction_date": 0.15,
	}
}

// DefaultCategories returns the built-in valid category list
func DefaultCategories() []string {
	return []string{
		"Food Cost",
		"Utilities",
		"Travel",
		"Office Supplies",
		"Rent",
		"Repairs & Maintenance",
		"Professional Fees",
		DefaultCategory,
	}
}

// DefaultRules returns the built-in category overrides
func DefaultRules() []Rule {
	return []Rule{
		{Category: "Utilities", Keywords: []string{"Electricity", "Power", "Water Board", "Telecom", "Broadband"}},
		{Category: "Travel", Keywords: []string{"Airlines", "Railway", "Uber", "Ola Cabs", "Hotel"}},
		{Category: "Food Cost", Keywords: []string{"Restaurant", "Cafe", "Bakery", "Foods", "Sweets"}},
		{Category: "Office Supplies", Keywords: []string{"Stationery", "Stationers", "Xerox"}},
	}
}

// Default returns the complete built-in settings
func Default() Settings {
	return Settings{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		Weights:             DefaultWeights(),
		Rules:               DefaultRules(),
		Categories:          DefaultCategories(),
	}
}

// IsValidCategory reports whether category is a member of the configured set
func (s Settings) IsValidCategory(category string) bool {
	return slices.Contains(s.Categories, category)
}

// Load builds Settings from the given files and threshold. Each part falls
// back to its default independently, with a diagnostic logged.
func Load(paths Paths, threshold int, logger *slog.Logger) Settings {
	if logger == nil {
		logger = slog.Default()
	}

	settings := Settings{
		ConfidenceThreshold: threshold,
		Weights:             DefaultWeights(),
		Rules:               DefaultRules(),
		Categories:          DefaultCategories(),
	}

	if threshold < 0 || threshold > 100 {
		logger.Warn("Invalid confidence threshold, using default", "threshold", threshold, "default", DefaultConfidenceThreshold)
		settings.ConfidenceThreshold = DefaultConfidenceThreshold
	}

	if paths.Weights != "" {
		weights, err := LoadWeights(paths.Weights)
		if err != nil {
			logger.Warn("Could not load confidence weights, using defaults", "path", paths.Weights, "error", err)
		} else {
			settings.Weights = weights
		}
	}

	if paths.Categories != "" {
		categories, err := LoadCategories(paths.Categories)
		if err != nil {
			logger.Warn("Could not load categories, using defaults", "path", paths.Categories, "error", err)
		} else {
			settings.Categories = categories
		}
	}
	if !slices.Contains(settings.Categories, DefaultCategory) {
		settings.Categories = append(settings.Categories, DefaultCategory)
	}

	if paths.Rules != "" {
		rules, err := LoadRules(paths.Rules)
		if err != nil {
			logger.Warn("Could not load category rules, using defaults", "path", paths.Rules, "error", err)
		} else {
			settings.Rules = rules
		}
	}

	// A rule may only resolve to a valid category
	kept := settings.Rules[:0:0]
	for _, rule := range settings.Rules {
		if !settings.IsValidCategory(rule.Category) {
			logger.Warn("Dropping rule for unknown category", "category", rule.Category)
			continue
		}
		kept = append(kept, rule)
	}
	settings.Rules = kept

	return settings
}

// LoadWeights reads a field name -> weight mapping
func LoadWeights(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading weights file: %w", err)
	}

	var raw map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing weights file: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("weights file is empty")
	}

	weights := make(map[string]float64, len(raw))
	for name, weight := range raw {
		if weight < 0 {
			return nil, fmt.Errorf("negative weight for %q", name)
		}
		weights[strings.TrimSpace(name)] = weight
	}
	return weights, nil
}

// LoadCategories reads the ordered list of valid categories
func LoadCategories(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading categories file: %w", err)
	}

	var raw []string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing categories file: %w", err)
	}

	categories := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" || slices.Contains(categories, c) {
			continue
		}
		categories = append(categories, c)
	}
	if len(categories) == 0 {
		return nil, errors.New("categories file is empty")
	}
	return categories, nil
}

// LoadRules reads the category -> keywords mapping, preserving the order in
// which categories appear in the file
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) ([]Rule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("rules file is empty")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("rules file must be a mapping, line %d", root.Line)
	}

	rules := make([]Rule, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]

		var keywords []string
		switch value.Kind {
		case yaml.SequenceNode:
			if err := value.Decode(&keywords); err != nil {
				return nil, fmt.Errorf("rule %q: %w", key.Value, err)
			}
		case yaml.ScalarNode:
			keywords = []string{value.Value}
		default:
			return nil, fmt.Errorf("rule %q: keywords must be a list, line %d", key.Value, value.Line)
		}

		rule := Rule{Category: strings.TrimSpace(key.Value)}
		for _, kw := range keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				rule.Keywords = append(rule.Keywords, kw)
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
