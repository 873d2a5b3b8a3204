package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/receipt-enricher/internal/config"
	"github.com/zombor/receipt-enricher/internal/llm"
)

// Categorizer assigns an expense category using the configured rules first
// and the optional AI completer second
type Categorizer struct {
	rules      []config.Rule
	categories []string
	completer  llm.Completer
	logger     *slog.Logger
}

// NewCategorizer creates a Categorizer. completer may be nil, in which case
// unmatched receipts get the default category.
func NewCategorizer(settings config.Settings, completer llm.Completer, logger *slog.Logger) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{
		rules:      settings.Rules,
		categories: settings.Categories,
		completer:  completer,
		logger:     logger,
	}
}

// Categorize returns a member of the valid category set. It never fails.
func (c *Categorizer) Categorize(ctx context.Context, merchant string, items []string) string {
	if category, ok := c.matchRule(merchant); ok {
		return category
	}

	if c.completer == nil {
		return config.DefaultCategory
	}

	response, err := c.completer.Complete(ctx, c.buildPrompt(merchant, items))
	if err != nil {
		c.logger.Warn("AI categorization failed, using default category", "merchant", merchant, "error", err)
		return config.DefaultCategory
	}

	category := strings.Trim(strings.TrimSpace(response), "\"'`")
	category = strings.TrimSpace(category)
	if !c.isValid(category) {
		c.logger.Warn("AI returned an unknown category, using default", "merchant", merchant, "response", response)
		return config.DefaultCategory
	}
	return category
}

// matchRule walks the rules in configured order; the first category with a
// keyword contained in the merchant name wins
func (c *Categorizer) matchRule(merchant string) (string, bool) {
	name := strings.ToLower(merchant)
	if name == "" {
		return "", false
	}
	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if keyword != "" && strings.Contains(name, strings.ToLower(keyword)) {
				return rule.Category, true
			}
		}
	}
	return "", false
}

func (c *Categorizer) isValid(category string) bool {
	for _, valid := range c.categories {
		if category == valid {
			return true
		}
	}
	return false
}

func (c *Categorizer) buildPrompt(merchant string, items []string) string {
	if merchant == "" {
		merchant = "Unknown"
	}
	itemList := "None"
	if len(items) > 0 {
		itemList = strings.Join(items, ", ")
	}
	return fmt.Sprintf(categorizePrompt, merchant, itemList, strings.Join(c.categories, ", "))
}

// categorizePrompt is filled with the merchant name, item descriptions and
// the valid categories
const categorizePrompt = `You are an accountant categorizing a business expense from a receipt.

Merchant: %s
Items: %s

Choose exactly one category from this list:
%s

Respond with the category name only, exactly as written in the list. Do not add any other text.`
