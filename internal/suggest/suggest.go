// Package suggest proposes an expense category for a free-text description.
//
// A Suggester may fail; Service wraps one and never does, degrading to
// CategoryOther so expense entry is never blocked.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"jizhang/internal/core"
)

// Suggester returns a category label for description. The label is not guaranteed to be known.
type Suggester interface {
	Suggest(ctx context.Context, description string) (core.Category, error)
}

// SuggesterFunc adapts a function to the Suggester interface.
type SuggesterFunc func(ctx context.Context, description string) (core.Category, error)

func (f SuggesterFunc) Suggest(ctx context.Context, description string) (core.Category, error) {
	return f(ctx, description)
}

// Prompt builds the single-shot instruction sent to the language model.
func Prompt(description string) string {
	labels := make([]string, len(core.Categories))
	for i, c := range core.Categories {
		labels[i] = string(c)
	}
	return fmt.Sprintf("请根据以下费用描述，从以下类别中选择一个最合适的费用类别：%s。\n\n费用描述：%s\n\n建议类别：",
		strings.Join(labels, "、"), description)
}

// parseAnswer extracts a category from model output, which is either the JSON object
// {"category": "..."} or bare text.
func parseAnswer(text string) core.Category {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var out struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(text), &out); err == nil && out.Category != "" {
		return core.Category(strings.TrimSpace(out.Category))
	}

	text = strings.Trim(text, " \t\r\n\"'“”「」。.")
	if c, ok := core.ParseCategory(text); ok {
		return c
	}
	// Answers like "建议类别：餐饮" still name a single known label.
	var found []core.Category
	for _, c := range core.Categories {
		if strings.Contains(text, string(c)) {
			found = append(found, c)
		}
	}
	if len(found) == 1 {
		return found[0]
	}
	return core.Category(text)
}
