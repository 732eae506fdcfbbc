// Package classify turns a raw idea into a structured Intent.
package classify

import (
	"context"
	"strings"

	"ideaforge/internal/domain"
	"ideaforge/internal/jsonx"
	"ideaforge/internal/llm"
)

const systemPrompt = `You are an intent classifier for startup ideas. Return only a JSON object with these exact keys:
{
  "title": "short name for the idea",
  "domain": "industry or vertical",
  "problem_statement": "one sentence describing the problem",
  "user_type": "who the product serves",
  "product_type": "SaaS | Marketplace | MobileApp | API | Hardware | Other",
  "urgency": "low | medium | high"
}
Do not add any other text.`

type Classifier struct {
	LLM   llm.Client
	Model string
}

// Classify sends the idea to the model and parses the structured result.
// A provider failure is returned as an error. Unparseable model output is
// not an error: the intent comes back degraded, carrying the raw text, and
// the caller decides whether to proceed.
func (c Classifier) Classify(ctx context.Context, ideaText string) (domain.Intent, error) {
	out, err := c.LLM.Complete(ctx, c.Model, llm.Prompt{
		System: systemPrompt,
		User:   ideaText,
	})
	if err != nil {
		return domain.Intent{}, err
	}

	var intent domain.Intent
	if err := jsonx.ExtractInto(out, &intent); err != nil {
		return domain.Intent{
			RawOutput: out,
			Error:     "invalid JSON format",
		}, nil
	}
	intent.ProductType = normalizeProductType(intent.ProductType)
	intent.Urgency = normalizeUrgency(intent.Urgency)
	return intent, nil
}

func normalizeProductType(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "saas":
		return domain.ProductSaaS
	case "marketplace":
		return domain.ProductMarketplace
	case "mobileapp", "mobile app":
		return domain.ProductMobileApp
	case "api":
		return domain.ProductAPI
	case "hardware":
		return domain.ProductHardware
	case "":
		return ""
	default:
		return domain.ProductOther
	}
}

func normalizeUrgency(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low", "medium", "high":
		return strings.ToLower(strings.TrimSpace(v))
	default:
		return ""
	}
}
