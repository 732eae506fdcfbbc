package classify

import (
	"context"
	"errors"
	"testing"

	"ideaforge/internal/llm"
)

type stubLLM struct {
	out string
	err error
}

func (s stubLLM) Complete(ctx context.Context, model string, prompt llm.Prompt) (string, error) {
	return s.out, s.err
}

func (s stubLLM) Embed(ctx context.Context, model, input string) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func TestClassifyParsesIntent(t *testing.T) {
	c := Classifier{
		LLM: stubLLM{out: `{
			"title": "PlantPal",
			"domain": "consumer",
			"problem_statement": "People forget to water their houseplants",
			"user_type": "plant owners",
			"product_type": "mobileapp",
			"urgency": "Low"
		}`},
		Model: "test-model",
	}
	intent, err := c.Classify(context.Background(), "an app that reminds me to water my plants")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if intent.Degraded() {
		t.Fatalf("unexpected degraded intent: %+v", intent)
	}
	if intent.Title != "PlantPal" {
		t.Fatalf("title = %q", intent.Title)
	}
	if intent.ProductType != "MobileApp" {
		t.Fatalf("product_type = %q", intent.ProductType)
	}
	if intent.Urgency != "low" {
		t.Fatalf("urgency = %q", intent.Urgency)
	}
}

func TestClassifyFencedOutput(t *testing.T) {
	c := Classifier{LLM: stubLLM{out: "```json\n{\"title\": \"X\", \"product_type\": \"SaaS\"}\n```"}}
	intent, err := c.Classify(context.Background(), "idea")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if intent.ProductType != "SaaS" {
		t.Fatalf("product_type = %q", intent.ProductType)
	}
}

func TestClassifyUnknownProductTypeMapsToOther(t *testing.T) {
	c := Classifier{LLM: stubLLM{out: `{"title": "X", "product_type": "Platform"}`}}
	intent, err := c.Classify(context.Background(), "idea")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if intent.ProductType != "Other" {
		t.Fatalf("product_type = %q", intent.ProductType)
	}
}

func TestClassifyDegradesOnUnparseableOutput(t *testing.T) {
	c := Classifier{LLM: stubLLM{out: "I cannot respond in JSON today."}}
	intent, err := c.Classify(context.Background(), "idea")
	if err != nil {
		t.Fatalf("degraded classification must not error: %v", err)
	}
	if !intent.Degraded() {
		t.Fatalf("expected degraded intent")
	}
	if intent.RawOutput == "" {
		t.Fatalf("expected raw output preserved")
	}
	if intent.Error != "invalid JSON format" {
		t.Fatalf("error = %q", intent.Error)
	}
}

func TestClassifyProviderErrorIsFatal(t *testing.T) {
	provErr := &llm.ProviderError{Op: "complete", Err: errors.New("connection refused")}
	c := Classifier{LLM: stubLLM{err: provErr}}
	_, err := c.Classify(context.Background(), "idea")
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProviderError, got %v", err)
	}
}
