package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ideaforge/internal/domain"
	"ideaforge/internal/jsonx"
	"ideaforge/internal/llm"
)

const bizMindSystem = `You are BizMind, a market validation analyst.
Return ONLY valid JSON in the format:
{
  "target_customers": ["..."],
  "competitors": [{"name": "", "url": ""}],
  "tam_estimate": number,
  "risks": ["..."],
  "insights": "string",
  "recommendations": ["..."],
  "validation_score": number
}`

// BizMind validates the market for an idea: customers, competitors, TAM,
// risks, and a 0-100 validation score.
type BizMind struct {
	Deps
}

func (BizMind) Name() string { return "BizMind" }

func (a BizMind) Run(ctx context.Context, ideaID string, emit Emit) (json.RawMessage, error) {
	idea, err := a.fetchIdea(ctx, a.Name(), ideaID, emit)
	if err != nil {
		return nil, err
	}
	emit(Update{SubPhase: "prep", Message: "Preparing market analysis prompt", Progress: 10})

	prompt := llm.Prompt{System: bizMindSystem, User: ideaContext(idea)}

	emit(Update{SubPhase: "analysis", Message: "Analyzing market and competitors", Progress: 25})
	out, err := a.LLM.Complete(ctx, a.Model, prompt)
	if err != nil {
		return nil, fail(emit, "error", 30, "Model call failed", a.Name(), "analysis", err)
	}

	emit(Update{SubPhase: "parse", Message: "Parsing model output", Progress: 55})
	var parsed struct {
		TargetCustomers []string            `json:"target_customers"`
		Competitors     []domain.Competitor `json:"competitors"`
		TAMEstimate     float64             `json:"tam_estimate"`
		Risks           []string            `json:"risks"`
		Insights        string              `json:"insights"`
		Recommendations []string            `json:"recommendations"`
		ValidationScore float64             `json:"validation_score"`
	}
	if err := jsonx.ExtractInto(out, &parsed); err != nil {
		return nil, fail(emit, "parse_error", 60, "Failed to parse model output", a.Name(), "parse", err)
	}

	emit(Update{SubPhase: "store", Message: "Storing validation results", Progress: 70})
	res := domain.ValidationResult{
		ID:              newID(),
		IdeaID:          idea.ID,
		TargetCustomers: parsed.TargetCustomers,
		Competitors:     parsed.Competitors,
		TAMEstimate:     parsed.TAMEstimate,
		Risks:           parsed.Risks,
		Insights:        parsed.Insights,
		Recommendations: parsed.Recommendations,
		ValidationScore: parsed.ValidationScore,
		RawOutput:       out,
		CreatedAt:       a.timestamp(),
	}
	if err := a.Repo.InsertValidation(ctx, res); err != nil {
		return nil, fail(emit, "db_error", 75, "Failed to store validation results", a.Name(), "store", err)
	}

	fileURL := a.report(a.Name(), idea.ID, res, emit)

	summary := fmt.Sprintf("%s %s", parsed.Insights, strings.Join(parsed.Recommendations, ", "))
	a.indexDoc(ctx, idea.ID, a.Name(), idea.IdeaText, summary)

	emit(Update{SubPhase: "complete", Message: "BizMind complete", Progress: 100, FileURL: fileURL})
	return json.Marshal(res)
}
