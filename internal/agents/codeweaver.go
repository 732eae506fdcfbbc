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

const codeWeaverSystem = `You are CodeWeaver, a technical architecture advisor.
Return ONLY valid JSON in the format:
{
  "recommended_stack": ["..."],
  "architecture": "string",
  "api_endpoints": ["..."],
  "mvp_features": ["..."],
  "integration_notes": "string"
}`

// CodeWeaver plans the technical build: stack, architecture, API surface,
// and the MVP feature cut.
type CodeWeaver struct {
	Deps
}

func (CodeWeaver) Name() string { return "CodeWeaver" }

func (a CodeWeaver) Run(ctx context.Context, ideaID string, emit Emit) (json.RawMessage, error) {
	idea, err := a.fetchIdea(ctx, a.Name(), ideaID, emit)
	if err != nil {
		return nil, err
	}
	emit(Update{SubPhase: "prep", Message: "Preparing architecture prompt", Progress: 10})

	prompt := llm.Prompt{System: codeWeaverSystem, User: ideaContext(idea)}

	emit(Update{SubPhase: "analysis", Message: "Designing technical architecture", Progress: 25})
	out, err := a.LLM.Complete(ctx, a.Model, prompt)
	if err != nil {
		return nil, fail(emit, "error", 30, "Model call failed", a.Name(), "analysis", err)
	}

	emit(Update{SubPhase: "parse", Message: "Parsing model output", Progress: 55})
	var parsed struct {
		RecommendedStack []string `json:"recommended_stack"`
		Architecture     string   `json:"architecture"`
		APIEndpoints     []string `json:"api_endpoints"`
		MVPFeatures      []string `json:"mvp_features"`
		IntegrationNotes string   `json:"integration_notes"`
	}
	if err := jsonx.ExtractInto(out, &parsed); err != nil {
		return nil, fail(emit, "parse_error", 60, "Failed to parse model output", a.Name(), "parse", err)
	}

	emit(Update{SubPhase: "store", Message: "Storing tech results", Progress: 70})
	res := domain.TechResult{
		ID:               newID(),
		IdeaID:           idea.ID,
		RecommendedStack: parsed.RecommendedStack,
		Architecture:     parsed.Architecture,
		APIEndpoints:     parsed.APIEndpoints,
		MVPFeatures:      parsed.MVPFeatures,
		IntegrationNotes: parsed.IntegrationNotes,
		RawOutput:        out,
		CreatedAt:        a.timestamp(),
	}
	if err := a.Repo.InsertTech(ctx, res); err != nil {
		return nil, fail(emit, "db_error", 75, "Failed to store tech results", a.Name(), "store", err)
	}

	fileURL := a.report(a.Name(), idea.ID, res, emit)

	summary := fmt.Sprintf("%s. Stack: %s", parsed.Architecture, strings.Join(parsed.RecommendedStack, ", "))
	a.indexDoc(ctx, idea.ID, a.Name(), idea.IdeaText, summary)

	emit(Update{SubPhase: "complete", Message: "CodeWeaver complete", Progress: 100, FileURL: fileURL})
	return json.Marshal(res)
}
