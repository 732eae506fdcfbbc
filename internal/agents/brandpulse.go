package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"ideaforge/internal/domain"
	"ideaforge/internal/jsonx"
	"ideaforge/internal/llm"
)

const brandPulseSystem = `You are BrandPulse, a brand identity strategist.
Return ONLY valid JSON in the format:
{
  "brand_name": "string",
  "tagline": "string",
  "tone": "string",
  "color_palette": ["#hex", "#hex"],
  "brand_story": "string",
  "logo_concept": "string"
}`

// BrandPulse proposes a brand identity: name, tagline, tone, palette, story.
type BrandPulse struct {
	Deps
}

func (BrandPulse) Name() string { return "BrandPulse" }

func (a BrandPulse) Run(ctx context.Context, ideaID string, emit Emit) (json.RawMessage, error) {
	idea, err := a.fetchIdea(ctx, a.Name(), ideaID, emit)
	if err != nil {
		return nil, err
	}
	emit(Update{SubPhase: "prep", Message: "Preparing branding prompt", Progress: 10})

	prompt := llm.Prompt{System: brandPulseSystem, User: ideaContext(idea)}

	emit(Update{SubPhase: "analysis", Message: "Designing brand identity", Progress: 25})
	out, err := a.LLM.Complete(ctx, a.Model, prompt)
	if err != nil {
		return nil, fail(emit, "error", 30, "Model call failed", a.Name(), "analysis", err)
	}

	emit(Update{SubPhase: "parse", Message: "Parsing model output", Progress: 55})
	var parsed struct {
		BrandName    string   `json:"brand_name"`
		Tagline      string   `json:"tagline"`
		Tone         string   `json:"tone"`
		ColorPalette []string `json:"color_palette"`
		BrandStory   string   `json:"brand_story"`
		LogoConcept  string   `json:"logo_concept"`
	}
	if err := jsonx.ExtractInto(out, &parsed); err != nil {
		return nil, fail(emit, "parse_error", 60, "Failed to parse model output", a.Name(), "parse", err)
	}

	emit(Update{SubPhase: "store", Message: "Storing branding results", Progress: 70})
	res := domain.BrandingResult{
		ID:           newID(),
		IdeaID:       idea.ID,
		BrandName:    parsed.BrandName,
		Tagline:      parsed.Tagline,
		Tone:         parsed.Tone,
		ColorPalette: parsed.ColorPalette,
		BrandStory:   parsed.BrandStory,
		LogoConcept:  parsed.LogoConcept,
		RawOutput:    out,
		CreatedAt:    a.timestamp(),
	}
	if err := a.Repo.InsertBranding(ctx, res); err != nil {
		return nil, fail(emit, "db_error", 75, "Failed to store branding results", a.Name(), "store", err)
	}

	fileURL := a.report(a.Name(), idea.ID, res, emit)

	summary := fmt.Sprintf("%s: %s. %s", parsed.BrandName, parsed.Tagline, parsed.BrandStory)
	a.indexDoc(ctx, idea.ID, a.Name(), idea.IdeaText, summary)

	emit(Update{SubPhase: "complete", Message: "BrandPulse complete", Progress: 100, FileURL: fileURL})
	return json.Marshal(res)
}
