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

const launchLensSystem = `You are LaunchLens, a go-to-market strategist.
Return ONLY valid JSON in the format:
{
  "pricing_model": "string",
  "marketing_channels": ["..."],
  "gtm_strategy": "string",
  "investor_pitch": "string",
  "growth_forecast": "string"
}`

// LaunchLens drafts the go-to-market plan: pricing, channels, pitch.
type LaunchLens struct {
	Deps
}

func (LaunchLens) Name() string { return "LaunchLens" }

func (a LaunchLens) Run(ctx context.Context, ideaID string, emit Emit) (json.RawMessage, error) {
	idea, err := a.fetchIdea(ctx, a.Name(), ideaID, emit)
	if err != nil {
		return nil, err
	}
	emit(Update{SubPhase: "prep", Message: "Preparing launch strategy prompt", Progress: 10})

	prompt := llm.Prompt{System: launchLensSystem, User: ideaContext(idea)}

	emit(Update{SubPhase: "analysis", Message: "Drafting go-to-market strategy", Progress: 25})
	out, err := a.LLM.Complete(ctx, a.Model, prompt)
	if err != nil {
		return nil, fail(emit, "error", 30, "Model call failed", a.Name(), "analysis", err)
	}

	emit(Update{SubPhase: "parse", Message: "Parsing model output", Progress: 55})
	var parsed struct {
		PricingModel      string   `json:"pricing_model"`
		MarketingChannels []string `json:"marketing_channels"`
		GTMStrategy       string   `json:"gtm_strategy"`
		InvestorPitch     string   `json:"investor_pitch"`
		GrowthForecast    string   `json:"growth_forecast"`
	}
	if err := jsonx.ExtractInto(out, &parsed); err != nil {
		return nil, fail(emit, "parse_error", 60, "Failed to parse model output", a.Name(), "parse", err)
	}

	emit(Update{SubPhase: "store", Message: "Storing launch results", Progress: 70})
	res := domain.LaunchResult{
		ID:                newID(),
		IdeaID:            idea.ID,
		PricingModel:      parsed.PricingModel,
		MarketingChannels: parsed.MarketingChannels,
		GTMStrategy:       parsed.GTMStrategy,
		InvestorPitch:     parsed.InvestorPitch,
		GrowthForecast:    parsed.GrowthForecast,
		RawOutput:         out,
		CreatedAt:         a.timestamp(),
	}
	if err := a.Repo.InsertLaunch(ctx, res); err != nil {
		return nil, fail(emit, "db_error", 75, "Failed to store launch results", a.Name(), "store", err)
	}

	fileURL := a.report(a.Name(), idea.ID, res, emit)

	summary := fmt.Sprintf("%s. Channels: %s", parsed.GTMStrategy, strings.Join(parsed.MarketingChannels, ", "))
	a.indexDoc(ctx, idea.ID, a.Name(), idea.IdeaText, summary)

	emit(Update{SubPhase: "complete", Message: "LaunchLens complete", Progress: 100, FileURL: fileURL})
	return json.Marshal(res)
}
