package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"ideaforge/internal/agents"
	"ideaforge/internal/classify"
	"ideaforge/internal/db"
	"ideaforge/internal/events"
	"ideaforge/internal/llm"
	"ideaforge/internal/migrate"
	"ideaforge/internal/pipeline"
	"ideaforge/internal/repo"
)

// scriptedLLM answers by matching a fragment of the system prompt, so one
// client can play the classifier and all four agents in a single run.
type scriptedLLM struct {
	answers map[string]string
	errs    map[string]error
}

func (s scriptedLLM) Complete(ctx context.Context, model string, prompt llm.Prompt) (string, error) {
	for frag, err := range s.errs {
		if strings.Contains(prompt.System, frag) {
			return "", err
		}
	}
	for frag, out := range s.answers {
		if strings.Contains(prompt.System, frag) {
			return out, nil
		}
	}
	return "", errors.New("no scripted answer")
}

func (s scriptedLLM) Embed(ctx context.Context, model, input string) ([]float64, error) {
	return []float64{0.5}, nil
}

const (
	intentOut = `{"title": "PlantPal", "domain": "consumer", "problem_statement": "plants die",
		"user_type": "plant owners", "product_type": "MobileApp", "urgency": "low"}`
	bizOut = `{"target_customers": ["plant owners"], "competitors": [], "tam_estimate": 1000,
		"risks": [], "insights": "ok", "recommendations": [], "validation_score": 60}`
	brandOut = `{"brand_name": "Verdant", "tagline": "t", "tone": "warm",
		"color_palette": ["#2E7D32"], "brand_story": "s", "logo_concept": "l"}`
	techOut = `{"recommended_stack": ["Go"], "architecture": "monolith",
		"api_endpoints": [], "mvp_features": ["reminders"], "integration_notes": ""}`
	launchOut = `{"pricing_model": "freemium", "marketing_channels": [],
		"gtm_strategy": "g", "investor_pitch": "p", "growth_forecast": "f"}`
)

func goodAnswers() map[string]string {
	return map[string]string{
		"intent classifier":       intentOut,
		"market validation":       bizOut,
		"brand identity":          brandOut,
		"architecture advisor":    techOut,
		"go-to-market strategist": launchOut,
	}
}

func newOrchestrator(t *testing.T, client llm.Client) (pipeline.Orchestrator, repo.Repo) {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	deps := func() agents.Deps {
		return agents.Deps{Repo: r, LLM: client, Model: "m", EmbedModel: "e"}
	}
	orch := pipeline.Orchestrator{
		Repo:       r,
		Log:        events.Writer{DB: conn},
		Classifier: classify.Classifier{LLM: client, Model: "m"},
		Agents: []agents.Agent{
			agents.BizMind{Deps: deps()},
			agents.BrandPulse{Deps: deps()},
			agents.CodeWeaver{Deps: deps()},
			agents.LaunchLens{Deps: deps()},
		},
		Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
	return orch, r
}

func collect(t *testing.T, orch pipeline.Orchestrator, idea string) (string, []pipeline.Event, error) {
	t.Helper()
	var evs []pipeline.Event
	id, err := orch.Run(context.Background(), pipeline.Request{IdeaText: idea, OwnerID: "alice"},
		func(ev pipeline.Event) { evs = append(evs, ev) })
	return id, evs, err
}

func TestRunFullPipeline(t *testing.T) {
	orch, r := newOrchestrator(t, scriptedLLM{answers: goodAnswers()})
	id, evs, err := collect(t, orch, "a plant care reminder app")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if id == "" {
		t.Fatalf("missing idea id")
	}

	if len(evs) < 4 {
		t.Fatalf("too few events: %d", len(evs))
	}
	if evs[0].Phase != pipeline.PhaseClassification || *evs[0].Progress != 50 {
		t.Fatalf("first event = %+v", evs[0])
	}
	if evs[1].Phase != pipeline.PhaseClassification || *evs[1].Progress != 100 || evs[1].Data == nil {
		t.Fatalf("second event = %+v", evs[1])
	}
	if evs[2].Phase != pipeline.PhaseSetup || evs[2].Message != "Idea ready" {
		t.Fatalf("third event = %+v", evs[2])
	}
	if evs[3].Phase != pipeline.PhaseSetup || evs[3].Message != "Idea stored" {
		t.Fatalf("fourth event = %+v", evs[3])
	}

	last := evs[len(evs)-1]
	if !last.Done || last.IdeaID != id {
		t.Fatalf("terminal event = %+v", last)
	}

	// Each agent opens with initializing and closes with a completed frame.
	for _, name := range []string{"BizMind", "BrandPulse", "CodeWeaver", "LaunchLens"} {
		var init, done bool
		for _, ev := range evs {
			if ev.Phase != name {
				continue
			}
			if ev.SubPhase == "initializing" {
				init = true
			}
			if ev.Message == name+" completed" {
				done = true
			}
			if ev.Error != "" {
				t.Fatalf("%s error frame: %+v", name, ev)
			}
		}
		if !init || !done {
			t.Fatalf("%s frames incomplete (init=%v done=%v)", name, init, done)
		}
	}

	ctx := context.Background()
	dna, err := r.GetDNA(ctx, id)
	if err != nil {
		t.Fatalf("get dna: %v", err)
	}
	for slot, raw := range map[string]json.RawMessage{
		"validation": dna.Validation, "branding": dna.Branding,
		"tech": dna.Tech, "launch": dna.Launch,
	} {
		if len(raw) == 0 {
			t.Fatalf("dna slot %s empty", slot)
		}
	}

	idea, err := r.GetIdea(ctx, id)
	if err != nil {
		t.Fatalf("get idea: %v", err)
	}
	if idea.Intent.Title != "PlantPal" || idea.Intent.ProductType != "MobileApp" {
		t.Fatalf("intent = %+v", idea.Intent)
	}
}

func TestRunReusesIdeaForSameOwnerAndText(t *testing.T) {
	orch, r := newOrchestrator(t, scriptedLLM{answers: goodAnswers()})
	first, _, err := collect(t, orch, "same idea twice")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, _, err := collect(t, orch, "same idea twice")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first != second {
		t.Fatalf("expected idea reuse, got %q then %q", first, second)
	}
	ideas, err := r.ListIdeas(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ideas) != 1 {
		t.Fatalf("ideas = %d, want 1", len(ideas))
	}
}

func TestRunContinuesPastAgentFailure(t *testing.T) {
	answers := goodAnswers()
	answers["brand identity"] = "sorry, no JSON today"
	orch, r := newOrchestrator(t, scriptedLLM{answers: answers})
	id, evs, err := collect(t, orch, "an idea with a flaky agent")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var parseErr, phaseErr bool
	for _, ev := range evs {
		if ev.Phase != "BrandPulse" || ev.Error == "" {
			continue
		}
		switch ev.SubPhase {
		case "parse_error":
			parseErr = true
		case "":
			phaseErr = true
			if !strings.Contains(ev.Error, "BrandPulse failed") {
				t.Fatalf("error message = %q", ev.Error)
			}
		}
	}
	if !parseErr {
		t.Fatalf("expected parse_error frame on the stream")
	}
	if !phaseErr {
		t.Fatalf("expected phase-level BrandPulse error frame")
	}
	if last := evs[len(evs)-1]; !last.Done {
		t.Fatalf("terminal event = %+v", last)
	}

	// The failure stage must survive in the durable log, not just the stream.
	log, err := r.ListProgress(context.Background(), id)
	if err != nil {
		t.Fatalf("list progress: %v", err)
	}
	var logged bool
	for _, rec := range log {
		if rec.Phase == "BrandPulse" && rec.SubPhase == "parse_error" && rec.Error != "" {
			logged = true
		}
	}
	if !logged {
		t.Fatalf("parse_error frame missing from durable log")
	}

	dna, err := r.GetDNA(context.Background(), id)
	if err != nil {
		t.Fatalf("get dna: %v", err)
	}
	if len(dna.Branding) != 0 {
		t.Fatalf("branding slot should be empty, got %s", dna.Branding)
	}
	if len(dna.Validation) == 0 || len(dna.Tech) == 0 || len(dna.Launch) == 0 {
		t.Fatalf("other slots missing: %+v", dna)
	}
}

func TestRunAbortsOnClassifierProviderError(t *testing.T) {
	provErr := &llm.ProviderError{Op: "complete", Err: errors.New("upstream 500")}
	orch, r := newOrchestrator(t, scriptedLLM{
		errs: map[string]error{"intent classifier": provErr},
	})
	id, evs, err := collect(t, orch, "doomed idea")
	if err == nil {
		t.Fatalf("expected error")
	}
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProviderError, got %v", err)
	}
	if id != "" {
		t.Fatalf("no idea id expected, got %q", id)
	}
	last := evs[len(evs)-1]
	if last.Error == "" {
		t.Fatalf("expected error frame, got %+v", last)
	}
	ideas, _ := r.ListIdeas(context.Background(), "alice")
	if len(ideas) != 0 {
		t.Fatalf("no idea row expected, got %d", len(ideas))
	}
}

func TestRunProceedsWithDegradedClassification(t *testing.T) {
	answers := goodAnswers()
	answers["intent classifier"] = "I cannot produce JSON right now."
	orch, r := newOrchestrator(t, scriptedLLM{answers: answers})
	id, evs, err := collect(t, orch, "an idea the classifier mangles")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if evs[1].Message != "Classification degraded, continuing with raw output" {
		t.Fatalf("second event = %+v", evs[1])
	}
	idea, err := r.GetIdea(context.Background(), id)
	if err != nil {
		t.Fatalf("get idea: %v", err)
	}
	if !idea.Intent.Degraded() || idea.Intent.RawOutput == "" {
		t.Fatalf("intent = %+v", idea.Intent)
	}
	if last := evs[len(evs)-1]; !last.Done {
		t.Fatalf("terminal event = %+v", last)
	}
}

func TestRunRejectsEmptyIdea(t *testing.T) {
	orch, _ := newOrchestrator(t, scriptedLLM{answers: goodAnswers()})
	id, evs, err := collect(t, orch, "")
	if err == nil || id != "" {
		t.Fatalf("want error and no id, got %q %v", id, err)
	}
	if len(evs) != 1 || evs[0].Error == "" {
		t.Fatalf("events = %+v", evs)
	}
}

func TestRunPersistsDurableLog(t *testing.T) {
	orch, r := newOrchestrator(t, scriptedLLM{answers: goodAnswers()})
	id, _, err := collect(t, orch, "an idea with a durable trail")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	log, err := r.ListProgress(context.Background(), id)
	if err != nil {
		t.Fatalf("list progress: %v", err)
	}
	if len(log) == 0 {
		t.Fatalf("empty durable log")
	}
	// Classification happens before the idea row exists; those frames are
	// stream-only.
	for _, rec := range log {
		if rec.Phase == pipeline.PhaseClassification {
			t.Fatalf("classification frame persisted: %+v", rec)
		}
		if rec.OwnerID != "alice" {
			t.Fatalf("owner = %q", rec.OwnerID)
		}
	}
	if log[0].Phase != pipeline.PhaseSetup {
		t.Fatalf("first record = %+v", log[0])
	}
	if last := log[len(log)-1]; last.Phase != "done" {
		t.Fatalf("last record = %+v", last)
	}
}
