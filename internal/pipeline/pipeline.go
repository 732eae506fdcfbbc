// Package pipeline orchestrates a full idea run: classification, idea
// resolution, the four agents in order, and the DNA aggregate.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"ideaforge/internal/agents"
	"ideaforge/internal/classify"
	"ideaforge/internal/domain"
	"ideaforge/internal/events"
	"ideaforge/internal/repo"
)

const (
	PhaseClassification = "classification"
	PhaseSetup          = "setup"
)

type Request struct {
	IdeaText string
	OwnerID  string
}

// Event is one frame of the run stream. The zero-value fields are omitted on
// the wire so frames stay close to what each step actually reports.
type Event struct {
	Phase    string          `json:"phase,omitempty"`
	SubPhase string          `json:"sub_phase,omitempty"`
	Message  string          `json:"message,omitempty"`
	Progress *int            `json:"progress,omitempty"`
	FileURL  string          `json:"file_url,omitempty"`
	IdeaID   string          `json:"idea_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Done     bool            `json:"done,omitempty"`
}

type Orchestrator struct {
	Repo       repo.Repo
	Log        events.Writer
	Classifier classify.Classifier
	Agents     []agents.Agent
	Now        func() time.Time
}

func (o Orchestrator) timestamp() string {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// send delivers the event to the subscriber and, once an idea row exists,
// appends it to the durable log. Log failures never interrupt the run.
func (o Orchestrator) send(ctx context.Context, emit func(Event), ownerID string, ev Event) {
	emit(ev)
	if ev.IdeaID == "" {
		return
	}
	phase := ev.Phase
	if ev.Done {
		phase = "done"
	}
	rec := domain.ProgressEvent{
		IdeaID:   ev.IdeaID,
		OwnerID:  ownerID,
		Phase:    phase,
		SubPhase: ev.SubPhase,
		Message:  ev.Message,
		Progress: ev.Progress,
		FileURL:  ev.FileURL,
		Error:    ev.Error,
		TS:       o.timestamp(),
	}
	if err := o.Log.Append(ctx, rec); err != nil {
		log.Printf("append progress event: %v", err)
	}
}

// Run executes the full pipeline for one idea and streams progress through
// emit. Classification transport errors and idea persistence errors abort the
// run; a failing agent is reported and the remaining agents still execute.
// The resolved idea ID is returned once known, even on later failure.
func (o Orchestrator) Run(ctx context.Context, req Request, emit func(Event)) (string, error) {
	if req.IdeaText == "" {
		err := errors.New("missing idea text")
		emit(Event{Error: err.Error()})
		return "", err
	}
	if err := ctx.Err(); err != nil {
		emit(Event{Error: err.Error()})
		return "", err
	}

	o.send(ctx, emit, req.OwnerID, Event{Phase: PhaseClassification, Progress: pct(50), Message: "Classifying startup idea"})
	intent, err := o.Classifier.Classify(ctx, req.IdeaText)
	if err != nil {
		emit(Event{Error: err.Error()})
		return "", err
	}
	classifiedMsg := "Classification complete"
	if intent.Degraded() {
		classifiedMsg = "Classification degraded, continuing with raw output"
	}
	intentJSON, _ := json.Marshal(intent)
	o.send(ctx, emit, req.OwnerID, Event{Phase: PhaseClassification, Progress: pct(100), Message: classifiedMsg, Data: intentJSON})

	idea, err := o.resolveIdea(ctx, req, intent)
	if err != nil {
		emit(Event{Error: err.Error()})
		return "", err
	}
	o.send(ctx, emit, req.OwnerID, Event{Phase: PhaseSetup, Message: "Idea ready", IdeaID: idea.ID, Progress: pct(50)})
	o.send(ctx, emit, req.OwnerID, Event{Phase: PhaseSetup, Message: "Idea stored", IdeaID: idea.ID, Progress: pct(100)})

	results := make(map[string]json.RawMessage, len(o.Agents))
	for _, ag := range o.Agents {
		if err := ctx.Err(); err != nil {
			o.send(ctx, emit, req.OwnerID, Event{IdeaID: idea.ID, Error: err.Error()})
			return idea.ID, err
		}
		name := ag.Name()
		o.send(ctx, emit, req.OwnerID, Event{Phase: name, SubPhase: "initializing", Progress: pct(5), Message: "Starting " + name, IdeaID: idea.ID})
		raw, err := ag.Run(ctx, idea.ID, func(u agents.Update) {
			p := u.Progress
			o.send(ctx, emit, req.OwnerID, Event{Phase: name, SubPhase: u.SubPhase, Message: u.Message, Progress: &p, FileURL: u.FileURL, Error: u.Error, IdeaID: idea.ID})
		})
		if err != nil {
			o.send(ctx, emit, req.OwnerID, Event{Phase: name, IdeaID: idea.ID, Error: fmt.Sprintf("%s failed: %v", name, err)})
			continue
		}
		results[name] = raw
		o.send(ctx, emit, req.OwnerID, Event{Phase: name, Message: name + " completed", Progress: pct(100), IdeaID: idea.ID})
	}

	dna := domain.DNARecord{
		ID:         uuid.NewString(),
		IdeaID:     idea.ID,
		Validation: results["BizMind"],
		Branding:   results["BrandPulse"],
		Tech:       results["CodeWeaver"],
		Launch:     results["LaunchLens"],
		CreatedAt:  o.timestamp(),
	}
	if err := o.Repo.InsertDNA(ctx, dna); err != nil {
		log.Printf("store dna aggregate: %v", err)
	}

	o.send(ctx, emit, req.OwnerID, Event{Done: true, Message: "All agents completed", IdeaID: idea.ID})
	return idea.ID, nil
}

// resolveIdea reuses an existing idea with the same content hash for this
// owner, otherwise inserts a fresh row with the new classification.
func (o Orchestrator) resolveIdea(ctx context.Context, req Request, intent domain.Intent) (domain.Idea, error) {
	hash := repo.HashIdea(req.IdeaText)
	idea, err := o.Repo.FindIdeaByHash(ctx, req.OwnerID, hash)
	if err == nil {
		return idea, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Idea{}, err
	}
	idea = domain.Idea{
		ID:        uuid.NewString(),
		OwnerID:   req.OwnerID,
		IdeaText:  req.IdeaText,
		DNAHash:   hash,
		Intent:    intent,
		CreatedAt: o.timestamp(),
	}
	if err := o.Repo.InsertIdea(ctx, idea); err != nil {
		return domain.Idea{}, fmt.Errorf("store idea: %w", err)
	}
	return idea, nil
}

func pct(v int) *int {
	return &v
}
