// Package agents holds the four pipeline analysts. Each agent runs one model
// call, parses a structured artifact out of the reply, persists it, and
// reports progress through the emit callback.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ideaforge/internal/domain"
	"ideaforge/internal/llm"
	"ideaforge/internal/repo"
)

// Update is one progress step inside an agent run. Progress is the percent
// within this agent's phase, not across the whole pipeline. Error is set on
// failure frames (sub-phases error, parse_error, db_error).
type Update struct {
	SubPhase string
	Message  string
	Progress int
	FileURL  string
	Error    string
}

type Emit func(Update)

type Agent interface {
	Name() string
	// Run loads the idea by id, executes the agent, and persists the result.
	// The returned raw message is the stored artifact, used later for the
	// aggregate. Every failure emits its sub-phase frame before returning.
	Run(ctx context.Context, ideaID string, emit Emit) (json.RawMessage, error)
}

// Error identifies which agent and stage failed. Agent failures do not abort
// the pipeline; the orchestrator reports them and moves on.
type Error struct {
	Agent string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Agent, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Deps is the shared wiring for all agents.
type Deps struct {
	Repo       repo.Repo
	LLM        llm.Client
	Model      string
	EmbedModel string
	// ReportsDir is where per-agent report files land. Empty disables
	// report generation.
	ReportsDir string
	Now        func() time.Time
}

func (d Deps) timestamp() string {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func newID() string {
	return uuid.NewString()
}

// fetchIdea loads the idea an agent works on. A missing or unreadable row
// surfaces as a fetch-stage failure.
func (d Deps) fetchIdea(ctx context.Context, agent, ideaID string, emit Emit) (domain.Idea, error) {
	emit(Update{SubPhase: "fetch", Message: "Fetching idea", Progress: 5})
	idea, err := d.Repo.GetIdea(ctx, ideaID)
	if err != nil {
		return domain.Idea{}, fail(emit, "error", 5, "Failed to fetch idea", agent, "fetch", err)
	}
	return idea, nil
}

// fail emits the failure frame for a stage and wraps the cause.
func fail(emit Emit, subPhase string, progress int, msg, agent, stage string, err error) error {
	ferr := &Error{Agent: agent, Stage: stage, Err: err}
	emit(Update{SubPhase: subPhase, Progress: progress, Message: msg, Error: ferr.Error()})
	return ferr
}

// report writes the agent artifact to a JSON file and emits the report
// sub-phases. Failures are logged and swallowed; a missing report never
// fails the agent.
func (d Deps) report(agent, ideaID string, payload any, emit Emit) string {
	if d.ReportsDir == "" {
		return ""
	}
	emit(Update{SubPhase: "report", Message: "Generating report", Progress: 85})
	name := fmt.Sprintf("%s_%s.json", ideaID, strings.ToLower(agent))
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Printf("%s: encode report: %v", agent, err)
		return ""
	}
	if err := os.WriteFile(filepath.Join(d.ReportsDir, name), data, 0o644); err != nil {
		log.Printf("%s: write report: %v", agent, err)
		return ""
	}
	url := "/reports/" + name
	emit(Update{SubPhase: "report_upload", Message: "Report ready", Progress: 95, FileURL: url})
	return url
}

// indexDoc stores a semantic-search document for the agent result. Both the
// embedding call and the insert are best effort.
func (d Deps) indexDoc(ctx context.Context, ideaID, source, title, description string) {
	var embedding []float64
	if d.EmbedModel != "" {
		vec, err := d.LLM.Embed(ctx, d.EmbedModel, title+"\n"+description)
		if err != nil {
			log.Printf("%s: embed: %v", source, err)
		} else {
			embedding = vec
		}
	}
	doc := domain.Doc{
		ID:          newID(),
		IdeaID:      ideaID,
		Source:      source,
		Title:       title,
		Description: description,
		Embedding:   embedding,
		CreatedAt:   d.timestamp(),
	}
	if err := d.Repo.InsertDoc(ctx, doc); err != nil {
		log.Printf("%s: store doc: %v", source, err)
	}
}

func ideaContext(idea domain.Idea) string {
	var sb strings.Builder
	sb.WriteString("Idea: ")
	sb.WriteString(idea.IdeaText)
	intent := idea.Intent
	if intent.Degraded() {
		return sb.String()
	}
	if intent.Title != "" {
		fmt.Fprintf(&sb, "\nTitle: %s", intent.Title)
	}
	if intent.Domain != "" {
		fmt.Fprintf(&sb, "\nDomain: %s", intent.Domain)
	}
	if intent.ProblemStatement != "" {
		fmt.Fprintf(&sb, "\nProblem: %s", intent.ProblemStatement)
	}
	if intent.UserType != "" {
		fmt.Fprintf(&sb, "\nTarget users: %s", intent.UserType)
	}
	if intent.ProductType != "" {
		fmt.Fprintf(&sb, "\nProduct type: %s", intent.ProductType)
	}
	return sb.String()
}
