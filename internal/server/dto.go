package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"ideaforge/internal/domain"
	"ideaforge/internal/repo"
)

type IdeaResponse struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	IdeaText  string        `json:"idea_text"`
	DNAHash   string        `json:"dna_hash"`
	Intent    domain.Intent `json:"intent"`
	CreatedAt string        `json:"created_at"`
}

type ResultsResponse struct {
	IdeaID     string                   `json:"idea_id"`
	Validation *domain.ValidationResult `json:"validation,omitempty"`
	Branding   *domain.BrandingResult   `json:"branding,omitempty"`
	Tech       *domain.TechResult       `json:"tech,omitempty"`
	Launch     *domain.LaunchResult     `json:"launch,omitempty"`
}

type DNAResponse struct {
	ID         string          `json:"id"`
	IdeaID     string          `json:"idea_id"`
	Validation json.RawMessage `json:"validation,omitempty"`
	Branding   json.RawMessage `json:"branding,omitempty"`
	Tech       json.RawMessage `json:"tech,omitempty"`
	Launch     json.RawMessage `json:"launch,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

type LogEntry struct {
	ID       int64  `json:"id"`
	Phase    string `json:"phase"`
	SubPhase string `json:"sub_phase,omitempty"`
	Message  string `json:"message,omitempty"`
	Progress *int   `json:"progress,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	Error    string `json:"error,omitempty"`
	TS       string `json:"ts"`
}

func ideaResponse(i domain.Idea) IdeaResponse {
	return IdeaResponse{
		ID:        i.ID,
		OwnerID:   i.OwnerID,
		IdeaText:  i.IdeaText,
		DNAHash:   i.DNAHash,
		Intent:    i.Intent,
		CreatedAt: i.CreatedAt,
	}
}

func mapIdeas(items []domain.Idea) []IdeaResponse {
	res := make([]IdeaResponse, 0, len(items))
	for _, i := range items {
		res = append(res, ideaResponse(i))
	}
	return res
}

func dnaResponse(d domain.DNARecord) DNAResponse {
	return DNAResponse{
		ID:         d.ID,
		IdeaID:     d.IdeaID,
		Validation: d.Validation,
		Branding:   d.Branding,
		Tech:       d.Tech,
		Launch:     d.Launch,
		CreatedAt:  d.CreatedAt,
	}
}

func mapLogs(items []domain.ProgressEvent) []LogEntry {
	res := make([]LogEntry, 0, len(items))
	for _, ev := range items {
		res = append(res, LogEntry{
			ID:       ev.ID,
			Phase:    ev.Phase,
			SubPhase: ev.SubPhase,
			Message:  ev.Message,
			Progress: ev.Progress,
			FileURL:  ev.FileURL,
			Error:    ev.Error,
			TS:       ev.TS,
		})
	}
	return res
}

// ownedIdea loads an idea and checks it belongs to the caller. A foreign idea
// reads as not found so existence does not leak across owners.
func ownedIdea(ctx context.Context, r repo.Repo, id string) (domain.Idea, error) {
	ownerID, authErr := ownerIDFromContext(ctx)
	if authErr != nil {
		return domain.Idea{}, authErr
	}
	idea, err := r.GetIdea(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Idea{}, newAPIError(http.StatusNotFound, "not_found", "idea not found", nil)
		}
		return domain.Idea{}, handleError(err)
	}
	if idea.OwnerID != ownerID {
		return domain.Idea{}, newAPIError(http.StatusNotFound, "not_found", "idea not found", nil)
	}
	return idea, nil
}
