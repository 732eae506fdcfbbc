package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ideaforge/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// HashIdea returns the deterministic dedup digest of raw idea text.
func HashIdea(ideaText string) string {
	sum := sha256.Sum256([]byte(ideaText))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertIdea(ctx context.Context, idea domain.Idea) error {
	intentJSON, err := json.Marshal(idea.Intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO ideas(id,owner_id,idea_text,dna_hash,intent_json,created_at) VALUES (?,?,?,?,?,?)`,
		idea.ID, idea.OwnerID, idea.IdeaText, idea.DNAHash, string(intentJSON), idea.CreatedAt)
	return err
}

func scanIdea(scan func(...any) error) (domain.Idea, error) {
	var idea domain.Idea
	var intentJSON string
	err := scan(&idea.ID, &idea.OwnerID, &idea.IdeaText, &idea.DNAHash, &intentJSON, &idea.CreatedAt)
	if err == sql.ErrNoRows {
		return idea, ErrNotFound
	}
	if err != nil {
		return idea, err
	}
	if err := json.Unmarshal([]byte(intentJSON), &idea.Intent); err != nil {
		return idea, fmt.Errorf("decode intent: %w", err)
	}
	return idea, nil
}

func (r Repo) GetIdea(ctx context.Context, id string) (domain.Idea, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,idea_text,dna_hash,intent_json,created_at FROM ideas WHERE id=?`, id)
	return scanIdea(row.Scan)
}

// FindIdeaByHash looks up an idea by its (owner, content-hash) dedup key.
func (r Repo) FindIdeaByHash(ctx context.Context, ownerID, hash string) (domain.Idea, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,idea_text,dna_hash,intent_json,created_at FROM ideas WHERE owner_id=? AND dna_hash=?`, ownerID, hash)
	return scanIdea(row.Scan)
}

func (r Repo) ListIdeas(ctx context.Context, ownerID string) ([]domain.Idea, error) {
	clauses := []string{"1=1"}
	var args []any
	if ownerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, ownerID)
	}
	query := `SELECT id,owner_id,idea_text,dna_hash,intent_json,created_at FROM ideas WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Idea
	for rows.Next() {
		idea, err := scanIdea(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, idea)
	}
	return res, rows.Err()
}

func marshalList[T any](in []T) string {
	if in == nil {
		in = []T{}
	}
	b, _ := json.Marshal(in)
	return string(b)
}

func unmarshalList[T any](raw string, out *[]T) {
	*out = []T{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), out)
	}
}

func (r Repo) InsertValidation(ctx context.Context, v domain.ValidationResult) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO dna_validation(id,idea_id,target_customers_json,competitors_json,tam_estimate,risks_json,insights,recommendations_json,validation_score,raw_output,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.IdeaID, marshalList(v.TargetCustomers), marshalList(v.Competitors), v.TAMEstimate,
		marshalList(v.Risks), v.Insights, marshalList(v.Recommendations), v.ValidationScore,
		nullable(v.RawOutput), v.CreatedAt)
	return err
}

func (r Repo) GetValidation(ctx context.Context, ideaID string) (domain.ValidationResult, error) {
	var v domain.ValidationResult
	var customers, competitors, risks, recommendations string
	var raw sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,idea_id,target_customers_json,competitors_json,tam_estimate,risks_json,insights,recommendations_json,validation_score,raw_output,created_at
FROM dna_validation WHERE idea_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, ideaID).
		Scan(&v.ID, &v.IdeaID, &customers, &competitors, &v.TAMEstimate, &risks, &v.Insights, &recommendations, &v.ValidationScore, &raw, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	unmarshalList(customers, &v.TargetCustomers)
	unmarshalList(competitors, &v.Competitors)
	unmarshalList(risks, &v.Risks)
	unmarshalList(recommendations, &v.Recommendations)
	if raw.Valid {
		v.RawOutput = raw.String
	}
	return v, nil
}

func (r Repo) InsertBranding(ctx context.Context, b domain.BrandingResult) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO dna_branding(id,idea_id,brand_name,tagline,tone,color_palette_json,brand_story,logo_concept,raw_output,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.IdeaID, b.BrandName, b.Tagline, b.Tone, marshalList(b.ColorPalette),
		b.BrandStory, b.LogoConcept, nullable(b.RawOutput), b.CreatedAt)
	return err
}

func (r Repo) GetBranding(ctx context.Context, ideaID string) (domain.BrandingResult, error) {
	var b domain.BrandingResult
	var palette string
	var raw sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,idea_id,brand_name,tagline,tone,color_palette_json,brand_story,logo_concept,raw_output,created_at
FROM dna_branding WHERE idea_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, ideaID).
		Scan(&b.ID, &b.IdeaID, &b.BrandName, &b.Tagline, &b.Tone, &palette, &b.BrandStory, &b.LogoConcept, &raw, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	unmarshalList(palette, &b.ColorPalette)
	if raw.Valid {
		b.RawOutput = raw.String
	}
	return b, nil
}

func (r Repo) InsertTech(ctx context.Context, t domain.TechResult) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO dna_tech(id,idea_id,recommended_stack_json,architecture,api_endpoints_json,mvp_features_json,integration_notes,raw_output,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.IdeaID, marshalList(t.RecommendedStack), t.Architecture, marshalList(t.APIEndpoints),
		marshalList(t.MVPFeatures), t.IntegrationNotes, nullable(t.RawOutput), t.CreatedAt)
	return err
}

func (r Repo) GetTech(ctx context.Context, ideaID string) (domain.TechResult, error) {
	var t domain.TechResult
	var stack, endpoints, features string
	var raw sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,idea_id,recommended_stack_json,architecture,api_endpoints_json,mvp_features_json,integration_notes,raw_output,created_at
FROM dna_tech WHERE idea_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, ideaID).
		Scan(&t.ID, &t.IdeaID, &stack, &t.Architecture, &endpoints, &features, &t.IntegrationNotes, &raw, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	unmarshalList(stack, &t.RecommendedStack)
	unmarshalList(endpoints, &t.APIEndpoints)
	unmarshalList(features, &t.MVPFeatures)
	if raw.Valid {
		t.RawOutput = raw.String
	}
	return t, nil
}

func (r Repo) InsertLaunch(ctx context.Context, l domain.LaunchResult) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO dna_launch(id,idea_id,pricing_model,marketing_channels_json,gtm_strategy,investor_pitch,growth_forecast,raw_output,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		l.ID, l.IdeaID, l.PricingModel, marshalList(l.MarketingChannels), l.GTMStrategy,
		l.InvestorPitch, l.GrowthForecast, nullable(l.RawOutput), l.CreatedAt)
	return err
}

func (r Repo) GetLaunch(ctx context.Context, ideaID string) (domain.LaunchResult, error) {
	var l domain.LaunchResult
	var channels string
	var raw sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,idea_id,pricing_model,marketing_channels_json,gtm_strategy,investor_pitch,growth_forecast,raw_output,created_at
FROM dna_launch WHERE idea_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, ideaID).
		Scan(&l.ID, &l.IdeaID, &l.PricingModel, &channels, &l.GTMStrategy, &l.InvestorPitch, &l.GrowthForecast, &raw, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	unmarshalList(channels, &l.MarketingChannels)
	if raw.Valid {
		l.RawOutput = raw.String
	}
	return l, nil
}

func (r Repo) InsertDNA(ctx context.Context, d domain.DNARecord) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO dna_genomes(id,idea_id,validation_json,branding_json,tech_json,launch_json,created_at)
VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.IdeaID, nullableRaw(d.Validation), nullableRaw(d.Branding), nullableRaw(d.Tech), nullableRaw(d.Launch), d.CreatedAt)
	return err
}

func (r Repo) GetDNA(ctx context.Context, ideaID string) (domain.DNARecord, error) {
	var d domain.DNARecord
	var validation, branding, tech, launch sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,idea_id,validation_json,branding_json,tech_json,launch_json,created_at
FROM dna_genomes WHERE idea_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, ideaID).
		Scan(&d.ID, &d.IdeaID, &validation, &branding, &tech, &launch, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Validation = rawOrNil(validation)
	d.Branding = rawOrNil(branding)
	d.Tech = rawOrNil(tech)
	d.Launch = rawOrNil(launch)
	return d, nil
}

func (r Repo) InsertDoc(ctx context.Context, doc domain.Doc) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO startup_docs(id,idea_id,source,title,description,embedding_json,created_at)
VALUES (?,?,?,?,?,?,?)`,
		doc.ID, doc.IdeaID, doc.Source, doc.Title, nullable(doc.Description), marshalList(doc.Embedding), doc.CreatedAt)
	return err
}

func (r Repo) CountDocs(ctx context.Context, ideaID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM startup_docs WHERE idea_id=?`, ideaID).Scan(&n)
	return n, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableRaw(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return string(v)
}

func rawOrNil(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.RawMessage(v.String)
}
