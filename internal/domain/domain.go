package domain

import "encoding/json"

// Product type and urgency enums produced by the intent classifier.
const (
	ProductSaaS        = "SaaS"
	ProductMarketplace = "Marketplace"
	ProductMobileApp   = "MobileApp"
	ProductAPI         = "API"
	ProductHardware    = "Hardware"
	ProductOther       = "Other"
)

// Intent is the structured classification of a raw idea. When the model
// returns unparseable output the classifier degrades instead of failing:
// RawOutput carries the text and Error the marker, the rest stays zero.
type Intent struct {
	Title            string `json:"title,omitempty"`
	Domain           string `json:"domain,omitempty"`
	ProblemStatement string `json:"problem_statement,omitempty"`
	UserType         string `json:"user_type,omitempty"`
	ProductType      string `json:"product_type,omitempty" enum:"SaaS,Marketplace,MobileApp,API,Hardware,Other"`
	Urgency          string `json:"urgency,omitempty" enum:"low,medium,high"`
	RawOutput        string `json:"raw_output,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Degraded reports whether this intent is a fallback record rather than a
// parsed classification.
func (i Intent) Degraded() bool { return i.Error != "" }

type Idea struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	IdeaText  string `json:"idea_text"`
	DNAHash   string `json:"dna_hash"`
	Intent    Intent `json:"intent"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Competitor struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ValidationResult is BizMind's artifact: market validation for an idea.
type ValidationResult struct {
	ID              string       `json:"id"`
	IdeaID          string       `json:"idea_id"`
	TargetCustomers []string     `json:"target_customers"`
	Competitors     []Competitor `json:"competitors"`
	TAMEstimate     float64      `json:"tam_estimate"`
	Risks           []string     `json:"risks"`
	Insights        string       `json:"insights"`
	Recommendations []string     `json:"recommendations"`
	ValidationScore float64      `json:"validation_score"`
	RawOutput       string       `json:"raw_output,omitempty"`
	CreatedAt       string       `json:"created_at" format:"date-time"`
}

// BrandingResult is BrandPulse's artifact: brand identity.
type BrandingResult struct {
	ID           string   `json:"id"`
	IdeaID       string   `json:"idea_id"`
	BrandName    string   `json:"brand_name"`
	Tagline      string   `json:"tagline"`
	Tone         string   `json:"tone"`
	ColorPalette []string `json:"color_palette"`
	BrandStory   string   `json:"brand_story"`
	LogoConcept  string   `json:"logo_concept"`
	RawOutput    string   `json:"raw_output,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

// TechResult is CodeWeaver's artifact: technical architecture.
type TechResult struct {
	ID               string   `json:"id"`
	IdeaID           string   `json:"idea_id"`
	RecommendedStack []string `json:"recommended_stack"`
	Architecture     string   `json:"architecture"`
	APIEndpoints     []string `json:"api_endpoints"`
	MVPFeatures      []string `json:"mvp_features"`
	IntegrationNotes string   `json:"integration_notes"`
	RawOutput        string   `json:"raw_output,omitempty"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
}

// LaunchResult is LaunchLens's artifact: go-to-market plan.
type LaunchResult struct {
	ID                string   `json:"id"`
	IdeaID            string   `json:"idea_id"`
	PricingModel      string   `json:"pricing_model"`
	MarketingChannels []string `json:"marketing_channels"`
	GTMStrategy       string   `json:"gtm_strategy"`
	InvestorPitch     string   `json:"investor_pitch"`
	GrowthForecast    string   `json:"growth_forecast"`
	RawOutput         string   `json:"raw_output,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
}

// DNARecord is the terminal aggregate of one pipeline run. Agent slots that
// failed stay null; the record is only written once a run reaches the
// aggregation stage.
type DNARecord struct {
	ID         string          `json:"id"`
	IdeaID     string          `json:"idea_id"`
	Validation json.RawMessage `json:"validation,omitempty"`
	Branding   json.RawMessage `json:"branding,omitempty"`
	Tech       json.RawMessage `json:"tech,omitempty"`
	Launch     json.RawMessage `json:"launch,omitempty"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
}

// ProgressEvent is one row of the append-only pipeline audit trail. The same
// payload is delivered on the live stream; durability does not depend on
// stream delivery.
type ProgressEvent struct {
	ID       int64  `json:"id"`
	IdeaID   string `json:"idea_id,omitempty"`
	OwnerID  string `json:"owner_id,omitempty"`
	Phase    string `json:"phase"`
	SubPhase string `json:"sub_phase,omitempty"`
	Message  string `json:"message,omitempty"`
	Progress *int   `json:"progress,omitempty" minimum:"0" maximum:"100"`
	FileURL  string `json:"file_url,omitempty"`
	Error    string `json:"error,omitempty"`
	TS       string `json:"ts" format:"date-time"`
}

// Doc is a best-effort semantic-search side artifact derived from an agent
// result summary.
type Doc struct {
	ID          string    `json:"id"`
	IdeaID      string    `json:"idea_id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Embedding   []float64 `json:"embedding,omitempty"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
