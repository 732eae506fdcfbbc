package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"ideaforge/internal/agents"
	"ideaforge/internal/classify"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/events"
	"ideaforge/internal/llm"
	"ideaforge/internal/migrate"
	"ideaforge/internal/pipeline"
	"ideaforge/internal/repo"
)

const testJWTSecret = "test-secret"

type scriptedLLM struct {
	answers map[string]string
}

func (s scriptedLLM) Complete(ctx context.Context, model string, prompt llm.Prompt) (string, error) {
	for frag, out := range s.answers {
		if strings.Contains(prompt.System, frag) {
			return out, nil
		}
	}
	return `{"title": "", "domain": "", "problem_statement": "", "user_type": "", "product_type": "", "urgency": ""}`, nil
}

func (s scriptedLLM) Embed(ctx context.Context, model, input string) ([]float64, error) {
	return []float64{0.1}, nil
}

func pipelineAnswers() map[string]string {
	return map[string]string{
		"intent classifier":       `{"title": "PlantPal", "domain": "consumer", "problem_statement": "plants die", "user_type": "plant owners", "product_type": "MobileApp", "urgency": "low"}`,
		"market validation":       `{"target_customers": [], "competitors": [], "tam_estimate": 1, "risks": [], "insights": "", "recommendations": [], "validation_score": 50}`,
		"brand identity":          `{"brand_name": "Verdant", "tagline": "", "tone": "", "color_palette": [], "brand_story": "", "logo_concept": ""}`,
		"architecture advisor":    `{"recommended_stack": [], "architecture": "", "api_endpoints": [], "mvp_features": [], "integration_notes": ""}`,
		"go-to-market strategist": `{"pricing_model": "", "marketing_channels": [], "gtm_strategy": "", "investor_pitch": "", "growth_forecast": ""}`,
	}
}

type testServer struct {
	URL    string
	Repo   repo.Repo
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	client := scriptedLLM{answers: pipelineAnswers()}
	deps := agents.Deps{Repo: r, LLM: client, Model: "m"}
	orch := pipeline.Orchestrator{
		Repo:       r,
		Log:        events.Writer{DB: conn},
		Classifier: classify.Classifier{LLM: client, Model: "m"},
		Agents: []agents.Agent{
			agents.BizMind{Deps: deps},
			agents.BrandPulse{Deps: deps},
			agents.CodeWeaver{Deps: deps},
			agents.LaunchLens{Deps: deps},
		},
	}
	handler, err := New(Config{
		Orchestrator: orch,
		Repo:         r,
		BasePath:     "/v1",
		Auth:         AuthConfig{JWTSecret: testJWTSecret, AllowLegacyOwnerHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Repo:   r,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func mintToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func get(t *testing.T, client *http.Client, url string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

// runPipeline drives the SSE endpoint to completion and returns the idea ID.
func runPipeline(t *testing.T, srv *testServer, headers map[string]string, idea string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/pipeline/run?idea="+url.QueryEscape(idea), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		t.Fatalf("pipeline status %d: %s", res.StatusCode, string(body))
	}

	var ideaID string
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev pipeline.Event
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("decode frame %q: %v", payload, err)
		}
		if ev.Error != "" {
			t.Fatalf("error frame: %+v", ev)
		}
		if ev.IdeaID != "" {
			ideaID = ev.IdeaID
		}
		if ev.Done {
			return ideaID
		}
	}
	t.Fatalf("stream ended without done frame (last idea id %q)", ideaID)
	return ""
}

func decodeErrorEnvelope(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope %q: %v", data, err)
	}
	return env.Error
}

func TestHealthRequiresNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := get(t, srv.Client(), srv.URL+"/v1/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var body map[string]string
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := get(t, srv.Client(), srv.URL+"/v1/ideas", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	envErr := decodeErrorEnvelope(t, data)
	if envErr.Code != "unauthorized" {
		t.Fatalf("code = %q", envErr.Code)
	}
}

func TestInvalidBearerTokenRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := get(t, srv.Client(), srv.URL+"/v1/ideas", map[string]string{
		"Authorization": "Bearer not-a-jwt",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := decodeErrorEnvelope(t, data).Code; code != "invalid_credentials" {
		t.Fatalf("code = %q", code)
	}
}

func TestPipelineAndIdeaReadsWithJWT(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := map[string]string{"Authorization": "Bearer " + mintToken(t, "alice")}

	ideaID := runPipeline(t, srv, headers, "a plant care reminder app")
	if ideaID == "" {
		t.Fatalf("missing idea id")
	}

	res, data := get(t, srv.Client(), srv.URL+"/v1/ideas", headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var ideas []IdeaResponse
	if err := json.Unmarshal(data, &ideas); err != nil {
		t.Fatalf("decode ideas: %v", err)
	}
	if len(ideas) != 1 || ideas[0].ID != ideaID {
		t.Fatalf("ideas = %+v", ideas)
	}

	res, data = get(t, srv.Client(), srv.URL+"/v1/ideas/"+ideaID+"/results", headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("results status %d: %s", res.StatusCode, string(data))
	}
	var results ResultsResponse
	if err := json.Unmarshal(data, &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if results.Validation == nil || results.Branding == nil || results.Tech == nil || results.Launch == nil {
		t.Fatalf("results incomplete: %+v", results)
	}
	if results.Branding.BrandName != "Verdant" {
		t.Fatalf("brand = %q", results.Branding.BrandName)
	}

	res, data = get(t, srv.Client(), srv.URL+"/v1/ideas/"+ideaID+"/dna", headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dna status %d: %s", res.StatusCode, string(data))
	}
	var dna DNAResponse
	if err := json.Unmarshal(data, &dna); err != nil {
		t.Fatalf("decode dna: %v", err)
	}
	if len(dna.Validation) == 0 || len(dna.Launch) == 0 {
		t.Fatalf("dna = %+v", dna)
	}

	res, data = get(t, srv.Client(), srv.URL+"/v1/ideas/"+ideaID+"/logs", headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("logs status %d: %s", res.StatusCode, string(data))
	}
	var logs []LogEntry
	if err := json.Unmarshal(data, &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("empty logs")
	}
	if logs[len(logs)-1].Phase != "done" {
		t.Fatalf("last log = %+v", logs[len(logs)-1])
	}
}

func TestForeignOwnerSeesNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	aliceHeaders := map[string]string{"Authorization": "Bearer " + mintToken(t, "alice")}
	ideaID := runPipeline(t, srv, aliceHeaders, "an idea alice owns")

	bobHeaders := map[string]string{"Authorization": "Bearer " + mintToken(t, "bob")}
	res, data := get(t, srv.Client(), srv.URL+"/v1/ideas/"+ideaID, bobHeaders)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := decodeErrorEnvelope(t, data).Code; code != "not_found" {
		t.Fatalf("code = %q", code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	secret := "sk-test-key"
	err := srv.Repo.InsertAPIKey(context.Background(), domain.APIKey{
		ID:      "key-1",
		OwnerID: "carol",
		Name:    "ci",
		KeyHash: repo.HashAPIKey(secret),
	})
	if err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	res, data := get(t, srv.Client(), srv.URL+"/v1/ideas", map[string]string{"X-Api-Key": secret})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}

	res, data = get(t, srv.Client(), srv.URL+"/v1/ideas", map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestLegacyOwnerHeader(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := map[string]string{"X-Owner-Id": "legacy-user"}
	ideaID := runPipeline(t, srv, headers, "an idea via the legacy header")
	res, data := get(t, srv.Client(), srv.URL+"/v1/ideas/"+ideaID, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var idea IdeaResponse
	if err := json.Unmarshal(data, &idea); err != nil {
		t.Fatalf("decode idea: %v", err)
	}
	if idea.OwnerID != "legacy-user" {
		t.Fatalf("owner = %q", idea.OwnerID)
	}
}

func TestPipelineMissingIdeaParam(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := map[string]string{"Authorization": "Bearer " + mintToken(t, "alice")}
	res, data := get(t, srv.Client(), srv.URL+"/v1/pipeline/run", headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}
