package ideaforgesdk

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Ideaforge HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. No timeout is set on the internal
// HTTP client; pipeline runs are long-lived streams.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Idea represents the API idea model.
type Idea struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	IdeaText  string `json:"idea_text"`
	DNAHash   string `json:"dna_hash"`
	Intent    Intent `json:"intent"`
	CreatedAt string `json:"created_at"`
}

type Intent struct {
	Title            string `json:"title,omitempty"`
	Domain           string `json:"domain,omitempty"`
	ProblemStatement string `json:"problem_statement,omitempty"`
	UserType         string `json:"user_type,omitempty"`
	ProductType      string `json:"product_type,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	RawOutput        string `json:"raw_output,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Event is one frame of the pipeline run stream.
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

// DNA is the aggregate record of a completed run.
type DNA struct {
	ID         string          `json:"id"`
	IdeaID     string          `json:"idea_id"`
	Validation json.RawMessage `json:"validation,omitempty"`
	Branding   json.RawMessage `json:"branding,omitempty"`
	Tech       json.RawMessage `json:"tech,omitempty"`
	Launch     json.RawMessage `json:"launch,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// LogEntry is one durable pipeline event.
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

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// RunPipeline starts a pipeline run and calls handle for every streamed
// event. It returns when the stream ends or ctx is canceled; handle may stop
// the stream early by returning an error.
func (c *Client) RunPipeline(ctx context.Context, idea string, handle func(Event) error) error {
	endpoint := fmt.Sprintf("v1/pipeline/run?idea=%s", url.QueryEscape(idea))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/"+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.setAuth(req)
	// Streaming must not inherit the request timeout.
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		if err := handle(ev); err != nil {
			return err
		}
		if ev.Done {
			return nil
		}
	}
	return scanner.Err()
}

// ListIdeas returns the caller's ideas.
func (c *Client) ListIdeas(ctx context.Context) ([]Idea, error) {
	var resp []Idea
	err := c.do(ctx, http.MethodGet, "v1/ideas", &resp)
	return resp, err
}

// GetIdea fetches an idea by id.
func (c *Client) GetIdea(ctx context.Context, id string) (Idea, error) {
	var resp Idea
	err := c.do(ctx, http.MethodGet, "v1/ideas/"+url.PathEscape(id), &resp)
	return resp, err
}

// GetDNA fetches the latest DNA aggregate for an idea.
func (c *Client) GetDNA(ctx context.Context, ideaID string) (DNA, error) {
	var resp DNA
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/ideas/%s/dna", url.PathEscape(ideaID)), &resp)
	return resp, err
}

// Logs returns the pipeline event log for an idea.
func (c *Client) Logs(ctx context.Context, ideaID string) ([]LogEntry, error) {
	var resp []LogEntry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/ideas/%s/logs", url.PathEscape(ideaID)), &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base()+"/"+strings.TrimLeft(endpoint, "/"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
