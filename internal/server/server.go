package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"

	"ideaforge/internal/llm"
	"ideaforge/internal/pipeline"
	"ideaforge/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Orchestrator pipeline.Orchestrator
	Repo         repo.Repo
	ReportsDir   string
	BasePath     string
	Auth         AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"idea not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Ideaforge API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Ideaforge API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPipeline(group, cfg.Orchestrator)
	registerIdeas(group, cfg.Repo)
	registerReports(router, cfg.ReportsDir)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusBadGateway, "provider_error", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "provider_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerPipeline(api huma.API, orch pipeline.Orchestrator) {
	sse.Register(api, huma.Operation{
		OperationID: "run-pipeline",
		Method:      http.MethodGet,
		Path:        "/pipeline/run",
		Summary:     "Run the idea pipeline",
		Description: "Streams pipeline progress as server-sent events. The terminal frame carries done=true.",
	}, map[string]any{
		"progress": pipeline.Event{},
	}, func(ctx context.Context, input *struct {
		Idea string `query:"idea" required:"true" doc:"Raw startup idea text"`
	}, send sse.Sender) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			send.Data(pipeline.Event{Error: authErr.Error()})
			return
		}
		if strings.TrimSpace(input.Idea) == "" {
			send.Data(pipeline.Event{Error: "missing idea text"})
			return
		}
		// Errors already surface as stream frames; the return value is
		// only for callers that want to fail fast.
		_, _ = orch.Run(ctx, pipeline.Request{IdeaText: input.Idea, OwnerID: ownerID}, func(ev pipeline.Event) {
			send.Data(ev)
		})
	})
}

func registerIdeas(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ideas",
		Method:      http.MethodGet,
		Path:        "/ideas",
		Summary:     "List ideas",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []IdeaResponse `json:"body"`
	}, error) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := r.ListIdeas(ctx, ownerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []IdeaResponse `json:"body"`
		}{Body: mapIdeas(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idea",
		Method:      http.MethodGet,
		Path:        "/ideas/{id}",
		Summary:     "Get idea",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body IdeaResponse `json:"body"`
	}, error) {
		idea, err := ownedIdea(ctx, r, input.ID)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body IdeaResponse `json:"body"`
		}{Body: ideaResponse(idea)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idea-results",
		Method:      http.MethodGet,
		Path:        "/ideas/{id}/results",
		Summary:     "Get per-agent results",
		Description: "Returns the latest stored artifact of each agent. Agents that have not produced a result for this idea are omitted.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ResultsResponse `json:"body"`
	}, error) {
		idea, err := ownedIdea(ctx, r, input.ID)
		if err != nil {
			return nil, err
		}
		res := ResultsResponse{IdeaID: idea.ID}
		if v, err := r.GetValidation(ctx, idea.ID); err == nil {
			res.Validation = &v
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		if b, err := r.GetBranding(ctx, idea.ID); err == nil {
			res.Branding = &b
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		if t, err := r.GetTech(ctx, idea.ID); err == nil {
			res.Tech = &t
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		if l, err := r.GetLaunch(ctx, idea.ID); err == nil {
			res.Launch = &l
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		return &struct {
			Body ResultsResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idea-dna",
		Method:      http.MethodGet,
		Path:        "/ideas/{id}/dna",
		Summary:     "Get DNA aggregate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body DNAResponse `json:"body"`
	}, error) {
		idea, err := ownedIdea(ctx, r, input.ID)
		if err != nil {
			return nil, err
		}
		dna, gerr := r.GetDNA(ctx, idea.ID)
		if gerr != nil {
			return nil, handleError(gerr)
		}
		return &struct {
			Body DNAResponse `json:"body"`
		}{Body: dnaResponse(dna)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idea-logs",
		Method:      http.MethodGet,
		Path:        "/ideas/{id}/logs",
		Summary:     "Get pipeline event log",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []LogEntry `json:"body"`
	}, error) {
		idea, err := ownedIdea(ctx, r, input.ID)
		if err != nil {
			return nil, err
		}
		items, lerr := r.ListProgress(ctx, idea.ID)
		if lerr != nil {
			return nil, handleError(lerr)
		}
		return &struct {
			Body []LogEntry `json:"body"`
		}{Body: mapLogs(items)}, nil
	})
}

func registerReports(r chi.Router, dir string) {
	if dir == "" {
		return
	}
	fs := http.StripPrefix("/reports/", http.FileServer(http.Dir(dir)))
	r.Get("/reports/*", fs.ServeHTTP)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Ideaforge API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
