// Package app wires the database, config, and pipeline stack for the CLI and
// the HTTP server.
package app

import (
	"database/sql"
	"errors"
	"time"

	"ideaforge/internal/agents"
	"ideaforge/internal/classify"
	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/events"
	"ideaforge/internal/llm"
	"ideaforge/internal/migrate"
	"ideaforge/internal/pipeline"
	"ideaforge/internal/repo"
)

type Context struct {
	Workspace string
	DB        *sql.DB
	Repo      repo.Repo
	Config    *config.Config
}

// Open ensures the workspace, opens the database, and applies migrations.
// Config is optional; defaults apply when ideaforge.yml is missing.
func Open(workspace string) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{
		Workspace: workspace,
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Config:    cfg,
	}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}

// ReportsDir resolves the report output directory, or "" when reports are
// disabled.
func (c *Context) ReportsDir() (string, error) {
	if !c.Config.ReportsEnabled() {
		return "", nil
	}
	return db.ReportsDir(c.Workspace)
}

// LLMClient builds the provider client from config and environment.
func (c *Context) LLMClient() (llm.Client, error) {
	key := c.Config.APIKey()
	if key == "" {
		return nil, errors.New("llm api key not set; export " + apiKeyEnv(c.Config))
	}
	return llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:  key,
		BaseURL: c.Config.LLM.BaseURL,
		Timeout: time.Duration(c.Config.LLM.TimeoutSeconds) * time.Second,
	})
}

func apiKeyEnv(cfg *config.Config) string {
	if cfg.LLM.APIKeyEnv != "" {
		return cfg.LLM.APIKeyEnv
	}
	return "IDEAFORGE_LLM_API_KEY"
}

// Orchestrator assembles the full pipeline around the given model client.
func (c *Context) Orchestrator(client llm.Client) (pipeline.Orchestrator, error) {
	reportsDir, err := c.ReportsDir()
	if err != nil {
		return pipeline.Orchestrator{}, err
	}
	classifierModel := c.Config.LLM.ClassifierModel
	if classifierModel == "" {
		classifierModel = c.Config.LLM.Model
	}
	return pipeline.Orchestrator{
		Repo: c.Repo,
		Log:  events.Writer{DB: c.DB},
		Classifier: classify.Classifier{
			LLM:   client,
			Model: classifierModel,
		},
		Agents: c.buildAgents(client, reportsDir),
	}, nil
}

func (c *Context) buildAgents(client llm.Client, reportsDir string) []agents.Agent {
	deps := func(name string) agents.Deps {
		return agents.Deps{
			Repo:       c.Repo,
			LLM:        client,
			Model:      c.Config.ModelFor(name),
			EmbedModel: c.Config.LLM.EmbeddingModel,
			ReportsDir: reportsDir,
		}
	}
	return []agents.Agent{
		agents.BizMind{Deps: deps("BizMind")},
		agents.BrandPulse{Deps: deps("BrandPulse")},
		agents.CodeWeaver{Deps: deps("CodeWeaver")},
		agents.LaunchLens{Deps: deps("LaunchLens")},
	}
}
