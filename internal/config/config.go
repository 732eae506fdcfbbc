package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Agent names, in pipeline order. The order is a reproducibility contract:
// clients rely on phases arriving in this sequence.
var AgentOrder = []string{"BizMind", "BrandPulse", "CodeWeaver", "LaunchLens"}

// Config models ideaforge.yml.
type Config struct {
	LLM struct {
		BaseURL         string `yaml:"base_url"`
		APIKeyEnv       string `yaml:"api_key_env"`
		Model           string `yaml:"model"`
		ClassifierModel string `yaml:"classifier_model"`
		EmbeddingModel  string `yaml:"embedding_model"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
	} `yaml:"llm"`
	Agents struct {
		// Models overrides the completion model per agent name.
		Models map[string]string `yaml:"models"`
	} `yaml:"agents"`
	Reports struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"reports"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// ModelFor returns the completion model for an agent, falling back to the
// default model.
func (c *Config) ModelFor(agent string) string {
	if m, ok := c.Agents.Models[agent]; ok && m != "" {
		return m
	}
	return c.LLM.Model
}

// APIKey resolves the provider API key from the configured environment
// variable.
func (c *Config) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return os.Getenv("IDEAFORGE_LLM_API_KEY")
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}

// ReportsEnabled defaults to true.
func (c *Config) ReportsEnabled() bool {
	return c.Reports.Enabled == nil || *c.Reports.Enabled
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run forge init or pass --workspace", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("config.llm.model is required")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.llm.timeout_seconds must be positive")
	}
	for agent := range c.Agents.Models {
		if !knownAgent(agent) {
			return fmt.Errorf("config.agents.models references unknown agent %s", agent)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func knownAgent(name string) bool {
	for _, a := range AgentOrder {
		if a == name {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ideaforge.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `llm:
  # Any OpenAI-compatible endpoint works (OpenAI, OpenRouter, local router).
  base_url: ""
  api_key_env: IDEAFORGE_LLM_API_KEY
  model: gpt-4o-mini
  classifier_model: gpt-4o-mini
  embedding_model: text-embedding-3-small
  timeout_seconds: 45

agents:
  models: {}

reports:
  enabled: true

webhooks: []
`
