// Package config loads benchkit configuration from YAML with environment
// overlays for API keys.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
}

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

type EvaluationConfig struct {
	ModelID     string         `yaml:"model_id,omitempty"` // report key; defaults to the provider's model
	Dataset     string         `yaml:"dataset,omitempty"`  // dataset name or local path
	Subsets     []string       `yaml:"subsets,omitempty"`
	Stage       string         `yaml:"stage,omitempty"`     // all|infer|review
	EvalType    string         `yaml:"eval_type,omitempty"` // checkpoint|service|custom
	Hub         string         `yaml:"hub,omitempty"`       // local|modelscope|huggingface
	UseCache    bool           `yaml:"use_cache,omitempty"`
	Limit       int            `yaml:"limit,omitempty"`
	Debug       bool           `yaml:"debug,omitempty"`
	NoTable     bool           `yaml:"no_table,omitempty"`
	OutputsDir  string         `yaml:"outputs_dir,omitempty"`
	DatasetsDir string         `yaml:"datasets_dir,omitempty"`
	Infer       map[string]any `yaml:"infer,omitempty"` // inference config (temperature, max_tokens, ...)
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]ProviderConfig)
	}
	if strings.TrimSpace(cfg.LLM.DefaultProvider) == "" {
		cfg.LLM.DefaultProvider = "claude"
	}

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		p := cfg.LLM.Providers["claude"]
		p.APIKey = v
		cfg.LLM.Providers["claude"] = p
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		p := cfg.LLM.Providers["openai"]
		p.APIKey = v
		cfg.LLM.Providers["openai"] = p
	}

	if strings.TrimSpace(cfg.Evaluation.Stage) == "" {
		cfg.Evaluation.Stage = "all"
	}
	if strings.TrimSpace(cfg.Evaluation.EvalType) == "" {
		cfg.Evaluation.EvalType = "service"
	}
	if strings.TrimSpace(cfg.Evaluation.Hub) == "" {
		cfg.Evaluation.Hub = "local"
	}
	if strings.TrimSpace(cfg.Evaluation.OutputsDir) == "" {
		cfg.Evaluation.OutputsDir = "outputs"
	}
	if strings.TrimSpace(cfg.Evaluation.DatasetsDir) == "" {
		cfg.Evaluation.DatasetsDir = "data"
	}
}
