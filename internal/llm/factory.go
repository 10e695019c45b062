package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stellarlinkco/benchkit/internal/config"
)

// NewProvider builds a provider by name from its config section.
func NewProvider(name string, pcfg config.ProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "claude", "anthropic":
		return NewClaudeProvider(pcfg.APIKey, pcfg.BaseURL, pcfg.Model), nil
	case "openai":
		return NewOpenAIProvider(pcfg.APIKey, pcfg.BaseURL, pcfg.Model), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
}

// DefaultProviderFromConfig returns the configured default provider, or the
// only configured one when the default is absent.
func DefaultProviderFromConfig(cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, errors.New("llm: nil config")
	}

	name := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if pcfg, ok := cfg.LLM.Providers[name]; ok {
		return NewProvider(name, pcfg)
	}

	if len(cfg.LLM.Providers) == 1 {
		for n, pcfg := range cfg.LLM.Providers {
			return NewProvider(n, pcfg)
		}
	}

	available := make([]string, 0, len(cfg.LLM.Providers))
	for k := range cfg.LLM.Providers {
		available = append(available, k)
	}
	sort.Strings(available)
	return nil, fmt.Errorf("llm: default provider %q not configured (available: %s)",
		name, strings.Join(available, ", "))
}
