package llm

import (
	"fmt"
	"time"
)

// FactoryConfig holds the parameters needed to create a Generator.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the default provider name ("openai", "anthropic", "gemini").
	Provider string
	// Temperature is the sampling temperature.
	Temperature float64
	// Timeout is the timeout for generation API calls.
	Timeout time.Duration
	// OpenAI contains OpenAI-specific settings.
	OpenAI ProviderSettings
	// Anthropic contains Anthropic-specific settings.
	Anthropic ProviderSettings
	// Gemini contains Gemini-specific settings.
	Gemini ProviderSettings
}

// GeneratorOverrides carries per-request deviations from the configured
// defaults. Zero values mean "use the configured setting".
type GeneratorOverrides struct {
	// Provider selects a provider other than the configured default.
	Provider string
	// Model overrides the configured model for the selected provider.
	Model string
	// APIKey overrides the configured key for the selected provider.
	APIKey string
}

// NewGenerator creates a Generator for the given provider, applying any
// per-request overrides on top of the factory configuration. Returns an error
// for unsupported providers or when no API key is available.
func NewGenerator(cfg FactoryConfig, ov GeneratorOverrides) (Generator, error) {
	provider := ov.Provider
	if provider == "" {
		provider = cfg.Provider
	}

	var settings ProviderSettings
	switch provider {
	case "openai":
		settings = cfg.OpenAI
	case "anthropic":
		settings = cfg.Anthropic
	case "gemini":
		settings = cfg.Gemini
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", provider)
	}

	if ov.Model != "" {
		settings.Model = ov.Model
	}
	if ov.APIKey != "" {
		settings.APIKey = ov.APIKey
	}
	if settings.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for LLM provider %q", provider)
	}

	switch provider {
	case "openai":
		return NewOpenAIProvider(settings, cfg.Temperature, cfg.Timeout), nil
	case "anthropic":
		return NewAnthropicProvider(settings, cfg.Temperature, cfg.Timeout), nil
	default:
		return NewGeminiProvider(settings, cfg.Temperature, cfg.Timeout), nil
	}
}

// ProviderInfo describes one supported provider for capability discovery.
type ProviderInfo struct {
	// Name is the provider name.
	Name string `json:"name"`
	// DefaultModel is the model used when no per-request model is given.
	DefaultModel string `json:"default_model"`
	// Configured is true when an API key is available for this provider.
	Configured bool `json:"configured"`
	// Default is true when this is the configured default provider.
	Default bool `json:"default"`
}

// Catalog returns the supported providers in a stable order, marking which
// have keys configured and which is the default.
func Catalog(cfg FactoryConfig) []ProviderInfo {
	entries := []struct {
		name         string
		settings     ProviderSettings
		defaultModel string
	}{
		{"openai", cfg.OpenAI, defaultOpenAIModel},
		{"anthropic", cfg.Anthropic, defaultAnthropicModel},
		{"gemini", cfg.Gemini, defaultGeminiModel},
	}

	infos := make([]ProviderInfo, 0, len(entries))
	for _, e := range entries {
		model := e.settings.Model
		if model == "" {
			model = e.defaultModel
		}
		infos = append(infos, ProviderInfo{
			Name:         e.name,
			DefaultModel: model,
			Configured:   e.settings.APIKey != "",
			Default:      e.name == cfg.Provider,
		})
	}
	return infos
}
