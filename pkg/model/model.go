package model

import (
	"fmt"
	"strings"
)

// Provider identifies the upstream vendor that serves a model
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Providers lists every supported vendor in display order
var Providers = []Provider{ProviderOpenAI, ProviderAnthropic}

// ParseProvider validates a provider name
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// DisplayName returns the vendor name as shown to users
func (p Provider) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	default:
		return string(p)
	}
}

// ModelInfo is the static metadata of one model. Prices are USD per 1K tokens.
type ModelInfo struct {
	ID          string   `json:"id" yaml:"id"`
	Provider    Provider `json:"provider" yaml:"provider"`
	Family      string   `json:"family" yaml:"family"`
	TokenLimit  int      `json:"tokenLimit" yaml:"token_limit"`
	OutputLimit int      `json:"outputLimit" yaml:"output_limit"`
	InputPrice  float64  `json:"inputPrice" yaml:"input_price"`
	OutputPrice float64  `json:"outputPrice" yaml:"output_price"`
	Deprecated  bool     `json:"isDeprecated,omitempty" yaml:"deprecated,omitempty"`
}

// Fallback values used for models missing from the registry
const (
	FallbackFamily      = "Unknown"
	FallbackTokenLimit  = 4096
	FallbackOutputLimit = 4096
	FallbackPrice       = 0.01
)

// FallbackInfo returns the generic record for an unregistered model id.
// The provider is guessed from the id: anything mentioning "claude" is
// Anthropic, everything else OpenAI.
func FallbackInfo(id string) ModelInfo {
	provider := ProviderOpenAI
	if strings.Contains(strings.ToLower(id), "claude") {
		provider = ProviderAnthropic
	}
	return ModelInfo{
		ID:          id,
		Provider:    provider,
		Family:      FallbackFamily,
		TokenLimit:  FallbackTokenLimit,
		OutputLimit: FallbackOutputLimit,
		InputPrice:  FallbackPrice,
		OutputPrice: FallbackPrice,
	}
}

func (m ModelInfo) validate() error {
	if m.ID == "" {
		return fmt.Errorf("model id is required")
	}
	if _, err := ParseProvider(string(m.Provider)); err != nil {
		return fmt.Errorf("model %s: %w", m.ID, err)
	}
	if m.Family == "" {
		return fmt.Errorf("model %s: family is required", m.ID)
	}
	if m.TokenLimit <= 0 || m.OutputLimit <= 0 {
		return fmt.Errorf("model %s: token and output limits must be positive", m.ID)
	}
	if m.InputPrice < 0 || m.OutputPrice < 0 {
		return fmt.Errorf("model %s: prices must not be negative", m.ID)
	}
	return nil
}
