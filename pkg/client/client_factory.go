package client

import (
	"fmt"

	"github.com/fpt/llmbench/pkg/client/anthropic"
	"github.com/fpt/llmbench/pkg/client/openai"
	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/model"
)

// Config carries the credentials and endpoints of every vendor
type Config struct {
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
}

// Availability reports which vendors have a configured key
type Availability struct {
	OpenAIAvailable    bool `json:"openaiAvailable"`
	AnthropicAvailable bool `json:"anthropicAvailable"`
}

// Providers is the set of configured vendor adapters. A vendor without an
// API key has no adapter.
type Providers struct {
	byName map[model.Provider]domain.Provider
}

// NewProviders builds a set from ready adapters. Nil entries are skipped.
func NewProviders(providers ...domain.Provider) *Providers {
	p := &Providers{byName: make(map[model.Provider]domain.Provider)}
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		p.byName[provider.Name()] = provider
	}
	return p
}

// NewProvidersFromConfig creates one adapter per vendor whose key is set
func NewProvidersFromConfig(cfg Config) (*Providers, error) {
	log := logger.NewComponentLogger("client")
	p := NewProviders()

	if cfg.OpenAIAPIKey != "" {
		c, err := openai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		p.byName[model.ProviderOpenAI] = c
	} else {
		log.Warn("OpenAI API key is not configured")
	}

	if cfg.AnthropicAPIKey != "" {
		c, err := anthropic.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		p.byName[model.ProviderAnthropic] = c
	} else {
		log.Warn("Anthropic API key is not configured")
	}

	return p, nil
}

// For returns the adapter of provider
func (p *Providers) For(provider model.Provider) (domain.Provider, bool) {
	adapter, ok := p.byName[provider]
	return adapter, ok
}

// Available reports whether provider has an adapter
func (p *Providers) Available(provider model.Provider) bool {
	_, ok := p.byName[provider]
	return ok
}

// Availability returns the key check answer
func (p *Providers) Availability() Availability {
	return Availability{
		OpenAIAvailable:    p.Available(model.ProviderOpenAI),
		AnthropicAvailable: p.Available(model.ProviderAnthropic),
	}
}

// Missing lists the vendors without an adapter, in model.Providers order
func (p *Providers) Missing() []model.Provider {
	var missing []model.Provider
	for _, provider := range model.Providers {
		if !p.Available(provider) {
			missing = append(missing, provider)
		}
	}
	return missing
}

// Pinger returns the connectivity probe of provider, if the adapter has one
func (p *Providers) Pinger(provider model.Provider) (domain.Pinger, bool) {
	adapter, ok := p.byName[provider]
	if !ok {
		return nil, false
	}
	pinger, ok := adapter.(domain.Pinger)
	return pinger, ok
}
