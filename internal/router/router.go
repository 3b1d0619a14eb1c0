// Package router implements the model router used by the agent.
//
// The router holds an ordered list of configured providers and a driver per
// provider kind. A chat request goes to the first provider; on failure the
// router falls through to the next one.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/internal/config"
	"github.com/agentoven/ragjenkins/pkg/models"
)

// ErrNoProviders is returned by Chat when no provider is configured.
var ErrNoProviders = errors.New("no model providers configured")

// ProviderDriver calls one kind of chat completion API.
type ProviderDriver interface {
	Kind() string
	Call(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error)
	HealthCheck(ctx context.Context, provider *models.ModelProvider) error
}

// ModelRouter routes chat requests to configured providers.
type ModelRouter struct {
	mu          sync.RWMutex
	providers   []models.ModelProvider
	drivers     map[string]ProviderDriver
	temperature *float64
}

// NewModelRouter creates a router with the built-in openai and ollama
// drivers and no providers.
func NewModelRouter() *ModelRouter {
	mr := &ModelRouter{
		drivers: make(map[string]ProviderDriver),
	}
	client := newHTTPClient()
	mr.RegisterDriver(&openAIDriver{client: client})
	mr.RegisterDriver(&ollamaDriver{client: client})
	return mr
}

// FromConfig builds a router with OpenAI as the primary provider and
// Ollama as the fallback when OLLAMA_URL is set.
func FromConfig(cfg *config.Config) *ModelRouter {
	mr := NewModelRouter()
	temp := cfg.OpenAI.Temperature
	mr.temperature = &temp
	if cfg.OpenAI.APIKey != "" {
		mr.AddProvider(models.ModelProvider{
			Name:     "openai",
			Kind:     "openai",
			Endpoint: cfg.OpenAI.BaseURL,
			APIKey:   cfg.OpenAI.APIKey,
			Model:    cfg.OpenAI.ChatModel,
		})
	}
	if cfg.Ollama.URL != "" {
		mr.AddProvider(models.ModelProvider{
			Name:     "ollama",
			Kind:     "ollama",
			Endpoint: cfg.Ollama.URL,
			Model:    cfg.Ollama.ChatModel,
		})
	}
	return mr
}

// RegisterDriver adds or replaces the driver for its kind.
func (mr *ModelRouter) RegisterDriver(d ProviderDriver) {
	mr.mu.Lock()
	mr.drivers[d.Kind()] = d
	mr.mu.Unlock()
}

// GetDriver returns the driver for kind, or nil.
func (mr *ModelRouter) GetDriver(kind string) ProviderDriver {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.drivers[kind]
}

// AddProvider appends a provider to the fallback order.
func (mr *ModelRouter) AddProvider(p models.ModelProvider) {
	mr.mu.Lock()
	mr.providers = append(mr.providers, p)
	mr.mu.Unlock()
	log.Info().Str("provider", p.Name).Str("kind", p.Kind).Str("model", p.Model).Msg("Model provider configured")
}

// Providers returns the providers in fallback order.
func (mr *ModelRouter) Providers() []models.ModelProvider {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return append([]models.ModelProvider(nil), mr.providers...)
}

// Chat sends the request to each provider in order until one succeeds.
func (mr *ModelRouter) Chat(ctx context.Context, req *models.RouteRequest) (*models.RouteResponse, error) {
	providers := mr.Providers()
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if req.Temperature == nil && mr.temperature != nil {
		cp := *req
		cp.Temperature = mr.temperature
		req = &cp
	}

	var errs []error
	for i := range providers {
		provider := &providers[i]
		resp, err := mr.callProvider(ctx, provider, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().
			Str("provider", provider.Name).
			Str("kind", provider.Kind).
			Err(err).
			Msg("Provider call failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name, err))
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

func (mr *ModelRouter) callProvider(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error) {
	driver := mr.GetDriver(provider.Kind)
	if driver == nil {
		return nil, fmt.Errorf("no driver for provider kind %q", provider.Kind)
	}

	start := time.Now()
	resp, err := driver.Call(ctx, provider, req)
	if err != nil {
		return nil, err
	}

	resp.LatencyMs = time.Since(start).Milliseconds()
	return resp, nil
}

// HealthCheck checks every configured provider, keyed by provider name.
func (mr *ModelRouter) HealthCheck(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, p := range mr.Providers() {
		p := p
		driver := mr.GetDriver(p.Kind)
		if driver == nil {
			results[p.Name] = fmt.Errorf("no driver for provider kind %q", p.Kind)
			continue
		}
		results[p.Name] = driver.HealthCheck(ctx, &p)
	}
	return results
}
