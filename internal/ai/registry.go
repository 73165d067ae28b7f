package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

// Names lists registered providers in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Settings are the per-backend values needed by NewDefaultRegistry.
type Settings struct {
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string
	Sampling          Sampling
}

// NewDefaultRegistry registers ollama, openrouter and openai. An empty model
// passed to Get falls back to the configured one.
func NewDefaultRegistry(s Settings) *Registry {
	reg := NewRegistry()

	pick := func(model, fallback string) string {
		if m := strings.TrimSpace(model); m != "" {
			return m
		}
		return fallback
	}

	reg.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		p := NewOllamaProvider(s.OllamaBaseURL, pick(model, s.OllamaModel))
		p.Sampling = s.Sampling
		return p, nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		p := NewOpenRouterProvider(s.OpenRouterBaseURL, s.OpenRouterAPIKey, pick(model, s.OpenRouterModel), s.OpenRouterSiteURL, s.OpenRouterAppName)
		p.Sampling = s.Sampling
		return p, nil
	})
	reg.Register("openai", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		p := NewOpenAIProvider(s.OpenAIBaseURL, s.OpenAIAPIKey, pick(model, s.OpenAIModel))
		p.Sampling = s.Sampling
		return p, nil
	})
	return reg
}
