// Package registry owns provider instances. Providers are constructed
// lazily, at most once per process, and the aggregate model catalog is
// cached on disk to keep repeat invocations fast.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-ai/nexus/internal/cache"
	"github.com/nexus-ai/nexus/internal/config"
	"github.com/nexus-ai/nexus/internal/nexuserr"
	"github.com/nexus-ai/nexus/internal/provider"
)

const (
	modelsCacheKey = "all_models"
	modelsCacheTTL = time.Hour
)

// Sentinel results for model resolution. Ambiguity is distinct from absence
// so callers can tell the user to qualify the provider.
var (
	ErrModelNotFound  = errors.New("model not found")
	ErrModelAmbiguous = errors.New("model id is ambiguous across providers")
)

// Builder constructs a provider from its config block.
type Builder func(*config.ProviderConfig) provider.Provider

// defaultBuilders maps provider names to constructors in registration order.
func defaultBuilders() map[string]Builder {
	return map[string]Builder{
		"openai": func(pc *config.ProviderConfig) provider.Provider {
			return provider.NewOpenAI(settings(pc))
		},
		"anthropic": func(pc *config.ProviderConfig) provider.Provider {
			return provider.NewAnthropic(settings(pc))
		},
		"ollama": func(pc *config.ProviderConfig) provider.Provider {
			return provider.NewOllama(settings(pc))
		},
		"openrouter": func(pc *config.ProviderConfig) provider.Provider {
			return provider.NewOpenRouter(settings(pc))
		},
	}
}

func settings(pc *config.ProviderConfig) provider.Settings {
	return provider.Settings{
		Enabled: pc.Enabled,
		APIKey:  pc.APIKey(),
		BaseURL: pc.BaseURL,
		Timeout: pc.Timeout(),
	}
}

// registrationOrder fixes the provider iteration order everywhere a "first
// match wins" contract applies.
var registrationOrder = []string{"openai", "anthropic", "ollama", "openrouter"}

// Registry lazily constructs and memoizes one provider instance per name.
// Not safe for concurrent use; the CLI handles one request at a time.
type Registry struct {
	cfg       *config.Config
	cache     *cache.Manager
	builders  map[string]Builder
	order     []string
	instances map[string]provider.Provider
}

// New creates a registry over the given config, caching model lists under
// the config's cache directory.
func New(cfg *config.Config) *Registry {
	return &Registry{
		cfg:       cfg,
		cache:     cache.NewManager(cfg.CacheDir()),
		builders:  defaultBuilders(),
		order:     registrationOrder,
		instances: make(map[string]provider.Provider),
	}
}

// SetBuilder replaces the constructor for a provider name. Tests use this to
// install fakes; adding a name extends the registration order.
func (r *Registry) SetBuilder(name string, b Builder) {
	if _, known := r.builders[name]; !known {
		r.order = append(r.order, name)
	}
	r.builders[name] = b
	delete(r.instances, name)
}

// ListProviders returns the names of providers enabled in config, in
// registration order, without instantiating them.
func (r *Registry) ListProviders() []string {
	var enabled []string
	for _, name := range r.order {
		if r.cfg.Provider(name).Enabled {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// Provider returns the memoized instance for name, constructing it on first
// use. Returns nil for unknown or disabled providers and for providers whose
// construction yields an unavailable client.
func (r *Registry) Provider(name string) provider.Provider {
	if p, ok := r.instances[name]; ok {
		return p
	}
	builder, ok := r.builders[name]
	if !ok {
		return nil
	}
	pc := r.cfg.Provider(name)
	if !pc.Enabled {
		return nil
	}
	p := builder(pc)
	if !p.IsAvailable() {
		log.Warn().Str("provider", name).
			Msg("provider is enabled but not available (check configuration/API keys)")
		return nil
	}
	r.instances[name] = p
	log.Debug().Str("provider", name).Msg("initialized provider")
	return p
}

// ListAllModels aggregates the catalogs of every enabled provider. With
// useCache, a fresh cached aggregate (1h TTL) short-circuits the network.
// Provider failures are isolated: a failing provider contributes nothing and
// does not block the rest.
func (r *Registry) ListAllModels(ctx context.Context, useCache bool) map[string][]provider.ModelInfo {
	if useCache {
		if cached := r.cachedModels(); cached != nil {
			return cached
		}
	}

	all := make(map[string][]provider.ModelInfo)
	for _, name := range r.ListProviders() {
		p := r.Provider(name)
		if p == nil {
			continue
		}
		if models := p.ListModels(ctx); len(models) > 0 {
			all[name] = models
		}
	}

	if len(all) > 0 {
		r.cache.Set(modelsCacheKey, all)
	}
	return all
}

// ListAllModelsFast trades completeness for latency: the local provider is
// listed fully (local listing is cheap), remote providers are only probed
// for availability and recorded with an empty model list as a presence
// marker. A fast aggregate is therefore not a subset of the full one; remote
// entries appear with [] rather than being omitted.
func (r *Registry) ListAllModelsFast(ctx context.Context, useCache bool) map[string][]provider.ModelInfo {
	if useCache {
		if cached := r.cachedModels(); cached != nil {
			return cached
		}
	}

	all := make(map[string][]provider.ModelInfo)
	for _, name := range r.ListProviders() {
		p := r.Provider(name)
		if p == nil {
			continue
		}
		if name == "ollama" {
			if models := p.ListModels(ctx); len(models) > 0 {
				all[name] = models
			}
			continue
		}
		if p.IsAvailable() {
			all[name] = []provider.ModelInfo{}
		}
	}

	if len(all) > 0 {
		r.cache.Set(modelsCacheKey, all)
	}
	return all
}

func (r *Registry) cachedModels() map[string][]provider.ModelInfo {
	var cached map[string][]provider.ModelInfo
	if r.cache.GetJSON(modelsCacheKey, modelsCacheTTL, &cached) && len(cached) > 0 {
		log.Debug().Msg("returning cached models")
		return cached
	}
	return nil
}

// FindModel searches one provider (when providerName is set) or all enabled
// providers for a model matching by id or display name. First match wins, in
// registration order then catalog order. ok=false means no match.
func (r *Registry) FindModel(ctx context.Context, modelID, providerName string) (string, provider.ModelInfo, bool) {
	names := r.ListProviders()
	if providerName != "" {
		names = []string{providerName}
	}
	for _, name := range names {
		p := r.Provider(name)
		if p == nil {
			continue
		}
		for _, m := range p.ListModels(ctx) {
			if m.ID == modelID || m.Name == modelID {
				return name, m, true
			}
		}
	}
	return "", provider.ModelInfo{}, false
}

// ResolveModel resolves a model id to a single provider. A bare id exposed
// by more than one enabled provider is an error distinct from absence, so
// the caller can ask the user to qualify with --provider.
func (r *Registry) ResolveModel(ctx context.Context, modelID, providerName string) (string, provider.ModelInfo, error) {
	if providerName != "" {
		name, m, ok := r.FindModel(ctx, modelID, providerName)
		if !ok {
			return "", provider.ModelInfo{}, nexuserr.Wrap(nexuserr.CategoryConfig,
				fmt.Sprintf("model %q not found in provider %q", modelID, providerName), ErrModelNotFound)
		}
		return name, m, nil
	}

	type match struct {
		provider string
		model    provider.ModelInfo
	}
	var matches []match
	for _, name := range r.ListProviders() {
		p := r.Provider(name)
		if p == nil {
			continue
		}
		for _, m := range p.ListModels(ctx) {
			if m.ID == modelID || m.Name == modelID {
				matches = append(matches, match{provider: name, model: m})
				break
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", provider.ModelInfo{}, nexuserr.Wrap(nexuserr.CategoryConfig,
			fmt.Sprintf("model %q not found in any enabled provider", modelID), ErrModelNotFound)
	case 1:
		return matches[0].provider, matches[0].model, nil
	default:
		var names []string
		for _, m := range matches {
			names = append(names, m.provider)
		}
		sort.Strings(names)
		return "", provider.ModelInfo{}, nexuserr.Wrap(nexuserr.CategoryUsage,
			fmt.Sprintf("model %q is exposed by multiple providers (%s)",
				modelID, strings.Join(names, ", ")), ErrModelAmbiguous).
			WithHint("qualify the model with --provider")
	}
}
