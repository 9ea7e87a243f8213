package model

import (
	"sort"
	"sync"
)

// Registry manages model selection based on capabilities.
// It maps capabilities to preferred models with fallback chains.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaults     *DefaultsConfig
	health       *healthState
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Description explains what this capability is for.
	Description string `yaml:"description" json:"description"`

	// Preferred lists models in order of preference.
	Preferred []string `yaml:"preferred" json:"preferred"`

	// Fallback lists backup models if all preferred fail.
	Fallback []string `yaml:"fallback" json:"fallback"`

	// Temperature is the sampling temperature for this capability. nil uses the endpoint default.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens limits the generated tokens. 0 uses the endpoint default.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the model provider (llamacpp, ollama, openai).
	Provider string `yaml:"provider" json:"provider"`

	// URL is the OpenAI-compatible API base URL.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Model is the actual model identifier to send to the provider.
	Model string `yaml:"model" json:"model"`

	// ContextWindow is the model context size in tokens.
	ContextWindow int `yaml:"context_window,omitempty" json:"context_window,omitempty"`
}

// DefaultsConfig holds default model settings.
type DefaultsConfig struct {
	// Model is the default model when no capability matches.
	Model string `yaml:"model" json:"model"`
}

// NewRegistry creates a new model registry with the given configuration.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults: &DefaultsConfig{
			Model: "default",
		},
	}
}

// NewDefaultRegistry creates a registry for a local llama.cpp server.
func NewDefaultRegistry() *Registry {
	return registryFromConfig(DefaultConfig())
}

// Resolve returns the preferred model for a capability.
func (r *Registry) Resolve(cap Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Model
}

// GetCapability returns the configuration of a capability, or nil.
func (r *Registry) GetCapability(cap Capability) *CapabilityConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.capabilities[cap]
}

// GetFallbackChain returns all models for a capability in order of preference.
func (r *Registry) GetFallbackChain(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaults.Model}
}

// GetEndpoint returns the endpoint configuration for a model name.
// Returns nil if the model is not configured.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[modelName]
}

// ListEndpoints returns all configured endpoint names, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
