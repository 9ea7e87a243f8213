package model

import "fmt"

// RegistryConfig is the serialized form of a Registry.
// It appears under "model" in kbqa.yaml.
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `yaml:"capabilities" json:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `yaml:"endpoints" json:"endpoints"`
	Defaults     *DefaultsConfig              `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Health       *HealthConfig                `yaml:"health,omitempty" json:"health,omitempty"`
}

func float64Ptr(v float64) *float64 { return &v }

// DefaultConfig returns a registry config for a local llama.cpp server running
// Mistral 7B Instruct, with Ollama as fallback.
func DefaultConfig() *RegistryConfig {
	capability := func(desc string) *CapabilityConfig {
		return &CapabilityConfig{
			Description: desc,
			Preferred:   []string{"mistral-7b"},
			Fallback:    []string{"ollama-mistral"},
			Temperature: float64Ptr(0.1),
			MaxTokens:   256,
		}
	}

	return &RegistryConfig{
		Capabilities: map[string]*CapabilityConfig{
			string(CapabilityExtraction): capability("Triplet extraction while building the graph"),
			string(CapabilityKeywords):   capability("Keyword and synonym expansion of questions"),
			string(CapabilityAnswering):  capability("Answer synthesis over retrieved graph context"),
		},
		Endpoints: map[string]*EndpointConfig{
			"mistral-7b": {
				Provider:      "llamacpp",
				URL:           "http://localhost:8080/v1",
				Model:         "mistral-7b-instruct-v0.3.Q2_K.gguf",
				ContextWindow: 12000,
			},
			"ollama-mistral": {
				Provider:      "ollama",
				URL:           "http://localhost:11434/v1",
				Model:         "mistral:7b-instruct",
				ContextWindow: 12000,
			},
		},
		Defaults: &DefaultsConfig{Model: "mistral-7b"},
	}
}

// NewFromConfig builds a registry from its serialized form. An empty config
// yields the default registry.
func NewFromConfig(cfg *RegistryConfig) *Registry {
	if cfg == nil {
		return NewDefaultRegistry()
	}
	if len(cfg.Capabilities) == 0 && len(cfg.Endpoints) == 0 {
		defaults := DefaultConfig()
		defaults.Health = cfg.Health
		return registryFromConfig(defaults)
	}
	return registryFromConfig(cfg)
}

func registryFromConfig(cfg *RegistryConfig) *Registry {
	caps := make(map[Capability]*CapabilityConfig, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		caps[Capability(k)] = v
	}

	endpoints := cfg.Endpoints
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}

	defaults := cfg.Defaults
	if defaults == nil {
		defaults = &DefaultsConfig{Model: "default"}
	}

	r := &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults:     defaults,
	}
	if cfg.Health != nil {
		r.health = newHealthState(*cfg.Health)
	}
	return r
}

// Validate checks that every capability is known and that every model it
// names has an endpoint.
func (c *RegistryConfig) Validate() error {
	for name, cap := range c.Capabilities {
		if !Capability(name).IsValid() {
			return fmt.Errorf("unknown capability %q", name)
		}
		if cap == nil {
			return fmt.Errorf("capability %s: preferred models are required", name)
		}
		for _, m := range append(append([]string{}, cap.Preferred...), cap.Fallback...) {
			if _, ok := c.Endpoints[m]; !ok {
				return fmt.Errorf("capability %s: model %q has no endpoint", name, m)
			}
		}
	}
	for name, ep := range c.Endpoints {
		if ep == nil || ep.Model == "" {
			return fmt.Errorf("endpoint %s: model is required", name)
		}
	}
	if c.Health != nil && (c.Health.FailureThreshold <= 0 || c.Health.RecoveryTimeout <= 0) {
		return fmt.Errorf("health: failure_threshold and recovery_timeout must be positive")
	}
	return nil
}
