package model

import (
	"reflect"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	for _, cap := range []Capability{CapabilityExtraction, CapabilityKeywords, CapabilityAnswering} {
		if got := r.Resolve(cap); got != "mistral-7b" {
			t.Errorf("Resolve(%s) = %q, want mistral-7b", cap, got)
		}
		cfg := r.GetCapability(cap)
		if cfg == nil {
			t.Fatalf("capability %s not configured", cap)
		}
		if cfg.Temperature == nil || *cfg.Temperature != 0.1 {
			t.Errorf("%s temperature = %v, want 0.1", cap, cfg.Temperature)
		}
		if cfg.MaxTokens != 256 {
			t.Errorf("%s max tokens = %d, want 256", cap, cfg.MaxTokens)
		}
	}

	ep := r.GetEndpoint("mistral-7b")
	if ep == nil {
		t.Fatal("mistral-7b endpoint missing")
	}
	if ep.Provider != "llamacpp" {
		t.Errorf("provider = %q, want llamacpp", ep.Provider)
	}
	if ep.Model != "mistral-7b-instruct-v0.3.Q2_K.gguf" {
		t.Errorf("model = %q", ep.Model)
	}
	if ep.ContextWindow != 12000 {
		t.Errorf("context window = %d, want 12000", ep.ContextWindow)
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestGetFallbackChain(t *testing.T) {
	r := NewRegistry(map[Capability]*CapabilityConfig{
		CapabilityAnswering: {Preferred: []string{"a", "b"}, Fallback: []string{"c"}},
	}, nil)

	got := r.GetFallbackChain(CapabilityAnswering)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}

	// Unconfigured capability falls back to the default model.
	got = r.GetFallbackChain(CapabilityKeywords)
	if want := []string{"default"}; !reflect.DeepEqual(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}
	if got := r.Resolve(CapabilityKeywords); got != "default" {
		t.Errorf("Resolve = %q, want default", got)
	}
}

func TestListEndpoints(t *testing.T) {
	r := NewFromConfig(&RegistryConfig{
		Endpoints: map[string]*EndpointConfig{
			"x": {Provider: "openai", Model: "gpt-4o-mini"},
			"a": {Provider: "ollama", Model: "mistral"},
		},
	})

	if got := r.ListEndpoints(); !reflect.DeepEqual(got, []string{"a", "x"}) {
		t.Errorf("ListEndpoints = %v", got)
	}
	if ep := r.GetEndpoint("missing"); ep != nil {
		t.Errorf("expected nil endpoint, got %+v", ep)
	}
}
