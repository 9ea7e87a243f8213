package model

import (
	"reflect"
	"testing"
	"time"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(cfg HealthConfig) (*Registry, *fakeClock) {
	r := NewFromConfig(&RegistryConfig{Health: &cfg})
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r.tracker().now = clock.now
	return r, clock
}

func TestEndpointHealthTracking(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("mistral-7b") {
		t.Error("expected endpoint to be available initially")
	}
	if h := r.GetEndpointHealth("mistral-7b"); h != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("mistral-7b")

	h := r.GetEndpointHealth("mistral-7b")
	if h == nil {
		t.Fatal("expected health info after success")
	}
	if h.FailureCount != 0 || h.CircuitOpen {
		t.Errorf("unexpected health after success: %+v", h)
	}
	if h.LastSuccess.IsZero() {
		t.Error("expected last success to be set")
	}
}

func TestCircuitBreaker(t *testing.T) {
	r, clock := newTestRegistry(HealthConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})

	r.MarkEndpointFailure("mistral-7b")
	if !r.IsEndpointAvailable("mistral-7b") {
		t.Error("expected endpoint available after 1 failure")
	}

	r.MarkEndpointFailure("mistral-7b")
	if r.IsEndpointAvailable("mistral-7b") {
		t.Error("expected circuit open after 2 failures")
	}

	clock.advance(2 * time.Minute)
	if !r.IsEndpointAvailable("mistral-7b") {
		t.Error("expected a trial request to be allowed after recovery timeout")
	}

	r.MarkEndpointSuccess("mistral-7b")
	h := r.GetEndpointHealth("mistral-7b")
	if h.CircuitOpen || h.FailureCount != 0 {
		t.Errorf("expected closed circuit after success, got %+v", h)
	}
}

func TestGetAvailableFallbackChain(t *testing.T) {
	r, _ := newTestRegistry(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("mistral-7b")
	got := r.GetAvailableFallbackChain(CapabilityAnswering)
	if want := []string{"ollama-mistral"}; !reflect.DeepEqual(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}

	// All open: the full chain comes back.
	r.MarkEndpointFailure("ollama-mistral")
	got = r.GetAvailableFallbackChain(CapabilityAnswering)
	if want := []string{"mistral-7b", "ollama-mistral"}; !reflect.DeepEqual(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}
}
