package model

import (
	"sync"
	"time"
)

// EndpointHealth is a snapshot of an endpoint's circuit breaker.
type EndpointHealth struct {
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	FailureCount    int       `json:"failure_count"`
	CircuitOpen     bool      `json:"circuit_open"`
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures the circuit breaker.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures before the circuit opens.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`

	// RecoveryTimeout is how long an open circuit stays closed to traffic.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
}

// DefaultHealthConfig returns the default circuit breaker settings.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

type healthState struct {
	mu       sync.Mutex
	config   HealthConfig
	statuses map[string]*EndpointHealth
	now      func() time.Time
}

func newHealthState(cfg HealthConfig) *healthState {
	return &healthState{
		config:   cfg,
		statuses: make(map[string]*EndpointHealth),
		now:      time.Now,
	}
}

// tracker returns the registry's health state, creating it on first use.
func (r *Registry) tracker() *healthState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.health == nil {
		r.health = newHealthState(DefaultHealthConfig())
	}
	return r.health
}

// MarkEndpointSuccess closes the circuit of an endpoint.
func (r *Registry) MarkEndpointSuccess(name string) {
	h := r.tracker()
	h.mu.Lock()
	defer h.mu.Unlock()

	h.statuses[name] = &EndpointHealth{LastSuccess: h.now()}
}

// MarkEndpointFailure records a failed request and opens the circuit once the
// failure threshold is reached.
func (r *Registry) MarkEndpointFailure(name string) {
	h := r.tracker()
	h.mu.Lock()
	defer h.mu.Unlock()

	status, ok := h.statuses[name]
	if !ok {
		status = &EndpointHealth{}
		h.statuses[name] = status
	}

	now := h.now()
	status.LastFailure = now
	status.FailureCount++
	if status.FailureCount >= h.config.FailureThreshold && !status.CircuitOpen {
		status.CircuitOpen = true
		status.CircuitOpenedAt = now
	}
}

// IsEndpointAvailable reports whether requests may be sent to an endpoint.
// An open circuit lets one trial request through after the recovery timeout.
func (r *Registry) IsEndpointAvailable(name string) bool {
	h := r.tracker()
	h.mu.Lock()
	defer h.mu.Unlock()

	status, ok := h.statuses[name]
	if !ok || !status.CircuitOpen {
		return true
	}
	return h.now().Sub(status.CircuitOpenedAt) > h.config.RecoveryTimeout
}

// GetEndpointHealth returns a copy of the endpoint's health, or nil if it
// has never been used.
func (r *Registry) GetEndpointHealth(name string) *EndpointHealth {
	h := r.tracker()
	h.mu.Lock()
	defer h.mu.Unlock()

	status, ok := h.statuses[name]
	if !ok {
		return nil
	}
	snapshot := *status
	return &snapshot
}

// GetAvailableFallbackChain returns the fallback chain without endpoints whose
// circuit is open. When every endpoint is open the full chain is returned.
func (r *Registry) GetAvailableFallbackChain(cap Capability) []string {
	chain := r.GetFallbackChain(cap)
	available := make([]string, 0, len(chain))
	for _, name := range chain {
		if r.IsEndpointAvailable(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return chain
	}
	return available
}
