package llm

import (
	"math/rand/v2"
	"time"
)

// RetryConfig holds per-endpoint retry settings.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per endpoint.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// DefaultRetryConfig returns the retry defaults for local model servers.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// backoff computes exponential backoff for an attempt with +/-25% jitter.
func (c RetryConfig) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}

	d := time.Duration(float64(c.BackoffBase) * multiplier)
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}

	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}
