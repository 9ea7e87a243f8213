// Package testutil provides test doubles for the llm package.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/kbqa/llm"
)

// MockLLMClient is a thread-safe llm.Completer for tests.
//
// Handler, when set, computes each response from the request. Otherwise
// Responses are returned in sequence and an empty response after that.
// Err takes precedence over both.
type MockLLMClient struct {
	Handler   func(req llm.Request) (*llm.Response, error)
	Responses []*llm.Response
	Err       error

	mu            sync.Mutex
	requests      []llm.Request
	responseIndex int
}

var _ llm.Completer = (*MockLLMClient)(nil)

// Complete records the request and returns the configured response.
func (m *MockLLMClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Handler != nil {
		return m.Handler(req)
	}
	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// Requests returns a copy of every request received.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// CallCount returns the number of Complete calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset clears recorded requests and the response index.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.responseIndex = 0
}
