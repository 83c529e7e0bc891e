// Package mock provides a scripted code-generation provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/foreman/provider"
)

const defaultResponse = "Task acknowledged. Working on it."

// MockProvider implements provider.Provider for testing.
// It cycles through scripted responses and records the prompts it received.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	idx       int
	prompts   []string
	err       error
}

// New creates a MockProvider that cycles through the given responses.
func New(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return "mock" }

// Fail makes every subsequent Generate call return err.
func (m *MockProvider) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Prompts returns every prompt Generate has received, in order.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Generate returns the next scripted response, cycling through the queue.
func (m *MockProvider) Generate(_ context.Context, req provider.Request) (*provider.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, req.Prompt)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &provider.Response{Content: defaultResponse}, nil
	}
	resp := m.responses[m.idx%len(m.responses)]
	m.idx++
	return &provider.Response{
		Content: resp,
		Usage:   provider.Usage{OutputTokens: len(resp)},
	}, nil
}
