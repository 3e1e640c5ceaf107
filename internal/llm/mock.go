package llm

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a scriptable Provider for tests. Responses are keyed by
// task kind; generation returns GenerateText or echoes the template.
type MockProvider struct {
	mu sync.Mutex

	Classifications map[TaskKind]*Classification
	ClassifyErr     error
	GenerateText    string
	GenerateErr     error
	Delay           time.Duration

	ClassifyCalls []ClassifyRequest
	GenerateCalls []GenerateRequest
}

// NewMockProvider creates an empty mock.
func NewMockProvider() *MockProvider {
	return &MockProvider{Classifications: make(map[TaskKind]*Classification)}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return "mock" }

// Classify returns the scripted classification for the request's kind.
func (m *MockProvider) Classify(ctx context.Context, req *ClassifyRequest) (*Classification, error) {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	m.mu.Lock()
	m.ClassifyCalls = append(m.ClassifyCalls, *req)
	m.mu.Unlock()

	if m.ClassifyErr != nil {
		return nil, m.ClassifyErr
	}
	if c, ok := m.Classifications[req.Kind]; ok {
		return c, nil
	}
	return &Classification{Label: "chat", Confidence: 0.5}, nil
}

// Generate returns the scripted text.
func (m *MockProvider) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, *req)
	m.mu.Unlock()

	if m.GenerateErr != nil {
		return "", m.GenerateErr
	}
	if m.GenerateText != "" {
		return m.GenerateText, nil
	}
	return Render(req.Template, req.Vars), nil
}

// CallCount returns how many classification calls of a kind were made.
func (m *MockProvider) CallCount(kind TaskKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.ClassifyCalls {
		if call.Kind == kind {
			n++
		}
	}
	return n
}
