package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/wolfbot/internal/dependencies/ids"
)

// MockIDs is a deterministic Generator for testing
type MockIDs struct {
	mu sync.Mutex

	// Queued results are returned first, then prefix + counter
	Queued  []string
	counter int
}

// Ensure MockIDs implements Generator
var _ ids.Generator = (*MockIDs)(nil)

// NewMockIDs creates a new MockIDs
func NewMockIDs() *MockIDs {
	return &MockIDs{}
}

// New returns the next queued id, or prefix followed by a counter
func (m *MockIDs) New(prefix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Queued) > 0 {
		id := m.Queued[0]
		m.Queued = m.Queued[1:]
		return id
	}
	m.counter++
	return fmt.Sprintf("%s%d", prefix, m.counter)
}

// Queue adds ids to be returned before generated ones
func (m *MockIDs) Queue(values ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queued = append(m.Queued, values...)
}
