package cursor

import "sync"

// MockInjector records every primitive for inspection in tests. Unlike the
// production backends it is safe for concurrent use, since tests may poll
// it while a loop goroutine is injecting.
type MockInjector struct {
	mu sync.Mutex

	// MoveErr and ClickErr, when set, are returned by the corresponding
	// primitive to simulate backend failure.
	MoveErr  error
	ClickErr error

	moves  [][2]int
	clicks int
}

func NewMockInjector() *MockInjector { return &MockInjector{} }

func (m *MockInjector) Name() string { return "mock" }

func (m *MockInjector) MoveCursorAbsolute(x, y int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MoveErr != nil {
		return m.MoveErr
	}
	m.moves = append(m.moves, [2]int{x, y})
	return nil
}

func (m *MockInjector) ClickAtCurrentPosition() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClickErr != nil {
		return m.ClickErr
	}
	m.clicks++
	return nil
}

// Moves returns a copy of the recorded move coordinates in order.
func (m *MockInjector) Moves() [][2]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][2]int, len(m.moves))
	copy(out, m.moves)
	return out
}

// Clicks returns the number of recorded clicks.
func (m *MockInjector) Clicks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clicks
}
