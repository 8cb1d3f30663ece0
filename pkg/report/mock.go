package report

import (
	"context"
	"sync"
)

// MockReporter records reports for tests.
type MockReporter struct {
	mu      sync.Mutex
	reports []string
	err     error
	notify  chan string
}

// NewMockReporter creates a recording reporter.
// Reports are also sent to the Notify channel (buffered, non-blocking).
func NewMockReporter() *MockReporter {
	return &MockReporter{
		notify: make(chan string, 16),
	}
}

// SetError makes subsequent Report calls fail with err.
func (m *MockReporter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Report records the display string.
func (m *MockReporter) Report(ctx context.Context, display string) error {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	m.reports = append(m.reports, display)
	m.mu.Unlock()

	select {
	case m.notify <- display:
	default:
	}
	return nil
}

// Reports returns a copy of everything reported so far.
func (m *MockReporter) Reports() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.reports))
	copy(out, m.reports)
	return out
}

// Notify returns a channel receiving each successful report.
func (m *MockReporter) Notify() <-chan string {
	return m.notify
}

// Ensure MockReporter implements Reporter.
var _ Reporter = (*MockReporter)(nil)
