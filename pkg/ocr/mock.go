package ocr

import (
	"context"
	"sync"
	"time"
)

// MockRecognizer is a scripted recognizer for tests.
// Answers are matched by sub-image content; unmatched images fall back
// to the default answer.
type MockRecognizer struct {
	mu           sync.Mutex
	answers      map[string]mockAnswer
	byHint       map[string]mockAnswer
	fallbackText string
	fallbackErr  error
	delay        time.Duration
	calls        int
	closed       bool
}

type mockAnswer struct {
	text string
	err  error
}

// MockRecognizerOption configures a MockRecognizer.
type MockRecognizerOption func(*MockRecognizer)

// WithAnswer scripts the result for a specific image payload.
func WithAnswer(img []byte, text string, err error) MockRecognizerOption {
	return func(m *MockRecognizer) {
		m.answers[string(img)] = mockAnswer{text: text, err: err}
	}
}

// WithHintAnswer scripts the result for a specific hint value.
func WithHintAnswer(hint, text string, err error) MockRecognizerOption {
	return func(m *MockRecognizer) {
		m.byHint[hint] = mockAnswer{text: text, err: err}
	}
}

// WithDefault scripts the fallback result for unmatched images.
func WithDefault(text string, err error) MockRecognizerOption {
	return func(m *MockRecognizer) {
		m.fallbackText = text
		m.fallbackErr = err
	}
}

// WithDelay makes each Recognize call take at least d.
func WithDelay(d time.Duration) MockRecognizerOption {
	return func(m *MockRecognizer) {
		m.delay = d
	}
}

// NewMockRecognizer creates a scripted recognizer.
func NewMockRecognizer(opts ...MockRecognizerOption) *MockRecognizer {
	m := &MockRecognizer{
		answers: make(map[string]mockAnswer),
		byHint:  make(map[string]mockAnswer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Recognize returns the scripted answer for the image or hint.
func (m *MockRecognizer) Recognize(ctx context.Context, img []byte, hint string) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrRecognizerClosed
	}
	m.calls++
	ans, ok := m.answers[string(img)]
	if !ok {
		ans, ok = m.byHint[hint]
	}
	if !ok {
		ans = mockAnswer{text: m.fallbackText, err: m.fallbackErr}
	}
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	return ans.text, ans.err
}

// Calls returns how many times Recognize was invoked.
func (m *MockRecognizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the recognizer closed.
func (m *MockRecognizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockRecognizer implements Recognizer.
var _ Recognizer = (*MockRecognizer)(nil)
