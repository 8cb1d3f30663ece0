package ocr

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDigits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"7", "7"},
		{" 7 ", "7"},
		{"7.", "7"},
		{"The digit is 3", "3"},
		{"32.5", "325"},
		{"", ""},
		{"no digits here", ""},
	}

	for _, tt := range tests {
		if got := Digits(tt.in); got != tt.want {
			t.Errorf("Digits(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMockRecognizer_Answers(t *testing.T) {
	img := []byte("tens-cell")
	m := NewMockRecognizer(
		WithAnswer(img, "3", nil),
		WithHintAnswer("single digit", "5", nil),
		WithDefault("0", nil),
	)
	defer m.Close()

	ctx := context.Background()

	// Exact image match wins.
	if got, err := m.Recognize(ctx, img, "single digit"); err != nil || got != "3" {
		t.Errorf("Expected 3, got %q (%v)", got, err)
	}

	// Hint match when the image is unknown.
	if got, err := m.Recognize(ctx, []byte("other"), "single digit"); err != nil || got != "5" {
		t.Errorf("Expected 5, got %q (%v)", got, err)
	}

	// Fallback otherwise.
	if got, err := m.Recognize(ctx, []byte("other"), "no hint match"); err != nil || got != "0" {
		t.Errorf("Expected 0, got %q (%v)", got, err)
	}

	if got := m.Calls(); got != 3 {
		t.Errorf("Expected 3 calls, got %d", got)
	}
}

func TestMockRecognizer_ScriptedError(t *testing.T) {
	wantErr := errors.New("blurred")
	m := NewMockRecognizer(WithDefault("", wantErr))
	defer m.Close()

	if _, err := m.Recognize(context.Background(), []byte("x"), ""); !errors.Is(err, wantErr) {
		t.Fatalf("Expected scripted error, got %v", err)
	}
}

func TestMockRecognizer_DelayRespectsContext(t *testing.T) {
	m := NewMockRecognizer(WithDefault("9", nil), WithDelay(time.Second))
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Recognize(ctx, []byte("x"), "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Recognize did not honor the context deadline: %v", elapsed)
	}
}

func TestMockRecognizer_Closed(t *testing.T) {
	m := NewMockRecognizer(WithDefault("1", nil))
	m.Close()

	if _, err := m.Recognize(context.Background(), []byte("x"), ""); !errors.Is(err, ErrRecognizerClosed) {
		t.Fatalf("Expected ErrRecognizerClosed, got %v", err)
	}
}
