// Package ocr defines the text-recognition boundary of the pipeline.
// The recognition capability itself is external: a Recognizer takes an
// image region and returns its best candidate string, or empty when
// nothing was recognized.
package ocr

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for common conditions.
var (
	// ErrNoCandidates is returned when recognition produced no text.
	ErrNoCandidates = errors.New("ocr: no candidates")

	// ErrRecognizerClosed is returned when using a closed recognizer.
	ErrRecognizerClosed = errors.New("ocr: recognizer closed")
)

// Recognizer recognizes text in one image region.
type Recognizer interface {
	// Recognize returns the best candidate string for the image, or an
	// empty string when nothing was recognized. hint optionally narrows
	// the expected content (e.g., a language or "digits").
	Recognize(ctx context.Context, img []byte, hint string) (string, error)

	// Close releases resources.
	Close() error
}

// Digits keeps only the decimal digits of a recognition candidate.
// Meter cells hold single digits; stray punctuation and whitespace from
// the recognizer are noise.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
