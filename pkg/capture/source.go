package capture

import (
	"context"
	"errors"
)

// Common errors returned by sources.
var (
	// ErrAlreadyStreaming is returned when Start is called while a
	// stream is outstanding. A source rejects a second session rather
	// than silently replacing it.
	ErrAlreadyStreaming = errors.New("capture: source already streaming")

	// ErrNotStreaming is returned by Reconfigure when no session is active.
	ErrNotStreaming = errors.New("capture: source not streaming")

	// ErrSourceClosed is returned when using a closed source.
	ErrSourceClosed = errors.New("capture: source closed")
)

// Source owns an underlying capture session and exposes it as a Stream.
type Source interface {
	// Start begins capture and returns the event stream.
	// Exactly one stream may be outstanding per source; a second Start
	// while streaming returns ErrAlreadyStreaming.
	Start(ctx context.Context, cfg Config, filter Filter) (*Stream, error)

	// Stop terminates the session and finalizes the stream.
	// It is idempotent and releases the underlying session before returning.
	Stop() error

	// Reconfigure applies a new configuration to the running session.
	// Failures leave the session on its prior configuration.
	Reconfigure(cfg Config, filter Filter) error

	// Name returns the backend name (e.g., "webrtc", "mock").
	Name() string
}
