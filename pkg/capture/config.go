// Package capture adapts a push-based stream-capture session into a
// cancellable, backpressure-bounded stream of frame and audio events.
//
// A Source owns the underlying capture session (WebRTC in production,
// mock in tests) and delivers events through a Stream: a bounded
// single-writer, single-reader channel that never blocks the capture
// callback. Incomplete buffers are dropped silently; overruns are
// counted and dropped.
package capture

import (
	"fmt"
	"time"
)

// Config holds capture session configuration.
type Config struct {
	// Width and Height are the requested frame dimensions in pixels.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// Framerate is the requested frames per second.
	Framerate int `yaml:"framerate" json:"framerate"`

	// ContentScale is the backing-store scale of the captured content.
	ContentScale float64 `yaml:"content_scale" json:"content_scale"`

	// ScaleFactor maps captured pixels to display points.
	ScaleFactor float64 `yaml:"scale_factor" json:"scale_factor"`

	// EventBuffer is the bound on undelivered stream events.
	// When full, new events are dropped (never blocking the producer).
	EventBuffer int `yaml:"event_buffer" json:"event_buffer"`

	// AudioSampleRate is the expected sample rate of the audio side-channel.
	AudioSampleRate int `yaml:"audio_sample_rate" json:"audio_sample_rate"`

	// AudioChannels is the expected channel count of the audio side-channel.
	AudioChannels int `yaml:"audio_channels" json:"audio_channels"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Width:           1920,
		Height:          1080,
		Framerate:       30,
		ContentScale:    1.0,
		ScaleFactor:     1.0,
		EventBuffer:     32,
		AudioSampleRate: 48000,
		AudioChannels:   2,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("capture: dimensions must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Framerate <= 0 {
		return fmt.Errorf("capture: framerate must be positive, got %d", c.Framerate)
	}
	if c.ContentScale <= 0 || c.ScaleFactor <= 0 {
		return fmt.Errorf("capture: scales must be positive, got %v/%v", c.ContentScale, c.ScaleFactor)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("capture: event_buffer must be positive, got %d", c.EventBuffer)
	}
	return nil
}

// FrameInterval returns the nominal delay between frames.
func (c *Config) FrameInterval() time.Duration {
	if c.Framerate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Framerate)
}

// Filter selects which content the capture session delivers.
type Filter struct {
	// Producer is the name of the stream producer to attach to.
	Producer string `yaml:"producer" json:"producer"`

	// Window optionally narrows capture to a single window title.
	Window string `yaml:"window" json:"window"`
}
