package engine

import (
	"fmt"
	"time"
)

// Config holds engine configuration.
type Config struct {
	// FrameBuffer bounds undelivered output frames. A consumer that
	// falls behind loses frames rather than stalling recognition.
	FrameBuffer int `yaml:"frame_buffer" json:"frame_buffer"`

	// JobTimeout bounds one recognition job.
	JobTimeout time.Duration `yaml:"job_timeout" json:"job_timeout"`

	// CompleteTimeout bounds how long a frame's reading waits for its
	// recognition jobs before being default-filled.
	CompleteTimeout time.Duration `yaml:"complete_timeout" json:"complete_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FrameBuffer:     8,
		JobTimeout:      3 * time.Second,
		CompleteTimeout: 2 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.FrameBuffer <= 0 {
		return fmt.Errorf("engine: frame_buffer must be positive, got %d", c.FrameBuffer)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("engine: job_timeout must be positive, got %v", c.JobTimeout)
	}
	if c.CompleteTimeout <= 0 {
		return fmt.Errorf("engine: complete_timeout must be positive, got %v", c.CompleteTimeout)
	}
	return nil
}
