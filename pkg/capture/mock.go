package capture

import (
	"context"
	"image"
	"math"
	"sync"
	"time"
)

// MockSource is a capture source for testing.
// It synthesizes video frames and audio chunks (silence or sine wave)
// on the configured cadence, or replays scripted frames.
type MockSource struct {
	mu        sync.Mutex
	cfg       Config
	filter    Filter
	stream    *Stream
	stopCh    chan struct{}
	streaming bool
	closed    bool

	// Scripted frames. When set, each is pushed once in order and the
	// source then idles until stopped.
	frames []Frame

	// Synthetic audio generation.
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithFrames scripts the exact frames the source will deliver.
func WithFrames(frames []Frame) MockOption {
	return func(m *MockSource) {
		m.frames = frames
	}
}

// WithTone configures the mock audio path to generate a sine wave.
func WithTone(frequency, amplitude float64) MockOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMockSource creates a new mock capture source.
func NewMockSource(opts ...MockOption) *MockSource {
	m := &MockSource{
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins synthetic capture.
func (m *MockSource) Start(ctx context.Context, cfg Config, filter Filter) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSourceClosed
	}
	if m.streaming {
		return nil, ErrAlreadyStreaming
	}

	m.cfg = cfg
	m.filter = filter
	m.stream = NewStream(cfg.EventBuffer)
	m.stopCh = make(chan struct{})
	m.streaming = true

	go m.generateLoop(ctx, m.stream, m.stopCh)

	return m.stream, nil
}

func (m *MockSource) generateLoop(ctx context.Context, stream *Stream, stopCh chan struct{}) {
	m.mu.Lock()
	interval := m.cfg.FrameInterval()
	scripted := m.frames
	m.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if scripted != nil {
				if int(seq) < len(scripted) {
					f := scripted[seq]
					f.Seq = seq
					stream.PushVideo(f, StatusComplete)
					seq++
				}
			} else {
				stream.PushVideo(m.syntheticFrame(seq), StatusComplete)
				seq++
			}
			stream.PushAudio(m.syntheticChunk(interval), StatusComplete)
		}
	}
}

func (m *MockSource) syntheticFrame(seq uint64) Frame {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	// Payload content is irrelevant to the adapter; a small marker
	// keeps frames distinguishable in tests.
	payload := []byte{0xFF, 0xD8, byte(seq >> 8), byte(seq), 0xFF, 0xD9}
	return Frame{
		Image:        payload,
		ContentRect:  image.Rect(0, 0, cfg.Width, cfg.Height),
		ContentScale: cfg.ContentScale,
		ScaleFactor:  cfg.ScaleFactor,
		Seq:          seq,
		Timestamp:    time.Now(),
	}
}

func (m *MockSource) syntheticChunk(interval time.Duration) AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := int(float64(m.cfg.AudioSampleRate) * interval.Seconds())
	samples := make([]int16, frames*m.cfg.AudioChannels)

	if m.frequency > 0 {
		for i := 0; i < frames; i++ {
			v := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.AudioSampleRate))
			s := int16(v * 32767)
			for ch := 0; ch < m.cfg.AudioChannels; ch++ {
				samples[i*m.cfg.AudioChannels+ch] = s
			}
			m.phase++
			if m.phase >= float64(m.cfg.AudioSampleRate) {
				m.phase = 0
			}
		}
	}
	// else: samples stay zero (silence)

	return AudioChunk{
		Samples:    samples,
		SampleRate: m.cfg.AudioSampleRate,
		Channels:   m.cfg.AudioChannels,
	}
}

// Stop halts capture and finalizes the stream with a normal completion.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.streaming {
		return nil
	}
	m.streaming = false
	close(m.stopCh)
	m.stream.Close()
	return nil
}

// Reconfigure applies a new configuration to the running session.
func (m *MockSource) Reconfigure(cfg Config, filter Filter) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.streaming {
		return ErrNotStreaming
	}
	m.cfg = cfg
	m.filter = filter
	return nil
}

// Fail injects a stream fault, for tests.
func (m *MockSource) Fail(err error) {
	m.mu.Lock()
	stream := m.stream
	streaming := m.streaming
	if streaming {
		m.streaming = false
		close(m.stopCh)
	}
	m.mu.Unlock()

	if stream != nil {
		stream.Fail(err)
	}
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases the source. After Close it cannot be restarted.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Ensure MockSource implements Source.
var _ Source = (*MockSource)(nil)
