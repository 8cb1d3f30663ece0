// Package audiolevel computes running power levels from the capture
// audio side-channel.
package audiolevel

import (
	"math"
	"sync"

	"github.com/koyakei/wind-meter-server/pkg/capture"
)

// SilenceFloorDB is the level reported for a silent or stopped stream.
const SilenceFloorDB = -96.0

// defaultSmoothing is the weight of the newest chunk in the running average.
const defaultSmoothing = 0.3

// ChannelLevel holds the running power levels of one channel, in dBFS.
type ChannelLevel struct {
	Average float64 `json:"average"`
	Peak    float64 `json:"peak"`
}

// Levels is a snapshot of per-channel power levels.
type Levels struct {
	Channels []ChannelLevel `json:"channels"`
}

// Meter maintains running average and peak power per channel.
// Process is called sequentially from the audio path only; Levels may be
// read concurrently from any goroutine.
type Meter struct {
	mu        sync.RWMutex
	levels    []ChannelLevel
	smoothing float64
	primed    bool
}

// NewMeter creates a meter with the default smoothing factor.
func NewMeter() *Meter {
	return &Meter{
		smoothing: defaultSmoothing,
	}
}

// Process updates the running levels from one audio chunk.
func (m *Meter) Process(chunk capture.AudioChunk) {
	if chunk.Channels <= 0 || len(chunk.Samples) < chunk.Channels {
		return
	}

	frames := len(chunk.Samples) / chunk.Channels
	avg := make([]float64, chunk.Channels)
	peak := make([]float64, chunk.Channels)

	for ch := 0; ch < chunk.Channels; ch++ {
		var sumSq float64
		var maxAbs float64
		for i := 0; i < frames; i++ {
			v := float64(chunk.Samples[i*chunk.Channels+ch]) / 32768.0
			sumSq += v * v
			if a := math.Abs(v); a > maxAbs {
				maxAbs = a
			}
		}
		avg[ch] = toDB(math.Sqrt(sumSq / float64(frames)))
		peak[ch] = toDB(maxAbs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.primed || len(m.levels) != chunk.Channels {
		m.levels = make([]ChannelLevel, chunk.Channels)
		for ch := range m.levels {
			m.levels[ch] = ChannelLevel{Average: avg[ch], Peak: peak[ch]}
		}
		m.primed = true
		return
	}

	for ch := range m.levels {
		m.levels[ch].Average = m.smoothing*avg[ch] + (1-m.smoothing)*m.levels[ch].Average
		if peak[ch] > m.levels[ch].Peak {
			m.levels[ch].Peak = peak[ch]
		}
	}
}

// ProcessSilence resets levels to the silence floor.
// A stream gap is not the same as a quiet chunk, so the prior average is
// discarded rather than blended toward zero.
func (m *Meter) ProcessSilence() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.levels {
		m.levels[ch] = ChannelLevel{Average: SilenceFloorDB, Peak: SilenceFloorDB}
	}
	m.primed = false
}

// Levels returns a snapshot of the current per-channel levels.
func (m *Meter) Levels() Levels {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ChannelLevel, len(m.levels))
	copy(out, m.levels)
	return Levels{Channels: out}
}

func toDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return SilenceFloorDB
	}
	db := 20 * math.Log10(amplitude)
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}
