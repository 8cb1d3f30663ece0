package capture

import (
	"image"
	"time"
)

// Frame is one decoded unit of video content plus its geometry metadata.
// A Frame is either fully valid or the zero-value invalid sentinel,
// never partially populated. The pipeline owns a Frame only for the
// duration of one recognition cycle.
type Frame struct {
	// Image is the encoded frame content (JPEG).
	Image []byte

	// ContentRect is the rectangle of meaningful content within the frame.
	ContentRect image.Rectangle

	// ContentScale is the backing-store scale of the content.
	ContentScale float64

	// ScaleFactor maps captured pixels to display points.
	ScaleFactor float64

	// Seq is the source-assigned sequence number.
	Seq uint64

	// Timestamp is the capture time.
	Timestamp time.Time
}

// InvalidFrame is the canonical invalid sentinel.
var InvalidFrame = Frame{}

// Valid reports whether the frame is fully populated.
func (f Frame) Valid() bool {
	return f.Image != nil && !f.ContentRect.Empty() && f.ContentScale > 0 && f.ScaleFactor > 0
}

// AudioChunk is a buffer of PCM16 samples from the capture audio path.
// It is consumed synchronously by the power meter and not retained.
type AudioChunk struct {
	// Samples contains interleaved PCM16 samples (little-endian).
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// Duration returns the play time of this chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(float64(frames) / float64(c.SampleRate) * float64(time.Second))
}

// FromBytes populates the chunk from raw PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Bytes returns the raw little-endian bytes of the chunk.
func (c AudioChunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}
