package capture

import (
	"bytes"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// frameDecoder converts accumulated H264 NAL units into JPEG frames
// using a one-shot ffmpeg invocation over pipes. Decoding is rate
// limited so a fast track cannot outrun the recognizer.
type frameDecoder struct {
	mu          sync.Mutex
	lastDecode  time.Time
	minInterval time.Duration
}

func newFrameDecoder(minInterval time.Duration) *frameDecoder {
	return &frameDecoder{
		minInterval: minInterval,
	}
}

// decodeNAL decodes H264 NAL units to a JPEG image.
// Returns nil (no error) when rate limited or when ffmpeg could not
// assemble a frame from the data.
func (d *frameDecoder) decodeNAL(nalData []byte) ([]byte, error) {
	if len(nalData) < 100 {
		return nil, nil
	}

	d.mu.Lock()
	if time.Since(d.lastDecode) < d.minInterval {
		d.mu.Unlock()
		return nil, nil
	}
	d.lastDecode = time.Now()
	d.mu.Unlock()

	cmd := exec.Command("ffmpeg",
		"-f", "h264", // Input format
		"-i", "pipe:0", // Read from stdin
		"-vframes", "1", // Just one frame
		"-f", "image2pipe", // Output as pipe
		"-vcodec", "mjpeg", // Output as JPEG
		"-q:v", "3", // Quality (1-31, lower is better)
		"pipe:1", // Write to stdout
	)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		stdin.Write(nalData)
		stdin.Close()
	}()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			// ffmpeg exits non-zero when the data holds no full frame.
			return nil, nil
		}
	case <-time.After(200 * time.Millisecond):
		cmd.Process.Kill()
		<-done
		return nil, nil
	}

	jpeg := stdout.Bytes()
	if len(jpeg) < 1000 {
		return nil, nil
	}
	return jpeg, nil
}
