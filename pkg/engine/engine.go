// Package engine orchestrates the capture-to-recognition pipeline: it
// owns the capture source, power meter, region extractor, recognizer,
// and reading aggregator, and exposes one asynchronous sequence of
// validated frames for downstream rendering.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/koyakei/wind-meter-server/internal/log"
	"github.com/koyakei/wind-meter-server/pkg/audiolevel"
	"github.com/koyakei/wind-meter-server/pkg/capture"
	"github.com/koyakei/wind-meter-server/pkg/ocr"
	"github.com/koyakei/wind-meter-server/pkg/reading"
	"github.com/koyakei/wind-meter-server/pkg/region"
	"github.com/koyakei/wind-meter-server/pkg/report"
)

// Common errors returned by the engine.
var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("engine: already running")
)

// Extractor crops a frame into per-field sub-images.
// *region.Extractor is the production implementation.
type Extractor interface {
	Extract(frame capture.Frame) map[region.Field][]byte
}

// Stats counts engine activity.
type Stats struct {
	FramesIn      int64         `json:"frames_in"`
	FramesOut     int64         `json:"frames_out"`
	FramesDropped int64         `json:"frames_dropped"`
	Readings      reading.Stats `json:"readings"`
}

// Engine is the capture orchestrator.
type Engine struct {
	cfg        Config
	src        capture.Source
	meter      *audiolevel.Meter
	extractor  Extractor
	recognizer ocr.Recognizer
	reporter   report.Reporter
	agg        *reading.Aggregator

	// OnReading, if set before Start, receives each finished display
	// string (dashboard hook). Called off the recognition path.
	OnReading func(frameID uint64, display string)

	mu          sync.Mutex
	running     bool
	sessionID   string
	out         chan capture.Frame
	done        chan struct{}
	terminalErr error

	frameSeq      atomic.Uint64
	framesIn      atomic.Int64
	framesOut     atomic.Int64
	framesDropped atomic.Int64
}

// New creates an engine around the given collaborators. A nil reporter
// disables reporting; every other collaborator is required.
func New(src capture.Source, meter *audiolevel.Meter, extractor Extractor,
	recognizer ocr.Recognizer, reporter report.Reporter, cfg Config) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("engine: capture source required")
	}
	if meter == nil {
		return nil, fmt.Errorf("engine: power meter required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("engine: region extractor required")
	}
	if recognizer == nil {
		return nil, fmt.Errorf("engine: recognizer required")
	}

	e := &Engine{
		cfg:        cfg,
		src:        src,
		meter:      meter,
		extractor:  extractor,
		recognizer: recognizer,
		reporter:   reporter,
	}
	e.agg = reading.NewAggregator(e.completeReading,
		reading.WithCompleteTimeout(cfg.CompleteTimeout))
	return e, nil
}

// Start begins capture and returns the validated-frame sequence.
// The channel closes on stop (normal completion) or stream fault; after
// close, Err reports the terminal error, if any.
func (e *Engine) Start(ctx context.Context, ccfg capture.Config, filter capture.Filter) (<-chan capture.Frame, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}

	stream, err := e.src.Start(ctx, ccfg, filter)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	e.running = true
	e.sessionID = uuid.NewString()
	e.terminalErr = nil
	e.out = make(chan capture.Frame, e.cfg.FrameBuffer)
	e.done = make(chan struct{})
	out := e.out
	done := e.done
	e.mu.Unlock()

	// Levels from a prior session never leak into this one.
	e.meter.ProcessSilence()

	log.Info("capture session started",
		"session", e.sessionID,
		"source", e.src.Name(),
	)

	go e.consume(ctx, stream)
	go func() {
		// Cancelling the start context stops the session.
		select {
		case <-ctx.Done():
			e.Stop()
		case <-done:
		}
	}()

	return out, nil
}

// consume drains the capture stream: video frames feed recognition and
// the output sequence, audio chunks feed the power meter, a stream
// fault terminates the session.
func (e *Engine) consume(ctx context.Context, stream *capture.Stream) {
	for ev := range stream.Events() {
		switch ev.Kind {
		case capture.EventVideo:
			e.handleFrame(ctx, ev.Frame)
		case capture.EventAudio:
			e.meter.Process(ev.Audio)
		case capture.EventError:
			e.setTerminal(ev.Err)
		}
	}
	if err := stream.Err(); err != nil {
		e.setTerminal(err)
	}
	e.finalize()
}

func (e *Engine) handleFrame(ctx context.Context, f capture.Frame) {
	if !f.Valid() {
		// Transient frame defect: drop silently.
		return
	}
	e.framesIn.Add(1)

	frameID := e.frameSeq.Add(1)
	crops := e.extractor.Extract(f)

	fields := make([]region.Field, 0, len(crops))
	for field := range crops {
		fields = append(fields, field)
	}
	e.agg.Dispatch(frameID, fields)

	for field, img := range crops {
		go e.recognizeField(ctx, frameID, field, img)
	}

	// The output sequence is decoupled from recognition: a slow
	// consumer loses frames, never stalls the pipeline.
	select {
	case e.out <- f:
		e.framesOut.Add(1)
	default:
		e.framesDropped.Add(1)
		log.Debug("frame consumer behind, dropping frame", "frame", frameID)
	}
}

// completeReading is the aggregator's completion hook.
func (e *Engine) completeReading(frameID uint64, r reading.Reading) {
	display := r.DisplayString()
	log.Debug("reading complete", "frame", frameID, "display", display)

	report.Async(e.reporter, display)

	if e.OnReading != nil {
		e.OnReading(frameID, display)
	}
}

func (e *Engine) setTerminal(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	if e.terminalErr == nil {
		e.terminalErr = err
	}
	e.mu.Unlock()
}

// finalize closes the output sequence exactly once and resets shared
// state. It runs when the capture stream ends, regardless of cause.
func (e *Engine) finalize() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	out := e.out
	done := e.done
	e.mu.Unlock()

	e.agg.Stop()
	e.meter.ProcessSilence()
	close(out)
	close(done)

	log.Info("capture session finished", "session", e.sessionID)
}

// Stop terminates the session. It is idempotent and safe from any
// goroutine: the output sequence finalizes, audio levels reset to
// silence, and in-flight recognition jobs finish with their results
// discarded. Stop-time faults become the sequence's terminal error but
// never prevent finalization.
func (e *Engine) Stop() error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	err := e.src.Stop()
	if err != nil {
		e.setTerminal(err)
	}
	if done != nil {
		<-done
	}
	return err
}

// UpdateConfiguration applies a new capture configuration to the running
// session, best effort. Failures are logged; the session continues on
// its prior configuration.
func (e *Engine) UpdateConfiguration(ccfg capture.Config, filter capture.Filter) {
	if err := e.src.Reconfigure(ccfg, filter); err != nil {
		log.Warn("capture reconfigure failed, keeping prior configuration", "error", err)
	}
}

// Err returns the terminal session error, or nil for a normal stop.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminalErr
}

// Levels returns the current audio power levels.
func (e *Engine) Levels() audiolevel.Levels {
	return e.meter.Levels()
}

// Snapshot returns the most recently completed reading.
func (e *Engine) Snapshot() (reading.Reading, uint64, bool) {
	return e.agg.Snapshot()
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		FramesIn:      e.framesIn.Load(),
		FramesOut:     e.framesOut.Load(),
		FramesDropped: e.framesDropped.Load(),
		Readings:      e.agg.Stats(),
	}
}
