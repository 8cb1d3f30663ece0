package reading

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/koyakei/wind-meter-server/internal/log"
	"github.com/koyakei/wind-meter-server/pkg/region"
)

// DefaultCompleteTimeout bounds how long a frame's reading may wait for
// stuck recognition jobs before being default-filled and completed.
const DefaultCompleteTimeout = 2 * time.Second

// CompleteFunc receives each finished reading.
type CompleteFunc func(frameID uint64, r Reading)

// Stats counts aggregator activity.
type Stats struct {
	Completed int64 `json:"completed"`
	Expired   int64 `json:"expired"`
	Late      int64 `json:"late"`
}

// entry is the Collecting state for one in-flight frame.
type entry struct {
	reading Reading
	pending map[region.Field]struct{}
	timer   *time.Timer
}

// Aggregator owns the per-frame reading state machine:
// Collecting(frameID) -> Complete(frameID, DisplayString).
//
// Dispatch opens an entry; Deliver writes one field result; the entry
// completes when no fields are pending or when the timeout elapses.
// Completed entries are discarded immediately, so results arriving after
// completion (or after Stop) are dropped.
type Aggregator struct {
	mu      sync.Mutex
	entries map[uint64]*entry
	timeout time.Duration

	onComplete CompleteFunc

	last      Reading
	lastFrame uint64
	hasLast   bool

	completed atomic.Int64
	expired   atomic.Int64
	late      atomic.Int64
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithCompleteTimeout overrides the per-frame completion timeout.
func WithCompleteTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAggregator creates an aggregator that hands each finished reading
// to onComplete. onComplete is called outside the aggregator lock, once
// per frame.
func NewAggregator(onComplete CompleteFunc, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		entries:    make(map[uint64]*entry),
		timeout:    DefaultCompleteTimeout,
		onComplete: onComplete,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dispatch opens a Collecting entry for the frame. pending lists the
// fields that extraction actually produced sub-images for; any other
// field stays at its default. A frame with nothing pending completes
// immediately.
func (a *Aggregator) Dispatch(frameID uint64, pending []region.Field) {
	e := &entry{
		reading: New(),
		pending: make(map[region.Field]struct{}, len(pending)),
	}
	for _, f := range pending {
		e.pending[f] = struct{}{}
	}

	a.mu.Lock()
	if len(e.pending) == 0 {
		a.mu.Unlock()
		a.finish(frameID, e.reading)
		return
	}

	e.timer = time.AfterFunc(a.timeout, func() {
		a.expire(frameID)
	})
	a.entries[frameID] = e
	a.mu.Unlock()
}

// Deliver records one recognition result for the frame. Results for
// unknown frames (already complete, expired, or stopped) are dropped.
// Returns true if the result was applied.
func (a *Aggregator) Deliver(frameID uint64, field region.Field, value string) bool {
	a.mu.Lock()
	e, ok := a.entries[frameID]
	if !ok {
		a.mu.Unlock()
		a.late.Add(1)
		log.Debug("dropping late recognition result", "frame", frameID, "field", field)
		return false
	}
	if _, pending := e.pending[field]; !pending {
		a.mu.Unlock()
		return false
	}

	e.reading.Set(field, value)
	delete(e.pending, field)

	if len(e.pending) > 0 {
		a.mu.Unlock()
		return true
	}

	// Last field landed: complete the frame.
	e.timer.Stop()
	delete(a.entries, frameID)
	r := e.reading
	a.mu.Unlock()

	a.finish(frameID, r)
	return true
}

// expire default-fills any still-pending fields and completes the frame.
func (a *Aggregator) expire(frameID uint64) {
	a.mu.Lock()
	e, ok := a.entries[frameID]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.entries, frameID)
	r := e.reading
	a.mu.Unlock()

	a.expired.Add(1)
	log.Warn("reading completed on timeout", "frame", frameID)
	a.finish(frameID, r)
}

func (a *Aggregator) finish(frameID uint64, r Reading) {
	a.mu.Lock()
	a.last = r.Clone()
	a.lastFrame = frameID
	a.hasLast = true
	a.mu.Unlock()

	a.completed.Add(1)
	if a.onComplete != nil {
		a.onComplete(frameID, r)
	}
}

// Stop discards all in-flight entries. Results delivered afterwards are
// dropped without error.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, e := range a.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(a.entries, id)
	}
}

// Snapshot returns the most recently completed reading.
func (a *Aggregator) Snapshot() (Reading, uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasLast {
		return nil, 0, false
	}
	return a.last.Clone(), a.lastFrame, true
}

// InFlight returns how many frames are currently collecting.
func (a *Aggregator) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Stats returns a snapshot of aggregator counters.
func (a *Aggregator) Stats() Stats {
	return Stats{
		Completed: a.completed.Load(),
		Expired:   a.expired.Load(),
		Late:      a.late.Load(),
	}
}
