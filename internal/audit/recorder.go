package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/screener/internal/storage"
	"github.com/nexus-trading/screener/internal/token"
)

// Sink receives every pattern event after it has been stored. Sinks mirror
// the log to secondary systems (event bus, analytics warehouse); a sink
// failure never fails the recording.
type Sink interface {
	Publish(ctx context.Context, e token.PatternEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e token.PatternEvent) error

func (f SinkFunc) Publish(ctx context.Context, e token.PatternEvent) error { return f(ctx, e) }

// Recorder appends pattern events to the persistent log, keeps a bounded
// buffer of the most recent events for the /patterns route and fans every
// event out to the configured sinks.
type Recorder struct {
	store storage.PatternStore
	sinks []Sink
	now   func() time.Time

	mu     sync.Mutex
	recent []token.PatternEvent
	maxBuf int

	recorded   atomic.Int64
	failed     atomic.Int64
	sinkErrors atomic.Int64
}

// NewRecorder creates a recorder over store. maxBuf caps the in-memory
// buffer; zero disables it.
func NewRecorder(store storage.PatternStore, maxBuf int, sinks ...Sink) *Recorder {
	if maxBuf < 0 {
		maxBuf = 0
	}
	return &Recorder{
		store:  store,
		sinks:  sinks,
		now:    time.Now,
		recent: make([]token.PatternEvent, 0, maxBuf),
		maxBuf: maxBuf,
	}
}

// SetClock overrides the timestamp source.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// Record appends one event. The store write is authoritative: if it fails
// the event is not buffered or published and the error is returned.
func (r *Recorder) Record(ctx context.Context, address string, pt token.PatternType, details string) error {
	e := token.PatternEvent{
		TokenAddress: address,
		PatternType:  pt,
		DetectedAt:   r.now().Unix(),
		Details:      details,
	}

	if err := r.store.AppendPattern(ctx, &e); err != nil {
		r.failed.Add(1)
		log.Error().Err(err).
			Str("token", address).
			Str("pattern", string(pt)).
			Msg("audit: pattern write failed")
		return fmt.Errorf("record %s for %s: %w", pt, address, err)
	}
	r.recorded.Add(1)

	r.mu.Lock()
	if r.maxBuf > 0 {
		if len(r.recent) >= r.maxBuf {
			copy(r.recent, r.recent[1:])
			r.recent[len(r.recent)-1] = e
		} else {
			r.recent = append(r.recent, e)
		}
	}
	r.mu.Unlock()

	// Sinks run outside the lock.
	for _, s := range r.sinks {
		if err := s.Publish(ctx, e); err != nil {
			r.sinkErrors.Add(1)
			log.Warn().Err(err).
				Str("token", address).
				Str("pattern", string(pt)).
				Msg("audit: sink publish failed")
		}
	}

	log.Info().
		Str("token", address).
		Str("pattern", string(pt)).
		Str("details", details).
		Msg("audit: pattern recorded")
	return nil
}

// Recent returns a copy of the buffered events, oldest first.
func (r *Recorder) Recent() []token.PatternEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]token.PatternEvent, len(r.recent))
	copy(out, r.recent)
	return out
}

// Query returns buffered events for one token address.
func (r *Recorder) Query(address string) []token.PatternEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []token.PatternEvent
	for _, e := range r.recent {
		if e.TokenAddress == address {
			out = append(out, e)
		}
	}
	return out
}

// Stats holds recorder counters.
type Stats struct {
	Recorded   int64 `json:"recorded"`
	Failed     int64 `json:"failed"`
	SinkErrors int64 `json:"sink_errors"`
	Buffered   int   `json:"buffered"`
}

func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	buffered := len(r.recent)
	r.mu.Unlock()
	return Stats{
		Recorded:   r.recorded.Load(),
		Failed:     r.failed.Load(),
		SinkErrors: r.sinkErrors.Load(),
		Buffered:   buffered,
	}
}
