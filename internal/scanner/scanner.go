package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/screener/internal/adapters/dexscreener"
	"github.com/nexus-trading/screener/internal/pipeline"
	"github.com/nexus-trading/screener/internal/token"
)

// ---------------------------------------------------------------------------
// Poll loop: fetches the candidate list on a fixed interval and screens it
// ---------------------------------------------------------------------------

// Source supplies raw market-data pairs.
type Source interface {
	FetchCandidates(ctx context.Context) ([]dexscreener.Pair, error)
}

// Processor screens one cycle's candidates.
type Processor interface {
	ProcessBatch(ctx context.Context, candidates []token.Candidate) []pipeline.Outcome
}

// CycleObserver receives cycle timings. Optional.
type CycleObserver interface {
	ObserveCycle(d time.Duration, candidates, malformed int)
}

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Fetched   int           `json:"fetched"`
	Malformed int           `json:"malformed"`
	Rejected  int           `json:"rejected"`
	Persisted int           `json:"persisted"`
	Traded    int           `json:"traded"`
	FetchErr  string        `json:"fetch_error,omitempty"`
}

// OnCycle is called after every cycle, from the loop goroutine.
type OnCycle func(ctx context.Context, report CycleReport)

// Config configures the poll loop.
type Config struct {
	Interval time.Duration
}

// Scanner drives the poll loop. One cycle runs at a time.
type Scanner struct {
	config    Config
	source    Source
	processor Processor
	observer  CycleObserver
	onCycle   []OnCycle

	cycleMu sync.Mutex
	running atomic.Bool

	// Stats.
	cycles      atomic.Int64
	fetched     atomic.Int64
	malformed   atomic.Int64
	rejected    atomic.Int64
	persisted   atomic.Int64
	traded      atomic.Int64
	fetchErrors atomic.Int64
	lastCycle   atomic.Pointer[CycleReport]
}

func NewScanner(config Config, source Source, processor Processor) *Scanner {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &Scanner{config: config, source: source, processor: processor}
}

// SetObserver installs a cycle observer. Call before Start.
func (s *Scanner) SetObserver(o CycleObserver) {
	s.observer = o
}

// OnCycle registers a hook run after every cycle. Call before Start.
func (s *Scanner) OnCycle(fn OnCycle) {
	s.onCycle = append(s.onCycle, fn)
}

// Start runs a cycle immediately and then every Interval until ctx is
// cancelled. A cycle in flight is allowed to finish before Start returns.
func (s *Scanner) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scanner already running")
	}
	defer s.running.Store(false)

	log.Info().Dur("interval", s.config.Interval).Msg("scanner: starting poll loop")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		s.RunCycle(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("scanner: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle performs one fetch-normalize-screen pass. The cycle is detached
// from ctx cancellation; cancellation only takes effect between cycles.
func (s *Scanner) RunCycle(ctx context.Context) CycleReport {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cycleCtx := context.WithoutCancel(ctx)
	report := CycleReport{ID: uuid.NewString(), StartedAt: time.Now()}
	logger := log.With().Str("cycle", report.ID).Logger()

	pairs, err := s.source.FetchCandidates(cycleCtx)
	if err != nil {
		s.fetchErrors.Add(1)
		report.FetchErr = err.Error()
		logger.Error().Err(err).Msg("scanner: fetch failed, no tokens this cycle")
	}
	report.Fetched = len(pairs)

	candidates := make([]token.Candidate, 0, len(pairs))
	for _, p := range pairs {
		c, err := dexscreener.Normalize(p)
		if err != nil {
			report.Malformed++
			logger.Warn().Err(err).Msg("scanner: skipping malformed pair")
			continue
		}
		candidates = append(candidates, c)
	}

	if len(candidates) > 0 {
		for _, o := range s.processor.ProcessBatch(cycleCtx, candidates) {
			if o.Rejected {
				report.Rejected++
			} else {
				report.Persisted++
			}
			if o.Traded {
				report.Traded++
			}
		}
	} else if err == nil {
		logger.Info().Msg("scanner: no tokens fetched")
	}

	report.Duration = time.Since(report.StartedAt)
	s.record(report)

	if s.observer != nil {
		s.observer.ObserveCycle(report.Duration, len(candidates), report.Malformed)
	}

	logger.Info().
		Int("fetched", report.Fetched).
		Int("malformed", report.Malformed).
		Int("rejected", report.Rejected).
		Int("persisted", report.Persisted).
		Int("traded", report.Traded).
		Dur("duration", report.Duration).
		Msg("scanner: cycle complete")

	for _, fn := range s.onCycle {
		fn(cycleCtx, report)
	}
	return report
}

func (s *Scanner) record(r CycleReport) {
	s.cycles.Add(1)
	s.fetched.Add(int64(r.Fetched))
	s.malformed.Add(int64(r.Malformed))
	s.rejected.Add(int64(r.Rejected))
	s.persisted.Add(int64(r.Persisted))
	s.traded.Add(int64(r.Traded))
	s.lastCycle.Store(&r)
}

// ScannerStats holds cumulative loop counters.
type ScannerStats struct {
	Running     bool         `json:"running"`
	Cycles      int64        `json:"cycles"`
	Fetched     int64        `json:"fetched"`
	Malformed   int64        `json:"malformed"`
	Rejected    int64        `json:"rejected"`
	Persisted   int64        `json:"persisted"`
	Traded      int64        `json:"traded"`
	FetchErrors int64        `json:"fetch_errors"`
	LastCycle   *CycleReport `json:"last_cycle,omitempty"`
}

func (s *Scanner) Stats() ScannerStats {
	return ScannerStats{
		Running:     s.running.Load(),
		Cycles:      s.cycles.Load(),
		Fetched:     s.fetched.Load(),
		Malformed:   s.malformed.Load(),
		Rejected:    s.rejected.Load(),
		Persisted:   s.persisted.Load(),
		Traded:      s.traded.Load(),
		FetchErrors: s.fetchErrors.Load(),
		LastCycle:   s.lastCycle.Load(),
	}
}

func (st ScannerStats) String() string {
	return fmt.Sprintf("cycles=%d fetched=%d rejected=%d persisted=%d traded=%d",
		st.Cycles, st.Fetched, st.Rejected, st.Persisted, st.Traded)
}
