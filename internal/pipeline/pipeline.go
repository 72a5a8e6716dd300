package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nexus-trading/screener/internal/notify"
	"github.com/nexus-trading/screener/internal/token"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

type Blacklist interface {
	IsCoinBlacklisted(address string) bool
	IsDeveloperBlacklisted(address string) bool
	AddCoin(address, reason string)
}

type RiskScanner interface {
	CheckToken(ctx context.Context, address string) (isGood bool, details string)
}

type BundleDetector interface {
	DetectBundle(c token.Candidate) (isBundle bool, details string)
}

type FakeVolumeDetector interface {
	Detect(ctx context.Context, c token.Candidate) (isFake bool, details string)
}

type Filter interface {
	Check(s token.Snapshot) (passed bool, reason string)
}

type Classifier interface {
	Classify(s token.Snapshot) (token.Status, string)
}

type SnapshotWriter interface {
	UpsertToken(ctx context.Context, s *token.Snapshot) error
}

type PatternRecorder interface {
	Record(ctx context.Context, address string, pt token.PatternType, details string) error
}

type Trader interface {
	ExecuteTrade(ctx context.Context, address string, action token.TradeAction, amount decimal.Decimal) (bool, string)
}

// Observer receives per-token outcomes. Optional.
type Observer interface {
	Rejected(stage string)
	Classified(s token.Status)
	Trade(ok bool)
}

// Deps wires the pipeline. Every field except Observer is required.
type Deps struct {
	Blacklist  Blacklist
	RiskScan   RiskScanner
	Bundle     BundleDetector
	FakeVolume FakeVolumeDetector
	Filters    Filter
	Classifier Classifier
	Store      SnapshotWriter
	Recorder   PatternRecorder
	Trader     Trader
	Notifier   notify.Notifier
	Observer   Observer
}

// Options tunes the pipeline.
type Options struct {
	TradeAction token.TradeAction
	TradeAmount decimal.Decimal
	Workers     int
}

// ErrMissingDependency is returned by New when a collaborator is nil.
var ErrMissingDependency = errors.New("pipeline: missing dependency")

// Pipeline screens candidates through the fixed stage order.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Blacklist == nil, deps.RiskScan == nil, deps.Bundle == nil,
		deps.FakeVolume == nil, deps.Filters == nil, deps.Classifier == nil,
		deps.Store == nil, deps.Recorder == nil, deps.Trader == nil, deps.Notifier == nil:
		return nil, ErrMissingDependency
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if opts.TradeAction == "" {
		opts.TradeAction = token.ActionBuy
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}, nil
}

// SetClock overrides the time source used for last_updated.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// ---------------------------------------------------------------------------
// Processing
// ---------------------------------------------------------------------------

// Outcome describes how far one candidate got.
type Outcome struct {
	Address  string       `json:"address"`
	Stage    Stage        `json:"stage"` // rejecting stage, or the last stage run
	Rejected bool         `json:"rejected"`
	Details  string       `json:"details"`
	Status   token.Status `json:"status,omitempty"`
	Traded   bool         `json:"traded"`
}

type run struct {
	ctx context.Context
	c   *token.Candidate
}

// Process runs one candidate through every stage. Failures of side effects
// (pattern writes, persistence, trades, notifications) are logged and never
// abort processing.
func (p *Pipeline) Process(ctx context.Context, c token.Candidate) Outcome {
	r := &run{ctx: ctx, c: &c}
	out := Outcome{Address: c.Address}

	for _, g := range gates {
		pass, details := g.check(p, r)
		if pass {
			continue
		}
		out.Stage, out.Rejected, out.Details = g.stage, true, details
		p.deps.Observer.Rejected(string(g.stage))
		p.reject(ctx, g, &c, details)
		return out
	}

	status, details := p.deps.Classifier.Classify(c.Snapshot)
	c.Status = status
	out.Stage, out.Status, out.Details = StageClassification, status, details
	p.deps.Observer.Classified(status)

	snap := c.Snapshot
	snap.LastUpdated = p.now().Unix()
	if err := p.deps.Store.UpsertToken(ctx, &snap); err != nil {
		log.Error().Err(err).Str("token", c.Address).Msg("pipeline: persist snapshot failed")
	}
	out.Stage = StagePersist

	if pt, ok := token.PatternForStatus(status); ok {
		p.record(ctx, c.Address, pt, details)
		log.Info().
			Str("token", c.Label()).
			Str("status", string(status)).
			Str("details", details).
			Msg("pipeline: pattern detected")
	}

	if status.Tradable() {
		out.Stage = StageTrade
		out.Traded = p.trade(ctx, c.Snapshot)
	}
	return out
}

// ProcessBatch screens candidates concurrently, at most Workers at a time.
// Outcomes are returned in input order.
func (p *Pipeline) ProcessBatch(ctx context.Context, candidates []token.Candidate) []Outcome {
	outcomes := make([]Outcome, len(candidates))

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i := range candidates {
		g.Go(func() error {
			outcomes[i] = p.Process(ctx, candidates[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) reject(ctx context.Context, g gate, c *token.Candidate, details string) {
	evt := log.Info().
		Str("token", c.Label()).
		Str("stage", string(g.stage)).
		Str("details", details)
	if g.ban {
		p.deps.Blacklist.AddCoin(c.Address, g.banPrefix+details)
		evt = evt.Bool("blacklisted", true)
	}
	evt.Msg("pipeline: rejected")

	if g.pattern != "" {
		p.record(ctx, c.Address, g.pattern, details)
	}
}

func (p *Pipeline) record(ctx context.Context, address string, pt token.PatternType, details string) {
	// The recorder logs its own failures.
	_ = p.deps.Recorder.Record(ctx, address, pt, details)
}

func (p *Pipeline) trade(ctx context.Context, s token.Snapshot) bool {
	ok, details := p.deps.Trader.ExecuteTrade(ctx, s.Address, p.opts.TradeAction, p.opts.TradeAmount)
	p.deps.Observer.Trade(ok)
	if !ok {
		log.Warn().Str("token", s.Label()).Str("details", details).Msg("pipeline: trade failed")
		return false
	}

	if p.opts.TradeAction == token.ActionBuy {
		p.record(ctx, s.Address, token.PatternBuyExecuted, details)
	}
	if err := p.deps.Notifier.Notify(ctx, notify.BuyMessage(s.Name, s.Address, details)); err != nil {
		log.Warn().Err(err).Str("token", s.Address).Msg("pipeline: notification failed")
	}
	return true
}

// ---------------------------------------------------------------------------
// Gate checks
// ---------------------------------------------------------------------------

func (p *Pipeline) checkBlacklist(r *run) (bool, string) {
	if p.deps.Blacklist.IsCoinBlacklisted(r.c.Address) {
		return false, "Coin is blacklisted"
	}
	if r.c.DevAddress != "" && p.deps.Blacklist.IsDeveloperBlacklisted(r.c.DevAddress) {
		return false, "Developer " + r.c.DevAddress + " is blacklisted"
	}
	return true, ""
}

func (p *Pipeline) checkRiskScan(r *run) (bool, string) {
	return p.deps.RiskScan.CheckToken(r.ctx, r.c.Address)
}

func (p *Pipeline) checkBundle(r *run) (bool, string) {
	isBundle, details := p.deps.Bundle.DetectBundle(*r.c)
	return !isBundle, details
}

func (p *Pipeline) checkFakeVolume(r *run) (bool, string) {
	isFake, details := p.deps.FakeVolume.Detect(r.ctx, *r.c)
	return !isFake, details
}

func (p *Pipeline) checkFilters(r *run) (bool, string) {
	return p.deps.Filters.Check(r.c.Snapshot)
}

type nopObserver struct{}

func (nopObserver) Rejected(string)         {}
func (nopObserver) Classified(token.Status) {}
func (nopObserver) Trade(bool)              {}
