package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/screener/internal/audit"
	"github.com/nexus-trading/screener/internal/blacklist"
	"github.com/nexus-trading/screener/internal/storage/memory"
	"github.com/nexus-trading/screener/internal/token"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// callLog records collaborator calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeRisk struct {
	log     *callLog
	good    bool
	details string
}

func (f *fakeRisk) CheckToken(_ context.Context, addr string) (bool, string) {
	f.log.add("risk_scan")
	return f.good, f.details
}

type fakeBundle struct {
	log     *callLog
	bundle  bool
	details string
}

func (f *fakeBundle) DetectBundle(token.Candidate) (bool, string) {
	f.log.add("bundle")
	return f.bundle, f.details
}

type fakeVolume struct {
	log     *callLog
	fake    bool
	details string
}

func (f *fakeVolume) Detect(context.Context, token.Candidate) (bool, string) {
	f.log.add("fake_volume")
	return f.fake, f.details
}

type fakeFilter struct {
	log    *callLog
	pass   bool
	reason string
}

func (f *fakeFilter) Check(token.Snapshot) (bool, string) {
	f.log.add("filters")
	return f.pass, f.reason
}

type fakeClassifier struct {
	log     *callLog
	status  token.Status
	details string
}

func (f *fakeClassifier) Classify(token.Snapshot) (token.Status, string) {
	f.log.add("classification")
	return f.status, f.details
}

type loggingStore struct {
	*memory.Store
	log *callLog
	err error
}

func (s *loggingStore) UpsertToken(ctx context.Context, snap *token.Snapshot) error {
	s.log.add("persist")
	if s.err != nil {
		return s.err
	}
	return s.Store.UpsertToken(ctx, snap)
}

type fakeTrader struct {
	log     *callLog
	ok      bool
	details string
	amounts []decimal.Decimal
}

func (f *fakeTrader) ExecuteTrade(_ context.Context, addr string, action token.TradeAction, amount decimal.Decimal) (bool, string) {
	f.log.add("trade")
	f.amounts = append(f.amounts, amount)
	return f.ok, f.details
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Notify(_ context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return f.err
}

type countingObserver struct {
	mu         sync.Mutex
	rejected   map[string]int
	classified map[token.Status]int
	trades     int
}

func (o *countingObserver) Rejected(s string) {
	o.mu.Lock()
	o.rejected[s]++
	o.mu.Unlock()
}

func (o *countingObserver) Classified(s token.Status) {
	o.mu.Lock()
	o.classified[s]++
	o.mu.Unlock()
}

func (o *countingObserver) Trade(bool) {
	o.mu.Lock()
	o.trades++
	o.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	log        *callLog
	blacklist  *blacklist.Store
	risk       *fakeRisk
	bundle     *fakeBundle
	volume     *fakeVolume
	filter     *fakeFilter
	classifier *fakeClassifier
	store      *loggingStore
	trader     *fakeTrader
	notifier   *fakeNotifier
	observer   *countingObserver
	p          *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := &callLog{}
	bl, err := blacklist.NewStore(nil)
	require.NoError(t, err)
	h := &harness{
		log:        l,
		blacklist:  bl,
		risk:       &fakeRisk{log: l, good: true, details: "Good"},
		bundle:     &fakeBundle{log: l, details: "No bundle detected"},
		volume:     &fakeVolume{log: l, details: "No fake volume detected"},
		filter:     &fakeFilter{log: l, pass: true, reason: "Passed all filters"},
		classifier: &fakeClassifier{log: l, status: token.StatusStable, details: "No significant patterns detected"},
		store:      &loggingStore{Store: memory.NewStore(), log: l},
		trader:     &fakeTrader{log: l, ok: true, details: "Buy executed for tok1 (0.1 SOL)"},
		notifier:   &fakeNotifier{},
		observer:   &countingObserver{rejected: map[string]int{}, classified: map[token.Status]int{}},
	}

	p, err := New(Deps{
		Blacklist:  h.blacklist,
		RiskScan:   h.risk,
		Bundle:     h.bundle,
		FakeVolume: h.volume,
		Filters:    h.filter,
		Classifier: h.classifier,
		Store:      h.store,
		Recorder:   audit.NewRecorder(h.store, 0),
		Trader:     h.trader,
		Notifier:   h.notifier,
		Observer:   h.observer,
	}, Options{TradeAmount: decimal.RequireFromString("0.1"), Workers: 4})
	require.NoError(t, err)
	h.p = p
	return h
}

func (h *harness) patterns(t *testing.T) []token.PatternEvent {
	t.Helper()
	events, err := h.store.ListPatterns(context.Background())
	require.NoError(t, err)
	return events
}

func candidate(addr string) token.Candidate {
	return token.Candidate{Snapshot: token.Snapshot{Address: addr, Name: "Moon", DevAddress: "dev-" + addr}}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestStages_Order(t *testing.T) {
	assert.Equal(t, []Stage{
		StageBlacklist, StageRiskScan, StageBundle, StageFakeVolume, StageFilters,
		StageClassification, StagePersist, StageTrade,
	}, Stages())

	assert.False(t, Bans(StageBlacklist))
	assert.True(t, Bans(StageRiskScan))
	assert.True(t, Bans(StageBundle))
	assert.True(t, Bans(StageFakeVolume))
	assert.False(t, Bans(StageFilters))
	assert.False(t, Bans(StageTrade))
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestProcess_FullPassRunsStagesInOrder(t *testing.T) {
	h := newHarness(t)
	h.classifier.status = token.StatusNewPair
	h.classifier.details = "Pair age: 1.00 hours"

	out := h.p.Process(context.Background(), candidate("tok1"))

	assert.Equal(t, []string{
		"risk_scan", "bundle", "fake_volume", "filters", "classification", "persist", "trade",
	}, h.log.list())
	assert.Equal(t, StageTrade, out.Stage)
	assert.False(t, out.Rejected)
	assert.True(t, out.Traded)
	assert.Equal(t, token.StatusNewPair, out.Status)
}

func TestProcess_BlacklistedCoinMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	h.blacklist.AddCoin("TOK1", "manual")

	out := h.p.Process(context.Background(), candidate("tok1"))

	assert.Empty(t, h.log.list(), "no detector, store or trade calls")
	assert.True(t, out.Rejected)
	assert.Equal(t, StageBlacklist, out.Stage)
	assert.Empty(t, h.patterns(t), "blacklist rejections are logged only")
	assert.Equal(t, 1, h.observer.rejected["blacklist"])
}

func TestProcess_BlacklistedDeveloper(t *testing.T) {
	h := newHarness(t)
	h.blacklist.AddDeveloper("dev-tok1", "serial rugger")

	out := h.p.Process(context.Background(), candidate("tok1"))
	assert.Empty(t, h.log.list())
	assert.Equal(t, StageBlacklist, out.Stage)
	assert.False(t, h.blacklist.IsCoinBlacklisted("tok1"), "developer hits do not ban the coin")
}

func TestProcess_DetectorRejectionsBlacklistAndRecord(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		stage   Stage
		pattern token.PatternType
		calls   []string
	}{
		{
			name: "risk scan",
			setup: func(h *harness) {
				h.risk.good, h.risk.details = false, "API error: timeout"
			},
			stage:   StageRiskScan,
			pattern: token.PatternRugcheckFailed,
			calls:   []string{"risk_scan"},
		},
		{
			name: "bundle",
			setup: func(h *harness) {
				h.bundle.bundle, h.bundle.details = true, "Bundle detected: 6 wallets hold >= 2% each"
			},
			stage:   StageBundle,
			pattern: token.PatternBundleDetected,
			calls:   []string{"risk_scan", "bundle"},
		},
		{
			name: "fake volume",
			setup: func(h *harness) {
				h.volume.fake, h.volume.details = true, "High volume-to-liquidity ratio: 60.00x"
			},
			stage:   StageFakeVolume,
			pattern: token.PatternFakeVolume,
			calls:   []string{"risk_scan", "bundle", "fake_volume"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			out := h.p.Process(context.Background(), candidate("tok1"))
			assert.Equal(t, tt.calls, h.log.list())
			assert.True(t, out.Rejected)
			assert.Equal(t, tt.stage, out.Stage)
			assert.True(t, h.blacklist.IsCoinBlacklisted("tok1"))

			events := h.patterns(t)
			require.Len(t, events, 1)
			assert.Equal(t, tt.pattern, events[0].PatternType)
			assert.Equal(t, out.Details, events[0].Details)

			// Next poll short-circuits at stage one.
			before := len(h.log.list())
			again := h.p.Process(context.Background(), candidate("tok1"))
			assert.Equal(t, StageBlacklist, again.Stage)
			assert.Len(t, h.log.list(), before)
		})
	}
}

func TestProcess_RiskScanBanReason(t *testing.T) {
	dir := t.TempDir()
	persister := blacklist.NewFilePersister(dir + "/config.yaml")
	h := newHarness(t)
	bl, err := blacklist.NewStore(persister)
	require.NoError(t, err)
	h.blacklist = bl
	h.p.deps.Blacklist = bl
	h.risk.good, h.risk.details = false, "Danger"

	h.p.Process(context.Background(), candidate("tok1"))

	lists, err := persister.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"tok1"}, lists.Coins)
	assert.Equal(t, StageBlacklist, h.p.Process(context.Background(), candidate("tok1")).Stage)
}

func TestProcess_FilterRejectionDoesNotBlacklist(t *testing.T) {
	h := newHarness(t)
	h.filter.pass, h.filter.reason = false, "Liquidity too low"

	out := h.p.Process(context.Background(), candidate("tok1"))
	assert.Equal(t, StageFilters, out.Stage)
	assert.Equal(t, "Liquidity too low", out.Details)
	assert.False(t, h.blacklist.IsCoinBlacklisted("tok1"))
	assert.Empty(t, h.patterns(t))

	_, err := h.store.GetToken(context.Background(), "tok1")
	assert.Error(t, err, "filtered tokens are not persisted")
}

func TestProcess_StablePersistedWithoutPatternOrTrade(t *testing.T) {
	h := newHarness(t)

	out := h.p.Process(context.Background(), candidate("tok1"))
	assert.Equal(t, StagePersist, out.Stage)
	assert.NotContains(t, h.log.list(), "trade")
	assert.Empty(t, h.patterns(t))

	got, err := h.store.GetToken(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, token.StatusStable, got.Status)
	assert.NotZero(t, got.LastUpdated)
}

func TestProcess_RuggedRecordsPatternWithoutTrade(t *testing.T) {
	h := newHarness(t)
	h.classifier.status, h.classifier.details = token.StatusRugged, "Price drop: -80%"

	h.p.Process(context.Background(), candidate("tok1"))

	assert.NotContains(t, h.log.list(), "trade")
	events := h.patterns(t)
	require.Len(t, events, 1)
	assert.Equal(t, token.PatternRugged, events[0].PatternType)
	assert.Equal(t, "Price drop: -80%", events[0].Details)
}

func TestProcess_BuyRecordsAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.classifier.status, h.classifier.details = token.StatusPumped, "Price change: 900%"

	out := h.p.Process(context.Background(), candidate("tok1"))
	require.True(t, out.Traded)

	events := h.patterns(t)
	require.Len(t, events, 2)
	assert.Equal(t, token.PatternPumped, events[0].PatternType)
	assert.Equal(t, token.PatternBuyExecuted, events[1].PatternType)
	assert.Equal(t, "Buy executed for tok1 (0.1 SOL)", events[1].Details)

	require.Len(t, h.notifier.messages, 1)
	assert.Equal(t, "Buy executed for Moon (tok1): Buy executed for tok1 (0.1 SOL)", h.notifier.messages[0])
	assert.Equal(t, "0.1", h.trader.amounts[0].String())
}

func TestProcess_TradeFailureStillPersists(t *testing.T) {
	h := newHarness(t)
	h.classifier.status = token.StatusNewPair
	h.trader.ok, h.trader.details = false, "bot unavailable"

	out := h.p.Process(context.Background(), candidate("tok1"))
	assert.False(t, out.Traded)
	assert.False(t, out.Rejected)

	_, err := h.store.GetToken(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Empty(t, h.notifier.messages)

	for _, e := range h.patterns(t) {
		assert.NotEqual(t, token.PatternBuyExecuted, e.PatternType)
	}
}

func TestProcess_SideEffectFailuresDoNotAbort(t *testing.T) {
	h := newHarness(t)
	h.classifier.status = token.StatusPumped
	h.store.err = errors.New("database is locked")
	h.notifier.err = errors.New("chat not found")

	out := h.p.Process(context.Background(), candidate("tok1"))
	assert.True(t, out.Traded, "persist and notify failures do not block the trade")
	assert.Equal(t, StageTrade, out.Stage)
}

func TestProcessBatch_PreservesOrder(t *testing.T) {
	h := newHarness(t)
	h.blacklist.AddCoin("tok3", "manual")

	candidates := make([]token.Candidate, 20)
	for i := range candidates {
		candidates[i] = candidate(fmt.Sprintf("tok%d", i))
	}

	outcomes := h.p.ProcessBatch(context.Background(), candidates)
	require.Len(t, outcomes, 20)
	for i, o := range outcomes {
		assert.Equal(t, fmt.Sprintf("tok%d", i), o.Address)
	}
	assert.Equal(t, StageBlacklist, outcomes[3].Stage)

	tokens, err := h.store.ListTokens(context.Background())
	require.NoError(t, err)
	assert.Len(t, tokens, 19)
	assert.Equal(t, 19, h.observer.classified[token.StatusStable])
}

func TestProcessBatch_ConcurrentBansAreConsistent(t *testing.T) {
	h := newHarness(t)
	h.bundle.bundle, h.bundle.details = true, "Bundle detected"

	candidates := make([]token.Candidate, 30)
	for i := range candidates {
		candidates[i] = candidate(fmt.Sprintf("tok%d", i%10))
	}
	h.p.ProcessBatch(context.Background(), candidates)

	assert.Len(t, h.blacklist.Coins(), 10, "each address is banned exactly once")
}
