package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/screener/internal/adapters"
	"github.com/nexus-trading/screener/internal/token"
)

type fakeReporter struct {
	name string
	hs   adapters.HealthStatus
}

func (f fakeReporter) Name() string                   { return f.name }
func (f fakeReporter) Health() adapters.HealthStatus { return f.hs }

type fakePatterns struct {
	events []token.PatternEvent
	err    error
}

func (f fakePatterns) ListPatterns(context.Context) ([]token.PatternEvent, error) {
	return f.events, f.err
}

type fakeRecent struct{ events []token.PatternEvent }

func (f fakeRecent) Recent() []token.PatternEvent { return f.events }

func (f fakeRecent) Query(address string) []token.PatternEvent {
	var out []token.PatternEvent
	for _, e := range f.events {
		if e.TokenAddress == address {
			out = append(out, e)
		}
	}
	return out
}

type fakeBlacklist struct{ coins, devs []string }

func (f fakeBlacklist) Coins() []string      { return f.coins }
func (f fakeBlacklist) Developers() []string { return f.devs }

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.ObserveCycle(2*time.Second, 10, 1)
	m.Rejected("bundle")
	m.Rejected("bundle")
	m.Classified(token.StatusPumped)
	m.Trade(true)
	m.Trade(false)
	m.SetBlacklistSize(3, 1)
	require.NoError(t, m.Publish(context.Background(), token.PatternEvent{PatternType: token.PatternFakeVolume}))

	_, body := get(t, m.Handler(), "/metrics")
	for _, line := range []string{
		"screener_cycles_total 1",
		"screener_candidates_total 10",
		"screener_malformed_pairs_total 1",
		`screener_rejections_total{stage="bundle"} 2`,
		`screener_classifications_total{status="pumped"} 1`,
		`screener_trades_total{result="failure"} 1`,
		`screener_trades_total{result="success"} 1`,
		`screener_blacklist_entries{list="coins"} 3`,
		`screener_patterns_total{pattern_type="fake_volume"} 1`,
		"screener_cycle_duration_seconds_count 1",
	} {
		assert.Contains(t, body, line)
	}
}

func TestHealthMonitor_WorstStatusWins(t *testing.T) {
	hm := NewHealthMonitor()
	hm.RegisterAdapter(fakeReporter{name: "dexscreener", hs: adapters.HealthStatus{State: "healthy"}})
	hm.RegisterAdapter(fakeReporter{name: "rugcheck", hs: adapters.HealthStatus{State: "degraded", LastError: "timeout"}})

	h := hm.Check(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, "timeout", h.Components["rugcheck"].Message)
	assert.Equal(t, "rugcheck", h.Components["rugcheck"].Name)

	hm.RegisterAdapter(fakeReporter{name: "dexscreener", hs: adapters.HealthStatus{State: "open"}})
	assert.Equal(t, StatusUnhealthy, hm.Check(context.Background()).Status)
}

func TestHealthMonitor_EmptyIsHealthy(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewHealthMonitor().Check(context.Background()).Status)
}

func TestServer_Health(t *testing.T) {
	hm := NewHealthMonitor()
	s := NewServer(0, ServerDeps{Health: hm})

	code, body := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"healthy"`)

	hm.RegisterAdapter(fakeReporter{name: "dexscreener", hs: adapters.HealthStatus{State: "open"}})
	code, _ = get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_StatsAndMetrics(t *testing.T) {
	m := NewMetrics()
	m.Rejected("risk_scan")
	s := NewServer(0, ServerDeps{
		Metrics: m,
		Stats:   func() any { return map[string]int{"cycles": 4} },
	})

	code, body := get(t, s.Handler(), "/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"cycles":4}`, body)

	code, body = get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `screener_rejections_total{stage="risk_scan"} 1`)
}

func TestServer_Patterns(t *testing.T) {
	events := []token.PatternEvent{
		{ID: 1, TokenAddress: "a", PatternType: token.PatternPumped},
		{ID: 2, TokenAddress: "b", PatternType: token.PatternRugged},
		{ID: 3, TokenAddress: "a", PatternType: token.PatternBuyExecuted},
	}
	s := NewServer(0, ServerDeps{Patterns: fakePatterns{events: events}})

	decode := func(body string) []token.PatternEvent {
		var resp struct {
			Count    int                  `json:"count"`
			Patterns []token.PatternEvent `json:"patterns"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &resp))
		assert.Equal(t, len(resp.Patterns), resp.Count)
		return resp.Patterns
	}

	_, body := get(t, s.Handler(), "/patterns")
	assert.Len(t, decode(body), 3)

	_, body = get(t, s.Handler(), "/patterns?limit=2")
	got := decode(body)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID, "limit keeps the newest events")

	_, body = get(t, s.Handler(), "/patterns?token=a")
	assert.Len(t, decode(body), 2)

	_, body = get(t, s.Handler(), "/patterns?type=rugged")
	assert.Len(t, decode(body), 1)

	code, _ := get(t, s.Handler(), "/patterns?limit=zero")
	assert.Equal(t, http.StatusBadRequest, code)
}

type patternsResponse struct {
	Count    int                  `json:"count"`
	Source   string               `json:"source"`
	Patterns []token.PatternEvent `json:"patterns"`
}

func getPatterns(t *testing.T, h http.Handler, path string) patternsResponse {
	t.Helper()
	code, body := get(t, h, path)
	require.Equal(t, http.StatusOK, code)
	var resp patternsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return resp
}

func TestServer_PatternsFromRecentBuffer(t *testing.T) {
	recent := fakeRecent{events: []token.PatternEvent{
		{ID: 8, TokenAddress: "a", PatternType: token.PatternPumped},
		{ID: 9, TokenAddress: "b", PatternType: token.PatternRugged},
		{ID: 10, TokenAddress: "a", PatternType: token.PatternBuyExecuted},
	}}
	// The store fails, so any read that reaches it shows up as a 500.
	s := NewServer(0, ServerDeps{Recent: recent, Patterns: fakePatterns{err: errors.New("db locked")}})

	resp := getPatterns(t, s.Handler(), "/patterns?limit=2")
	assert.Equal(t, "recent", resp.Source)
	require.Len(t, resp.Patterns, 2)
	assert.Equal(t, int64(9), resp.Patterns[0].ID)

	resp = getPatterns(t, s.Handler(), "/patterns?token=a&limit=1")
	assert.Equal(t, "recent", resp.Source)
	require.Len(t, resp.Patterns, 1)
	assert.Equal(t, int64(10), resp.Patterns[0].ID)

	code, _ := get(t, s.Handler(), "/patterns?type=rugged&limit=5")
	assert.Equal(t, http.StatusInternalServerError, code, "a short buffer falls back to the store")
}

func TestServer_PatternsFallsBackToStore(t *testing.T) {
	recent := fakeRecent{events: []token.PatternEvent{{ID: 3, TokenAddress: "a", PatternType: token.PatternPumped}}}
	stored := fakePatterns{events: []token.PatternEvent{
		{ID: 1, TokenAddress: "a", PatternType: token.PatternRugged},
		{ID: 2, TokenAddress: "b", PatternType: token.PatternRugged},
		{ID: 3, TokenAddress: "a", PatternType: token.PatternPumped},
	}}
	s := NewServer(0, ServerDeps{Recent: recent, Patterns: stored})

	resp := getPatterns(t, s.Handler(), "/patterns?limit=3")
	assert.Equal(t, "store", resp.Source)
	assert.Len(t, resp.Patterns, 3)

	// Without a store the buffer answers with what it has.
	s = NewServer(0, ServerDeps{Recent: recent})
	resp = getPatterns(t, s.Handler(), "/patterns")
	assert.Equal(t, "recent", resp.Source)
	assert.Len(t, resp.Patterns, 1)

	resp = getPatterns(t, s.Handler(), "/patterns?token=zzz")
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Patterns)
}

func TestServer_PatternsError(t *testing.T) {
	s := NewServer(0, ServerDeps{Patterns: fakePatterns{err: errors.New("db locked")}})
	code, body := get(t, s.Handler(), "/patterns")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, strings.Contains(body, "db locked"), "internal errors are not leaked")
}

func TestServer_Blacklist(t *testing.T) {
	s := NewServer(0, ServerDeps{Blacklist: fakeBlacklist{coins: []string{"x"}}})
	code, body := get(t, s.Handler(), "/blacklist")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"coins":["x"],"devs":[]}`, body)
}

func TestServer_DisabledRoutes(t *testing.T) {
	s := NewServer(0, ServerDeps{})
	code, _ := get(t, s.Handler(), "/patterns")
	assert.Equal(t, http.StatusNotFound, code)
}
