package rugcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nexus-trading/screener/internal/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{APIURL: srv.URL + "/", APIKey: "k-123"})
	require.NoError(t, err)
	return c
}

func TestCheckToken_Good(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/scan/solana/Mint111", r.URL.Path)
		assert.Equal(t, "k-123", r.Header.Get("X-API-KEY"))
		_, _ = w.Write([]byte(`{"status":"Good","details":"LP locked"}`))
	})

	good, details := c.CheckToken(context.Background(), "Mint111")
	assert.True(t, good)
	assert.Equal(t, "LP locked", details)
	assert.Equal(t, "healthy", c.Health().State)
}

func TestCheckToken_NotGood(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"Danger","details":"mint authority enabled"}`))
	})

	good, details := c.CheckToken(context.Background(), "Mint111")
	assert.False(t, good)
	assert.Equal(t, "mint authority enabled", details)
}

func TestCheckToken_DefaultDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"Good"}`))
	})

	good, details := c.CheckToken(context.Background(), "Mint111")
	assert.True(t, good)
	assert.Equal(t, "No details provided", details)
}

func TestCheckToken_ServerErrorFailsClosed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.Equal(t, scanner.FailClosed, c.Policy)

	good, details := c.CheckToken(context.Background(), "Mint111")
	assert.False(t, good)
	assert.Contains(t, details, "API error")
	assert.Contains(t, details, "500")
	assert.Equal(t, "degraded", c.Health().State)
}

func TestCheckToken_FailOpenPolicy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c.Policy = scanner.FailOpen

	good, _ := c.CheckToken(context.Background(), "Mint111")
	assert.True(t, good)
}

func TestCheckToken_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{APIURL: url, APIKey: "k"})
	require.NoError(t, err)

	good, details := c.CheckToken(context.Background(), "Mint111")
	assert.False(t, good)
	assert.Contains(t, details, "API error")
}

func TestNewClient_RequiresConfig(t *testing.T) {
	_, err := NewClient(Config{APIURL: "https://api.rugcheck.xyz"})
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "k"})
	assert.Error(t, err)
}
