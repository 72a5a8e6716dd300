package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexus-trading/screener/internal/adapters"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ---------------------------------------------------------------------------
// DexScreener API Client: market data feed, behind a circuit breaker
// ---------------------------------------------------------------------------

// Config configures the market-data client.
type Config struct {
	APIURL      string
	Timeout     time.Duration
	MaxFailures uint32        // consecutive failures before the breaker opens
	Cooldown    time.Duration // time the breaker stays open
}

// Client fetches candidate pairs from DexScreener.
type Client struct {
	adapters.Counters

	httpClient *http.Client
	apiURL     string
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a DexScreener client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("dexscreener: api_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}

	st := gobreaker.Settings{
		Name:    "dexscreener",
		Timeout: cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("dexscreener: circuit breaker state change")
		},
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiURL:     cfg.APIURL,
		breaker:    gobreaker.NewCircuitBreaker(st),
	}, nil
}

func (c *Client) Name() string { return "dexscreener" }

// Health implements adapters.HealthReporter.
func (c *Client) Health() adapters.HealthStatus {
	state := ""
	if c.breaker.State() == gobreaker.StateOpen {
		state = "open"
	}
	return c.Snapshot(c.Name(), state)
}

// FetchCandidates returns the pairs currently listed by the feed. Entries that
// fail to decode are logged and dropped; the rest are returned.
func (c *Client) FetchCandidates(ctx context.Context) ([]Pair, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		c.RecordError(err)
		return nil, fmt.Errorf("dexscreener: %w", err)
	}
	c.RecordSuccess()
	return out.([]Pair), nil
}

func (c *Client) fetch(ctx context.Context) ([]Pair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var raw struct {
		Pairs []json.RawMessage `json:"pairs"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	pairs := make([]Pair, 0, len(raw.Pairs))
	for i, msg := range raw.Pairs {
		var p Pair
		if err := json.Unmarshal(msg, &p); err != nil {
			log.Warn().
				Err(fmt.Errorf("%w: %v", ErrMalformedPair, err)).
				Int("index", i).
				Msg("dexscreener: skipping pair")
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
