package rugcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nexus-trading/screener/internal/adapters"
	"github.com/nexus-trading/screener/internal/scanner"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// Rugcheck API Client: per-token risk scan
// ---------------------------------------------------------------------------

const defaultDetails = "No details provided"

// Config configures the risk-scan client.
type Config struct {
	APIURL            string
	APIKey            string
	Chain             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// ScanResult is the body of the scan endpoint.
type ScanResult struct {
	Status  string  `json:"status"`
	Details *string `json:"details"`
}

// Client asks the Rugcheck service whether a token is safe to trade.
type Client struct {
	adapters.Counters

	httpClient *http.Client
	baseURL    string
	apiKey     string
	chain      string
	limiter    *rate.Limiter

	// Policy applies when the service cannot be reached or answers with a
	// non-2xx status. Defaults to FailClosed: an unverifiable token is
	// rejected and blacklisted.
	Policy scanner.FailurePolicy
}

// NewClient creates a Rugcheck client. A missing endpoint or API key is a
// configuration error.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIURL == "" || cfg.APIKey == "" {
		return nil, errors.New("rugcheck: api_url and api_key are required")
	}
	if cfg.Chain == "" {
		cfg.Chain = "solana"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		chain:      cfg.Chain,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		Policy:     scanner.FailClosed,
	}, nil
}

func (c *Client) Name() string { return "rugcheck" }

// Health implements adapters.HealthReporter.
func (c *Client) Health() adapters.HealthStatus {
	return c.Snapshot(c.Name(), "")
}

// CheckToken returns whether the service rates the token "Good", with the
// service's details. Transport and HTTP errors are resolved by Policy.
func (c *Client) CheckToken(ctx context.Context, address string) (bool, string) {
	res, err := c.scan(ctx, address)
	if err != nil {
		c.RecordError(err)
		log.Warn().Err(err).
			Str("service", c.Name()).
			Str("address", address).
			Str("policy", c.Policy.String()).
			Msg("rugcheck: scan failed")
		if c.Policy == scanner.FailOpen {
			return true, fmt.Sprintf("API error (ignored): %v", err)
		}
		return false, fmt.Sprintf("API error: %v", err)
	}
	c.RecordSuccess()

	details := defaultDetails
	if res.Details != nil {
		details = *res.Details
	}
	return res.Status == "Good", details
}

func (c *Client) scan(ctx context.Context, address string) (*ScanResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	endpoint := fmt.Sprintf("%s/tokens/scan/%s/%s", c.baseURL, url.PathEscape(c.chain), url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var res ScanResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res, nil
}
