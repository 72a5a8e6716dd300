package pocketuniverse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexus-trading/screener/internal/adapters"
)

// Client calls the Pocket Universe fake-volume verification endpoint.
type Client struct {
	adapters.Counters

	httpClient *http.Client
	endpoint   string
}

// NewClient creates a verifier for the given endpoint.
func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("pocketuniverse: endpoint is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
	}, nil
}

func (c *Client) Name() string { return "pocketuniverse" }

func (c *Client) Health() adapters.HealthStatus {
	return c.Snapshot(c.Name(), "")
}

type verifyRequest struct {
	Address   string  `json:"address"`
	Volume24h float64 `json:"volume_24h"`
	Trades24h int     `json:"trades_24h"`
}

type verifyResponse struct {
	IsFakeVolume bool `json:"is_fake_volume"`
}

// VerifyVolume implements scanner.VolumeVerifier.
func (c *Client) VerifyVolume(ctx context.Context, address string, volume24h float64, trades24h int) (bool, error) {
	fake, err := c.verify(ctx, verifyRequest{Address: address, Volume24h: volume24h, Trades24h: trades24h})
	if err != nil {
		c.RecordError(err)
		return false, fmt.Errorf("pocketuniverse: %w", err)
	}
	c.RecordSuccess()
	return fake, nil
}

func (c *Client) verify(ctx context.Context, body verifyRequest) (bool, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return out.IsFakeVolume, nil
}
