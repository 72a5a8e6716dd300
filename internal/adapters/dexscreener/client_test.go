package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexus-trading/screener/internal/token"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pairsBody = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {
      "chainId": "solana",
      "pairAddress": "PairAAA",
      "baseToken": {"address": "MintAAA", "name": "Alpha", "symbol": "ALP"},
      "priceUsd": "0.00042",
      "txns": {
        "h24": {"buys": 7, "sells": 5},
        "recent": [{"timestamp": 1700000000000, "buyer_wallet": "w1", "amount": 12.5}]
      },
      "volume": {"h6": 1000, "h24": 6000},
      "priceChange": {"h24": 35.5},
      "liquidity": {"usd": 25000},
      "marketCap": 150000,
      "pairCreatedAt": 1699990000000,
      "dev_address": "DevAAA",
      "totalSupply": 1000000000
    },
    {"pairAddress": 12345},
    {"pairAddress": "PairBBB", "baseToken": {"name": "Beta"}}
  ]
}`

func TestClient_FetchCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pairsBody))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIURL: srv.URL})
	require.NoError(t, err)

	pairs, err := c.FetchCandidates(context.Background())
	require.NoError(t, err)
	// The pair with a numeric address is dropped.
	require.Len(t, pairs, 2)
	assert.Equal(t, "PairAAA", pairs[0].PairAddress)
	assert.Equal(t, "PairBBB", pairs[1].PairAddress)

	h := c.Health()
	assert.Equal(t, int64(1), h.Requests)
	assert.Equal(t, "healthy", h.State)
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIURL: srv.URL, MaxFailures: 2, Cooldown: time.Hour})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := c.FetchCandidates(context.Background())
		assert.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load(), "breaker should stop calling after two failures")
	assert.Equal(t, "open", c.Health().State)
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	supply := 1e9
	c, err := Normalize(Pair{
		PairAddress:   "PairAAA",
		BaseToken:     Token{Name: "Alpha", Symbol: "ALP"},
		PriceUsd:      "0.00042",
		Txns:          Txns{H24: TxnSummary{Buys: 7, Sells: 5}, Recent: []RecentTxn{{Timestamp: 1, BuyerWallet: "w", Amount: 2}}},
		Volume:        Volume{H6: 1000, H24: 6000},
		PriceChange:   PriceChange{H24: 35.5},
		Liquidity:     &Liquidity{Usd: 25000},
		MarketCap:     150000,
		PairCreatedAt: 1699990000000,
		DevAddress:    "DevAAA",
		TotalSupply:   &supply,
	})
	require.NoError(t, err)

	assert.Equal(t, "PairAAA", c.Address)
	assert.Equal(t, "Alpha", c.Name)
	assert.True(t, decimal.RequireFromString("0.00042").Equal(c.PriceUSD))
	assert.Equal(t, 6000.0, c.Volume24h)
	assert.Equal(t, 1000.0, c.VolumeH6)
	assert.Equal(t, 12, c.Trades24h)
	assert.Equal(t, 25000.0, c.Liquidity)
	assert.Equal(t, 1e9, c.TotalSupply)
	assert.Equal(t, "DevAAA", c.DevAddress)
	assert.Equal(t, token.StatusUnknown, c.Status)
	assert.False(t, c.ListedOnCEX)
	assert.Equal(t, []token.Transaction{{Timestamp: 1, BuyerWallet: "w", Amount: 2}}, c.RecentTxns)
}

func TestNormalize_Defaults(t *testing.T) {
	c, err := Normalize(Pair{PairAddress: "P"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Liquidity)
	assert.Equal(t, 1.0, c.TotalSupply)
	assert.True(t, c.PriceUSD.IsZero())
}

func TestNormalize_Malformed(t *testing.T) {
	_, err := Normalize(Pair{})
	assert.ErrorIs(t, err, ErrMalformedPair)

	_, err = Normalize(Pair{PairAddress: "P", PriceUsd: "not-a-number"})
	assert.ErrorIs(t, err, ErrMalformedPair)
}
