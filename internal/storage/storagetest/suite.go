// Package storagetest holds the behavioural suite every storage backend runs.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nexus-trading/screener/internal/storage"
	"github.com/nexus-trading/screener/internal/token"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

// Run exercises the storage.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertAndGet", func(t *testing.T) { testUpsertAndGet(t, newStore(t)) })
	t.Run("UpsertOverwrites", func(t *testing.T) { testUpsertOverwrites(t, newStore(t)) })
	t.Run("StaleWriteIgnored", func(t *testing.T) { testStaleWriteIgnored(t, newStore(t)) })
	t.Run("LastUpdatedStamped", func(t *testing.T) { testLastUpdatedStamped(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("InvalidInput", func(t *testing.T) { testInvalidInput(t, newStore(t)) })
	t.Run("TopByMarketCap", func(t *testing.T) { testTopByMarketCap(t, newStore(t)) })
	t.Run("PatternsAppendOnly", func(t *testing.T) { testPatternsAppendOnly(t, newStore(t)) })
	t.Run("ConcurrentWrites", func(t *testing.T) { testConcurrentWrites(t, newStore(t)) })
}

func sample(addr string) *token.Snapshot {
	return &token.Snapshot{
		Address:        addr,
		Name:           "Token " + addr,
		Symbol:         "TKN",
		MarketCap:      150_000,
		Volume24h:      20_000,
		Liquidity:      60_000,
		PriceUSD:       decimal.RequireFromString("0.00042"),
		PriceChange24h: 12.5,
		PairCreatedAt:  1_700_000_000_000,
		TotalSupply:    1e9,
		DevAddress:     "dev-" + addr,
		Status:         token.StatusNewPair,
		LastUpdated:    time.Now().Unix(),
	}
}

func testUpsertAndGet(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	in := sample("addr-1")
	require.NoError(t, s.UpsertToken(ctx, in))

	got, err := s.GetToken(ctx, "addr-1")
	require.NoError(t, err)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.MarketCap, got.MarketCap)
	assert.True(t, in.PriceUSD.Equal(got.PriceUSD))
	assert.Equal(t, in.PairCreatedAt, got.PairCreatedAt)
	assert.Equal(t, in.DevAddress, got.DevAddress)
	assert.Equal(t, token.StatusNewPair, got.Status)
	assert.Equal(t, in.LastUpdated, got.LastUpdated)
}

func testUpsertOverwrites(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	first := sample("addr-1")
	require.NoError(t, s.UpsertToken(ctx, first))

	second := sample("addr-1")
	second.Status = token.StatusPumped
	second.MarketCap = 999
	second.LastUpdated = first.LastUpdated + 1
	require.NoError(t, s.UpsertToken(ctx, second))

	got, err := s.GetToken(ctx, "addr-1")
	require.NoError(t, err)
	assert.Equal(t, token.StatusPumped, got.Status)
	assert.Equal(t, 999.0, got.MarketCap)

	all, err := s.ListTokens(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testStaleWriteIgnored(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	fresh := sample("addr-1")
	fresh.Status = token.StatusRugged
	require.NoError(t, s.UpsertToken(ctx, fresh))

	stale := sample("addr-1")
	stale.Status = token.StatusStable
	stale.LastUpdated = fresh.LastUpdated - 60
	require.NoError(t, s.UpsertToken(ctx, stale))

	got, err := s.GetToken(ctx, "addr-1")
	require.NoError(t, err)
	assert.Equal(t, token.StatusRugged, got.Status)
}

func testLastUpdatedStamped(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	before := time.Now().Unix()
	in := sample("addr-1")
	in.LastUpdated = 0
	require.NoError(t, s.UpsertToken(ctx, in))

	got, err := s.GetToken(ctx, "addr-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.LastUpdated, before)
}

func testGetMissing(t *testing.T, s storage.Store) {
	defer s.Close()

	_, err := s.GetToken(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testInvalidInput(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	assert.ErrorIs(t, s.UpsertToken(ctx, &token.Snapshot{}), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.AppendPattern(ctx, &token.PatternEvent{TokenAddress: "a"}), storage.ErrInvalidInput)
}

func testTopByMarketCap(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	for i, mc := range []float64{10, 500, 70, 300} {
		snap := sample(fmt.Sprintf("addr-%d", i))
		snap.MarketCap = mc
		require.NoError(t, s.UpsertToken(ctx, snap))
	}

	top, err := s.TopTokensByMarketCap(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 500.0, top[0].MarketCap)
	assert.Equal(t, 300.0, top[1].MarketCap)

	all, err := s.TopTokensByMarketCap(ctx, -1)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []float64{500, 300, 70, 10},
		[]float64{all[0].MarketCap, all[1].MarketCap, all[2].MarketCap, all[3].MarketCap})

	none, err := s.TopTokensByMarketCap(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testPatternsAppendOnly(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	events := []*token.PatternEvent{
		{TokenAddress: "a", PatternType: token.PatternRugcheckFailed, DetectedAt: 200, Details: "Danger"},
		{TokenAddress: "a", PatternType: token.PatternRugcheckFailed, DetectedAt: 100, Details: "Danger again"},
		{TokenAddress: "b", PatternType: token.PatternNewPair, DetectedAt: 200, Details: "Pair age: 1.00 hours"},
	}
	for _, e := range events {
		require.NoError(t, s.AppendPattern(ctx, e))
		assert.NotZero(t, e.ID)
	}
	assert.NotEqual(t, events[0].ID, events[1].ID)

	got, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Duplicates are kept; ordering is detected_at then id.
	assert.Equal(t, int64(100), got[0].DetectedAt)
	assert.Equal(t, events[0].ID, got[1].ID)
	assert.Equal(t, events[2].ID, got[2].ID)
	assert.Equal(t, "Pair age: 1.00 hours", got[2].Details)

	stamped := &token.PatternEvent{TokenAddress: "c", PatternType: token.PatternBuyExecuted}
	require.NoError(t, s.AppendPattern(ctx, stamped))
	assert.NotZero(t, stamped.DetectedAt)
}

func testConcurrentWrites(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap := sample(fmt.Sprintf("addr-%d", i%5))
			assert.NoError(t, s.UpsertToken(ctx, snap))
			assert.NoError(t, s.AppendPattern(ctx, &token.PatternEvent{
				TokenAddress: snap.Address,
				PatternType:  token.PatternNewPair,
			}))
		}(i)
	}
	wg.Wait()

	tokens, err := s.ListTokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 5)

	patterns, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	assert.Len(t, patterns, 20)
}
