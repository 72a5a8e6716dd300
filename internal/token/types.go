package token

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Token snapshot & classification
// ---------------------------------------------------------------------------

// Status is the last classification produced for a token.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusPumped  Status = "pumped"
	StatusRugged  Status = "rugged"
	StatusNewPair Status = "new_pair"
	StatusStable  Status = "stable"
)

// Tradable reports whether a status triggers trade dispatch.
func (s Status) Tradable() bool {
	return s == StatusNewPair || s == StatusPumped
}

// Snapshot is the persisted view of a token, keyed by Address.
type Snapshot struct {
	Address        string          `json:"address"`
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"`
	MarketCap      float64         `json:"market_cap"`
	Volume24h      float64         `json:"volume"`
	Liquidity      float64         `json:"liquidity"`
	PriceUSD       decimal.Decimal `json:"price_usd"`
	PriceChange24h float64         `json:"price_change_24h"`
	PairCreatedAt  int64           `json:"pair_created_at"` // epoch ms
	TotalSupply    float64         `json:"total_supply"`
	DevAddress     string          `json:"dev_address,omitempty"`
	Status         Status          `json:"status"`
	ListedOnCEX    bool            `json:"listed_on_cex"`
	LastUpdated    int64           `json:"last_updated"` // epoch seconds
}

// Transaction is a recent buy observed on the pair.
type Transaction struct {
	Timestamp   int64   `json:"timestamp"` // epoch ms
	BuyerWallet string  `json:"buyer_wallet"`
	Amount      float64 `json:"amount"`
}

// Candidate is a snapshot plus the per-poll activity read by detectors.
// Activity fields are never persisted.
type Candidate struct {
	Snapshot

	VolumeH6   float64       `json:"volume_h6"`
	Trades24h  int           `json:"trades_24h"`
	RecentTxns []Transaction `json:"recent_txns,omitempty"`
}

// Label returns "name (address)" for log and notification text.
func (s Snapshot) Label() string {
	if s.Name == "" {
		return s.Address
	}
	return s.Name + " (" + s.Address + ")"
}

// NormalizeAddress folds an address for case-insensitive comparison.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ---------------------------------------------------------------------------
// Pattern events
// ---------------------------------------------------------------------------

// PatternType identifies what a pattern event records.
type PatternType string

const (
	PatternRugcheckFailed PatternType = "rugcheck_failed"
	PatternBundleDetected PatternType = "bundle_detected"
	PatternFakeVolume     PatternType = "fake_volume"
	PatternPumped         PatternType = "pumped"
	PatternRugged         PatternType = "rugged"
	PatternNewPair        PatternType = "new_pair"
	PatternBuyExecuted    PatternType = "buy_executed"
)

// PatternForStatus maps a classification to its pattern type. Stable and
// unknown have no pattern.
func PatternForStatus(s Status) (PatternType, bool) {
	switch s {
	case StatusPumped:
		return PatternPumped, true
	case StatusRugged:
		return PatternRugged, true
	case StatusNewPair:
		return PatternNewPair, true
	default:
		return "", false
	}
}

// PatternEvent is an immutable audit record. ID is assigned by the store.
type PatternEvent struct {
	ID           int64       `json:"id"`
	TokenAddress string      `json:"token_address"`
	PatternType  PatternType `json:"pattern_type"`
	DetectedAt   int64       `json:"detected_at"` // epoch seconds
	Details      string      `json:"details"`
}

// ---------------------------------------------------------------------------
// Trade commands
// ---------------------------------------------------------------------------

// TradeAction is the side of a trade command.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)
