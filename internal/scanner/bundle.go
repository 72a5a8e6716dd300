package scanner

import (
	"fmt"
	"time"

	"github.com/nexus-trading/screener/internal/token"
)

// BundleConfig tunes coordinated-buy detection.
type BundleConfig struct {
	// Number of significant wallets at which a token counts as bundled.
	MaxWallets int `yaml:"max_wallets" default:"5" validate:"gte=1"`

	// Share of total supply (percent) that makes a wallet significant.
	MinPercentage float64 `yaml:"min_percentage" default:"2" validate:"gt=0"`

	// Only buys this recent are considered.
	TimeWindowSeconds int `yaml:"time_window_seconds" default:"60" validate:"gte=1"`
}

// DefaultBundleConfig returns the stock thresholds.
func DefaultBundleConfig() BundleConfig {
	return BundleConfig{MaxWallets: 5, MinPercentage: 2, TimeWindowSeconds: 60}
}

// BundleDetector flags launches where many wallets bought a large share of
// supply within a short window.
type BundleDetector struct {
	config BundleConfig
	now    func() time.Time
}

// NewBundleDetector creates a bundle detector.
func NewBundleDetector(config BundleConfig) *BundleDetector {
	return &BundleDetector{config: config, now: time.Now}
}

// SetClock overrides the time source. Used in tests.
func (d *BundleDetector) SetClock(now func() time.Time) {
	d.now = now
}

// DetectBundle sums in-window buys per wallet and counts the wallets holding
// at least MinPercentage of total supply.
func (d *BundleDetector) DetectBundle(c token.Candidate) (bool, string) {
	if len(c.RecentTxns) == 0 {
		return false, "No transaction data available"
	}
	// A share of a zero or negative supply is meaningless and must not ban.
	if c.TotalSupply <= 0 {
		return false, "No total supply data available"
	}

	nowMs := d.now().UnixMilli()
	windowMs := int64(d.config.TimeWindowSeconds) * 1000

	holdings := make(map[string]float64)
	for _, tx := range c.RecentTxns {
		if nowMs-tx.Timestamp > windowMs {
			continue
		}
		if tx.BuyerWallet == "" || tx.Amount == 0 {
			continue
		}
		holdings[tx.BuyerWallet] += tx.Amount
	}

	supply := c.TotalSupply
	significant := 0
	for _, amount := range holdings {
		if amount/supply*100 >= d.config.MinPercentage {
			significant++
		}
	}

	if significant >= d.config.MaxWallets {
		return true, fmt.Sprintf("Bundle detected: %d wallets hold >= %g%% each",
			significant, d.config.MinPercentage)
	}
	return false, "No bundle detected"
}
