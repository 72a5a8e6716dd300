package scanner

import (
	"errors"
	"fmt"

	"github.com/nexus-trading/screener/internal/token"
)

// ErrMissingThreshold is returned when a required filter threshold is absent.
var ErrMissingThreshold = errors.New("missing filter threshold")

// Thresholds holds the numeric screening limits. Pointer fields distinguish
// "absent from config" from a configured zero.
type Thresholds struct {
	MinMarketCap   *float64 `yaml:"min_market_cap"`
	MaxDailyVolume *float64 `yaml:"max_daily_volume"`
	MinLiquidity   *float64 `yaml:"min_liquidity"`
	MaxAgeHours    *float64 `yaml:"max_age_hours"`
	MaxPriceChange *float64 `yaml:"max_price_change"`
	MinPriceDrop   *float64 `yaml:"min_price_drop"`
}

// Validate reports the first absent threshold.
func (t Thresholds) Validate() error {
	for _, f := range []struct {
		key string
		val *float64
	}{
		{"min_market_cap", t.MinMarketCap},
		{"max_daily_volume", t.MaxDailyVolume},
		{"min_liquidity", t.MinLiquidity},
		{"max_age_hours", t.MaxAgeHours},
		{"max_price_change", t.MaxPriceChange},
		{"min_price_drop", t.MinPriceDrop},
	} {
		if f.val == nil {
			return fmt.Errorf("%w: %s", ErrMissingThreshold, f.key)
		}
	}
	return nil
}

// Filter check names.
const (
	CheckMarketCap = "market_cap"
	CheckVolume    = "volume"
	CheckLiquidity = "liquidity"
	CheckAll       = "all"
)

// FilterResult is the outcome of EvaluateFilters. Check names the condition
// that failed, or CheckAll on a pass.
type FilterResult struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
	Check  string `json:"check"`
}

// EvaluateFilters applies the market cap, volume and liquidity limits in that
// order. The first failing check decides the result.
func EvaluateFilters(s token.Snapshot, t Thresholds) (FilterResult, error) {
	switch {
	case t.MinMarketCap == nil:
		return FilterResult{}, fmt.Errorf("%w: min_market_cap", ErrMissingThreshold)
	case t.MaxDailyVolume == nil:
		return FilterResult{}, fmt.Errorf("%w: max_daily_volume", ErrMissingThreshold)
	case t.MinLiquidity == nil:
		return FilterResult{}, fmt.Errorf("%w: min_liquidity", ErrMissingThreshold)
	case t.MaxAgeHours == nil:
		return FilterResult{}, fmt.Errorf("%w: max_age_hours", ErrMissingThreshold)
	}

	if s.MarketCap < *t.MinMarketCap {
		return FilterResult{Reason: "Market cap too low", Check: CheckMarketCap}, nil
	}
	if s.Volume24h > *t.MaxDailyVolume {
		return FilterResult{Reason: "Volume too high", Check: CheckVolume}, nil
	}
	if s.Liquidity < *t.MinLiquidity {
		return FilterResult{Reason: "Liquidity too low", Check: CheckLiquidity}, nil
	}
	return FilterResult{Passed: true, Reason: "Passed all filters", Check: CheckAll}, nil
}

// ThresholdFilter is the numeric filter stage bound to a validated set of
// thresholds.
type ThresholdFilter struct {
	thresholds Thresholds
}

func NewThresholdFilter(t Thresholds) (*ThresholdFilter, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &ThresholdFilter{thresholds: t}, nil
}

// Check returns whether s clears every limit and the reason for the result.
func (f *ThresholdFilter) Check(s token.Snapshot) (bool, string) {
	res, err := EvaluateFilters(s, f.thresholds)
	if err != nil {
		return false, err.Error()
	}
	return res.Passed, res.Reason
}
