package scanner

import (
	"fmt"
	"time"

	"github.com/nexus-trading/screener/internal/token"
)

// ---------------------------------------------------------------------------
// Pattern classifiers
// ---------------------------------------------------------------------------

// DetectPump reports a 24h price change above maxPriceChange.
func DetectPump(s token.Snapshot, maxPriceChange float64) (bool, string) {
	return s.PriceChange24h > maxPriceChange, fmt.Sprintf("Price change: %g%%", s.PriceChange24h)
}

// DetectRug reports a 24h price change below minPriceDrop (a negative number).
func DetectRug(s token.Snapshot, minPriceDrop float64) (bool, string) {
	return s.PriceChange24h < minPriceDrop, fmt.Sprintf("Price drop: %g%%", s.PriceChange24h)
}

// IsNewPair reports whether the pair was created within the last maxAgeHours.
func IsNewPair(s token.Snapshot, maxAgeHours float64, now time.Time) (bool, string) {
	createdSec := float64(s.PairCreatedAt) / 1000
	nowSec := float64(now.UnixMilli()) / 1000
	ageHours := (nowSec - createdSec) / 3600
	return createdSec > nowSec-maxAgeHours*3600, fmt.Sprintf("Pair age: %.2f hours", ageHours)
}

const stableDetails = "No significant patterns detected"

// classifyRule is one row of the status priority table.
type classifyRule struct {
	status token.Status
	match  func(s token.Snapshot, now time.Time) (bool, string)
}

// Classifier assigns exactly one status per snapshot. Rules are tried in
// order; the first match wins and stable is the fallback.
type Classifier struct {
	rules []classifyRule
	now   func() time.Time
}

// NewClassifier builds the pump -> rug -> new_pair table.
func NewClassifier(t Thresholds) (*Classifier, error) {
	switch {
	case t.MaxPriceChange == nil:
		return nil, fmt.Errorf("%w: max_price_change", ErrMissingThreshold)
	case t.MinPriceDrop == nil:
		return nil, fmt.Errorf("%w: min_price_drop", ErrMissingThreshold)
	case t.MaxAgeHours == nil:
		return nil, fmt.Errorf("%w: max_age_hours", ErrMissingThreshold)
	}
	maxChange, minDrop, maxAge := *t.MaxPriceChange, *t.MinPriceDrop, *t.MaxAgeHours

	return &Classifier{
		rules: []classifyRule{
			{token.StatusPumped, func(s token.Snapshot, _ time.Time) (bool, string) {
				return DetectPump(s, maxChange)
			}},
			{token.StatusRugged, func(s token.Snapshot, _ time.Time) (bool, string) {
				return DetectRug(s, minDrop)
			}},
			{token.StatusNewPair, func(s token.Snapshot, now time.Time) (bool, string) {
				return IsNewPair(s, maxAge, now)
			}},
		},
		now: time.Now,
	}, nil
}

// SetClock overrides the time source. Used in tests.
func (c *Classifier) SetClock(now func() time.Time) {
	c.now = now
}

// Classify returns the first matching status and its detail text, or stable.
func (c *Classifier) Classify(s token.Snapshot) (token.Status, string) {
	now := c.now()
	for _, r := range c.rules {
		if ok, details := r.match(s, now); ok {
			return r.status, details
		}
	}
	return token.StatusStable, stableDetails
}

// Order returns the rule priority, stable last.
func (c *Classifier) Order() []token.Status {
	out := make([]token.Status, 0, len(c.rules)+1)
	for _, r := range c.rules {
		out = append(out, r.status)
	}
	return append(out, token.StatusStable)
}
