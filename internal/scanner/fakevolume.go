package scanner

import (
	"context"
	"fmt"

	"github.com/nexus-trading/screener/internal/token"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Fake-Volume Detector: wash-trading heuristics plus optional verification
// ---------------------------------------------------------------------------

// FakeVolumeConfig tunes the fake-volume heuristics.
type FakeVolumeConfig struct {
	// Flag when volume_24h / liquidity exceeds this ratio.
	VolumeLiquidityRatio float64 `yaml:"volume_liquidity_ratio" default:"50" validate:"gt=0"`

	// Flag when volume_24h / volume_h6 * 100 exceeds this percentage...
	VolumeSpikeThreshold float64 `yaml:"volume_spike_threshold" default:"1000" validate:"gt=0"`

	// ...and at least this many trades happened in 24h.
	MinTradesForSpike int `yaml:"min_trades_for_spike" default:"10" validate:"gte=0"`

	// Ask the external verifier when both heuristics pass.
	PocketUniverseEnabled bool `yaml:"pocket_universe_enabled"`
}

// DefaultFakeVolumeConfig returns the stock heuristics.
func DefaultFakeVolumeConfig() FakeVolumeConfig {
	return FakeVolumeConfig{
		VolumeLiquidityRatio: 50,
		VolumeSpikeThreshold: 1000,
		MinTradesForSpike:    10,
	}
}

// VolumeVerifier is the external fake-volume verification service.
type VolumeVerifier interface {
	VerifyVolume(ctx context.Context, address string, volume24h float64, trades24h int) (bool, error)
}

// FakeVolumeDetector flags tokens whose reported volume looks manufactured.
type FakeVolumeDetector struct {
	config   FakeVolumeConfig
	verifier VolumeVerifier

	// Policy applies when the verifier errors. Defaults to FailOpen: an
	// unreachable verifier never rejects a token on its own.
	Policy FailurePolicy
}

// NewFakeVolumeDetector creates a detector. verifier may be nil.
func NewFakeVolumeDetector(config FakeVolumeConfig, verifier VolumeVerifier) *FakeVolumeDetector {
	return &FakeVolumeDetector{config: config, verifier: verifier, Policy: FailOpen}
}

// Detect runs the ratio check, the spike check and, if enabled, external
// verification. The first positive check decides.
func (d *FakeVolumeDetector) Detect(ctx context.Context, c token.Candidate) (bool, string) {
	volume, liquidity := c.Volume24h, c.Liquidity

	if liquidity > 0 {
		if ratio := volume / liquidity; ratio > d.config.VolumeLiquidityRatio {
			return true, fmt.Sprintf("High volume-to-liquidity ratio: %.2fx", ratio)
		}
	}

	if c.VolumeH6 > 0 {
		spike := volume / c.VolumeH6 * 100
		if spike > d.config.VolumeSpikeThreshold && c.Trades24h >= d.config.MinTradesForSpike {
			return true, fmt.Sprintf("Volume spike: %.2f%% with %d trades", spike, c.Trades24h)
		}
	}

	if d.config.PocketUniverseEnabled && d.verifier != nil {
		fake, err := d.verifier.VerifyVolume(ctx, c.Address, volume, c.Trades24h)
		if err != nil {
			log.Warn().Err(err).
				Str("address", c.Address).
				Str("policy", d.Policy.String()).
				Msg("fakevolume: verification unavailable")
			if d.Policy == FailClosed {
				return true, fmt.Sprintf("Volume verification unavailable: %v", err)
			}
			return false, "No fake volume detected"
		}
		if fake {
			return true, "Pocket Universe API flagged as fake volume"
		}
	}

	return false, "No fake volume detected"
}
