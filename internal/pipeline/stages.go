package pipeline

import "github.com/nexus-trading/screener/internal/token"

// Stage names one step of token processing.
type Stage string

const (
	StageBlacklist      Stage = "blacklist"
	StageRiskScan       Stage = "risk_scan"
	StageBundle         Stage = "bundle"
	StageFakeVolume     Stage = "fake_volume"
	StageFilters        Stage = "filters"
	StageClassification Stage = "classification"
	StagePersist        Stage = "persist"
	StageTrade          Stage = "trade"
)

// gate is a screening stage that can reject a candidate.
type gate struct {
	stage Stage

	// pattern is recorded on rejection; empty records nothing.
	pattern token.PatternType

	// banPrefix is prepended to the detector details to form the blacklist
	// reason. Only gates with ban set add the address to the blacklist.
	ban       bool
	banPrefix string

	check func(p *Pipeline, r *run) (pass bool, details string)
}

// gates is the screening order. Local checks come before network calls, and
// only detectors accurate enough to justify a long-lived ban set ban.
var gates = []gate{
	{
		stage: StageBlacklist,
		check: (*Pipeline).checkBlacklist,
	},
	{
		stage:     StageRiskScan,
		pattern:   token.PatternRugcheckFailed,
		ban:       true,
		banPrefix: "Rugcheck failed: ",
		check:     (*Pipeline).checkRiskScan,
	},
	{
		stage:     StageBundle,
		pattern:   token.PatternBundleDetected,
		ban:       true,
		banPrefix: "Bundle detected: ",
		check:     (*Pipeline).checkBundle,
	},
	{
		stage:   StageFakeVolume,
		pattern: token.PatternFakeVolume,
		ban:     true,
		check:   (*Pipeline).checkFakeVolume,
	},
	{
		stage: StageFilters,
		check: (*Pipeline).checkFilters,
	},
}

// Stages returns the full processing order: the screening gates followed by
// classification, persistence and the conditional trade.
func Stages() []Stage {
	out := make([]Stage, 0, len(gates)+3)
	for _, g := range gates {
		out = append(out, g.stage)
	}
	return append(out, StageClassification, StagePersist, StageTrade)
}

// Bans reports whether a rejection at stage adds the token to the blacklist.
func Bans(stage Stage) bool {
	for _, g := range gates {
		if g.stage == stage {
			return g.ban
		}
	}
	return false
}
