// Package report builds the periodic pattern analysis: every recorded
// pattern event plus the largest tokens by market cap.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nexus-trading/screener/internal/token"
)

// Source is the read side of the store the report needs.
type Source interface {
	ListPatterns(ctx context.Context) ([]token.PatternEvent, error)
	TopTokensByMarketCap(ctx context.Context, limit int) ([]token.Snapshot, error)
}

// Report is one analysis snapshot.
type Report struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Patterns    []token.PatternEvent `json:"patterns"`
	Counts      map[string]int       `json:"counts"`
	TopTokens   []token.Snapshot     `json:"top_tokens"`
}

type Reporter struct {
	source Source
	topN   int
	now    func() time.Time
}

func New(source Source, topN int) *Reporter {
	if topN <= 0 {
		topN = 10
	}
	return &Reporter{source: source, topN: topN, now: time.Now}
}

// Build reads the full pattern log and the top tokens.
func (r *Reporter) Build(ctx context.Context) (Report, error) {
	patterns, err := r.source.ListPatterns(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("report: list patterns: %w", err)
	}
	top, err := r.source.TopTokensByMarketCap(ctx, r.topN)
	if err != nil {
		return Report{}, fmt.Errorf("report: top tokens: %w", err)
	}

	counts := make(map[string]int)
	for _, p := range patterns {
		counts[string(p.PatternType)]++
	}
	return Report{GeneratedAt: r.now().UTC(), Patterns: patterns, Counts: counts, TopTokens: top}, nil
}

// WriteText renders rep in the human-readable layout.
func (rep Report) WriteText(w io.Writer) error {
	var b strings.Builder
	b.WriteString("Pattern Analysis:\n")
	if len(rep.Patterns) == 0 {
		b.WriteString("No patterns detected yet.\n")
	}
	for _, p := range rep.Patterns {
		fmt.Fprintf(&b, "Token: %s, Type: %s, Details: %s, Detected: %s\n",
			p.TokenAddress, p.PatternType, p.Details,
			time.Unix(p.DetectedAt, 0).UTC().Format(time.DateTime))
	}

	fmt.Fprintf(&b, "\nTop %d Coins by Market Cap:\n", len(rep.TopTokens))
	for _, t := range rep.TopTokens {
		fmt.Fprintf(&b, "%s (%s): Market Cap = $%s, Volume = $%s\n",
			t.Name, t.Symbol, money(t.MarketCap), money(t.Volume24h))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders rep as indented JSON.
func (rep Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// Run builds a report and writes it to path, or to the log when path is
// empty. The file is replaced atomically.
func (r *Reporter) Run(ctx context.Context, path string) error {
	rep, err := r.Build(ctx)
	if err != nil {
		return err
	}

	if path == "" {
		var b strings.Builder
		_ = rep.WriteText(&b)
		log.Info().
			Int("patterns", len(rep.Patterns)).
			Int("top_tokens", len(rep.TopTokens)).
			Msg("report: pattern analysis\n" + b.String())
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := rep.WriteText(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("report: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("report: rename: %w", err)
	}
	log.Info().Str("path", path).Int("patterns", len(rep.Patterns)).Msg("report: written")
	return nil
}

// money formats v with two decimals and thousands separators.
func money(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}
