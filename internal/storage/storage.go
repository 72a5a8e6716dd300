package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexus-trading/screener/internal/token"
)

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// TokenStore persists the latest snapshot per token address.
//
// UpsertToken is last-write-wins keyed by address, guarded by LastUpdated:
// a write whose LastUpdated is older than the stored row is ignored, so a
// slow writer cannot roll a token back. A zero LastUpdated is stamped with
// the current time.
//
// TopTokensByMarketCap orders by market cap descending, then address. A
// negative limit returns every token.
type TokenStore interface {
	UpsertToken(ctx context.Context, s *token.Snapshot) error
	GetToken(ctx context.Context, address string) (*token.Snapshot, error)
	ListTokens(ctx context.Context) ([]token.Snapshot, error)
	TopTokensByMarketCap(ctx context.Context, limit int) ([]token.Snapshot, error)
}

// PatternStore is the append-only pattern event log.
//
// AppendPattern assigns e.ID and, when zero, e.DetectedAt. ListPatterns
// returns events ordered by detected_at, then id.
type PatternStore interface {
	AppendPattern(ctx context.Context, e *token.PatternEvent) error
	ListPatterns(ctx context.Context) ([]token.PatternEvent, error)
}

// Store is a full persistence backend.
type Store interface {
	TokenStore
	PatternStore
	Close() error
}

// ValidateSnapshot checks the fields every backend requires.
func ValidateSnapshot(s *token.Snapshot) error {
	if s == nil || s.Address == "" {
		return fmt.Errorf("%w: token address is required", ErrInvalidInput)
	}
	return nil
}

// ValidatePattern checks the fields every backend requires.
func ValidatePattern(e *token.PatternEvent) error {
	if e == nil || e.TokenAddress == "" || e.PatternType == "" {
		return fmt.Errorf("%w: pattern needs token address and type", ErrInvalidInput)
	}
	return nil
}

// StatusOrUnknown maps an empty status to unknown for storage.
func StatusOrUnknown(s token.Status) token.Status {
	if s == "" {
		return token.StatusUnknown
	}
	return s
}
