package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nexus-trading/screener/internal/storage"
	"github.com/nexus-trading/screener/internal/token"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu       sync.RWMutex
	tokens   map[string]token.Snapshot // keyed by address
	patterns []token.PatternEvent
	nextID   int64
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{tokens: make(map[string]token.Snapshot)}
}

// UpsertToken stores a copy of s unless the stored row is newer.
func (s *Store) UpsertToken(_ context.Context, snap *token.Snapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}
	if snap.LastUpdated == 0 {
		snap.LastUpdated = time.Now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tokens[snap.Address]; ok && existing.LastUpdated > snap.LastUpdated {
		return nil
	}
	cp := *snap
	cp.Status = storage.StatusOrUnknown(cp.Status)
	s.tokens[snap.Address] = cp
	return nil
}

// GetToken returns a copy of the stored snapshot.
func (s *Store) GetToken(_ context.Context, address string) (*token.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.tokens[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &snap, nil
}

// ListTokens returns all snapshots ordered by address.
func (s *Store) ListTokens(_ context.Context) ([]token.Snapshot, error) {
	s.mu.RLock()
	out := make([]token.Snapshot, 0, len(s.tokens))
	for _, snap := range s.tokens {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// TopTokensByMarketCap returns up to limit snapshots, largest market cap first.
func (s *Store) TopTokensByMarketCap(ctx context.Context, limit int) ([]token.Snapshot, error) {
	all, err := s.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].MarketCap > all[j].MarketCap })
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// AppendPattern appends an event and assigns its ID.
func (s *Store) AppendPattern(_ context.Context, e *token.PatternEvent) error {
	if err := storage.ValidatePattern(e); err != nil {
		return err
	}
	if e.DetectedAt == 0 {
		e.DetectedAt = time.Now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	e.ID = s.nextID
	s.patterns = append(s.patterns, *e)
	return nil
}

// ListPatterns returns all events ordered by detected_at, then id.
func (s *Store) ListPatterns(_ context.Context) ([]token.PatternEvent, error) {
	s.mu.RLock()
	out := make([]token.PatternEvent, len(s.patterns))
	copy(out, s.patterns)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DetectedAt != out[j].DetectedAt {
			return out[i].DetectedAt < out[j].DetectedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Close() error { return nil }
