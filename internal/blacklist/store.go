package blacklist

import (
	"sync"

	"github.com/nexus-trading/screener/internal/token"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Blacklist Store: coin and developer address bans, YAML-backed
// ---------------------------------------------------------------------------

// Store holds the blacklisted coin and developer addresses.
//
// Every addition is flushed to the Persister before AddCoin returns. When the
// flush fails the error is logged and the in-memory addition is kept: the
// in-memory set is authoritative for this process even if the durable copy
// lags behind (availability over durability). A failed flush is retried
// implicitly by the next successful addition, which rewrites both lists.
type Store struct {
	persister Persister

	// writeMu serializes check -> append -> persist.
	writeMu sync.Mutex
	closed  bool

	mu      sync.RWMutex
	coins   []string
	coinSet map[string]struct{}
	devs    []string
	devSet  map[string]struct{}
}

// NewStore loads the persisted lists. A nil persister keeps the blacklist in
// memory only.
func NewStore(persister Persister) (*Store, error) {
	s := &Store{
		persister: persister,
		coinSet:   make(map[string]struct{}),
		devSet:    make(map[string]struct{}),
	}
	if persister == nil {
		return s, nil
	}

	lists, err := persister.Load()
	if err != nil {
		return nil, err
	}
	for _, addr := range lists.Coins {
		s.appendLocked(&s.coins, s.coinSet, addr)
	}
	for _, addr := range lists.Devs {
		s.appendLocked(&s.devs, s.devSet, addr)
	}

	log.Info().
		Int("coins", len(s.coins)).
		Int("devs", len(s.devs)).
		Msg("blacklist: loaded")
	return s, nil
}

// IsCoinBlacklisted reports whether a token address is banned. Empty
// addresses are never blacklisted.
func (s *Store) IsCoinBlacklisted(address string) bool {
	return s.contains(s.coinSet, address)
}

// IsDeveloperBlacklisted reports whether a developer address is banned.
func (s *Store) IsDeveloperBlacklisted(address string) bool {
	return s.contains(s.devSet, address)
}

// AddCoin bans a token address and persists both lists. Adding an address
// that is already present only logs.
func (s *Store) AddCoin(address, reason string) {
	s.add(address, reason, "coin", &s.coins, s.coinSet)
}

// AddDeveloper bans a developer address and persists both lists.
func (s *Store) AddDeveloper(address, reason string) {
	s.add(address, reason, "dev", &s.devs, s.devSet)
}

// Coins returns a copy of the blacklisted coin addresses.
func (s *Store) Coins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.coins...)
}

// Developers returns a copy of the blacklisted developer addresses.
func (s *Store) Developers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.devs...)
}

// Stats is a point-in-time size of both lists.
type Stats struct {
	Coins int `json:"coins"`
	Devs  int `json:"devs"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Coins: len(s.coins), Devs: len(s.devs)}
}

// Close waits for an in-flight persist to finish. Later additions stay in
// memory only.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.closed = true
	log.Info().Msg("blacklist: closed")
	return nil
}

func (s *Store) contains(set map[string]struct{}, address string) bool {
	key := token.NormalizeAddress(address)
	if key == "" {
		return false
	}
	s.mu.RLock()
	_, ok := set[key]
	s.mu.RUnlock()
	return ok
}

func (s *Store) add(address, reason, kind string, list *[]string, set map[string]struct{}) {
	if token.NormalizeAddress(address) == "" {
		log.Warn().Str("kind", kind).Str("reason", reason).Msg("blacklist: ignoring empty address")
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	added := s.appendLocked(list, set, address)
	var snapshot Lists
	if added {
		snapshot = Lists{
			Coins: append([]string(nil), s.coins...),
			Devs:  append([]string(nil), s.devs...),
		}
	}
	s.mu.Unlock()

	if !added {
		log.Info().Str("kind", kind).Str("address", address).Msg("blacklist: already blacklisted")
		return
	}

	log.Info().
		Str("kind", kind).
		Str("address", address).
		Str("reason", reason).
		Msg("blacklist: added")

	if s.persister == nil {
		return
	}
	if s.closed {
		log.Warn().Str("address", address).Msg("blacklist: store closed, addition kept in memory only")
		return
	}
	if err := s.persister.Save(snapshot); err != nil {
		log.Error().Err(err).
			Str("kind", kind).
			Str("address", address).
			Msg("blacklist: persist failed, keeping in-memory entry")
	}
}

// appendLocked must be called with mu held (or before the store is shared).
func (s *Store) appendLocked(list *[]string, set map[string]struct{}, address string) bool {
	key := token.NormalizeAddress(address)
	if key == "" {
		return false
	}
	if _, ok := set[key]; ok {
		return false
	}
	set[key] = struct{}{}
	*list = append(*list, address)
	return true
}
