package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nexus-trading/screener/internal/storage"
	"github.com/nexus-trading/screener/internal/token"
)

const tokenColumns = `address, name, symbol, market_cap, volume, liquidity, price_usd::text,
	price_change_24h, pair_created_at, total_supply, status, listed_on_cex, dev_address, last_updated`

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// NewStore creates a store over an existing pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Open connects, applies migrations and returns a ready store.
func Open(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	pool, err := NewPool(ctx, dsn, maxConns)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool), nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// UpsertToken inserts or replaces the row for snap.Address unless the stored
// row is newer.
func (s *Store) UpsertToken(ctx context.Context, snap *token.Snapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}
	if snap.LastUpdated == 0 {
		snap.LastUpdated = time.Now().Unix()
	}

	query := `
		INSERT INTO tokens (
			address, name, symbol, market_cap, volume, liquidity, price_usd,
			price_change_24h, pair_created_at, total_supply, status, listed_on_cex, dev_address, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			market_cap = EXCLUDED.market_cap,
			volume = EXCLUDED.volume,
			liquidity = EXCLUDED.liquidity,
			price_usd = EXCLUDED.price_usd,
			price_change_24h = EXCLUDED.price_change_24h,
			pair_created_at = EXCLUDED.pair_created_at,
			total_supply = EXCLUDED.total_supply,
			status = EXCLUDED.status,
			listed_on_cex = EXCLUDED.listed_on_cex,
			dev_address = EXCLUDED.dev_address,
			last_updated = EXCLUDED.last_updated
		WHERE EXCLUDED.last_updated >= tokens.last_updated
	`

	_, err := s.pool.Exec(ctx, query,
		snap.Address,
		snap.Name,
		snap.Symbol,
		snap.MarketCap,
		snap.Volume24h,
		snap.Liquidity,
		snap.PriceUSD.String(),
		snap.PriceChange24h,
		snap.PairCreatedAt,
		snap.TotalSupply,
		string(storage.StatusOrUnknown(snap.Status)),
		snap.ListedOnCEX,
		snap.DevAddress,
		snap.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", snap.Address, err)
	}
	return nil
}

// GetToken retrieves a snapshot by address. Returns ErrNotFound if not exists.
func (s *Store) GetToken(ctx context.Context, address string) (*token.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE address = $1`, address)
	snap, err := scanToken(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return snap, nil
}

// ListTokens returns all snapshots ordered by address.
func (s *Store) ListTokens(ctx context.Context) ([]token.Snapshot, error) {
	return s.queryTokens(ctx, `SELECT `+tokenColumns+` FROM tokens ORDER BY address`)
}

// TopTokensByMarketCap returns up to limit snapshots, largest market cap first.
// Postgres rejects a negative LIMIT, so a negative limit drops the clause.
func (s *Store) TopTokensByMarketCap(ctx context.Context, limit int) ([]token.Snapshot, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens ORDER BY market_cap DESC, address`
	if limit < 0 {
		return s.queryTokens(ctx, query)
	}
	return s.queryTokens(ctx, query+` LIMIT $1`, limit)
}

func (s *Store) queryTokens(ctx context.Context, query string, args ...any) ([]token.Snapshot, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var out []token.Snapshot
	for rows.Next() {
		snap, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// AppendPattern inserts an event and assigns its ID.
func (s *Store) AppendPattern(ctx context.Context, e *token.PatternEvent) error {
	if err := storage.ValidatePattern(e); err != nil {
		return err
	}
	if e.DetectedAt == 0 {
		e.DetectedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO patterns (token_address, pattern_type, detected_at, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := s.pool.QueryRow(ctx, query,
		e.TokenAddress, string(e.PatternType), e.DetectedAt, e.Details,
	).Scan(&e.ID); err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

// ListPatterns returns all events ordered by detected_at, then id.
func (s *Store) ListPatterns(ctx context.Context) ([]token.PatternEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, token_address, pattern_type, detected_at, details
		FROM patterns
		ORDER BY detected_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []token.PatternEvent
	for rows.Next() {
		var e token.PatternEvent
		var pt string
		if err := rows.Scan(&e.ID, &e.TokenAddress, &pt, &e.DetectedAt, &e.Details); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		e.PatternType = token.PatternType(pt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// scanToken scans a single row into a Snapshot.
func scanToken(row pgx.Row) (*token.Snapshot, error) {
	var snap token.Snapshot
	var status, price string

	err := row.Scan(
		&snap.Address,
		&snap.Name,
		&snap.Symbol,
		&snap.MarketCap,
		&snap.Volume24h,
		&snap.Liquidity,
		&price,
		&snap.PriceChange24h,
		&snap.PairCreatedAt,
		&snap.TotalSupply,
		&status,
		&snap.ListedOnCEX,
		&snap.DevAddress,
		&snap.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if err := snap.PriceUSD.UnmarshalText([]byte(price)); err != nil {
		return nil, fmt.Errorf("parse price_usd %q: %w", price, err)
	}
	snap.Status = token.Status(status)
	return &snap, nil
}
