package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nexus-trading/screener/internal/storage"
	"github.com/nexus-trading/screener/internal/token"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
    address TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    symbol TEXT NOT NULL DEFAULT '',
    market_cap REAL NOT NULL DEFAULT 0,
    volume REAL NOT NULL DEFAULT 0,
    liquidity REAL NOT NULL DEFAULT 0,
    price_usd TEXT NOT NULL DEFAULT '0',
    price_change_24h REAL NOT NULL DEFAULT 0,
    pair_created_at INTEGER NOT NULL DEFAULT 0,
    total_supply REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'unknown',
    listed_on_cex INTEGER NOT NULL DEFAULT 0,
    dev_address TEXT NOT NULL DEFAULT '',
    last_updated INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS patterns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    token_address TEXT NOT NULL,
    pattern_type TEXT NOT NULL,
    detected_at INTEGER NOT NULL,
    details TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tokens_market_cap ON tokens(market_cap);
CREATE INDEX IF NOT EXISTS idx_patterns_detected ON patterns(detected_at, id);
CREATE INDEX IF NOT EXISTS idx_patterns_token ON patterns(token_address);
`

const tokenColumns = `address, name, symbol, market_cap, volume, liquidity, price_usd,
	price_change_24h, pair_created_at, total_supply, status, listed_on_cex, dev_address, last_updated`

// Store implements storage.Store on a local SQLite file.
type Store struct {
	db *sql.DB
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// NewStore opens (or creates) the database file and applies the schema.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name,
			symbol = excluded.symbol,
			market_cap = excluded.market_cap,
			volume = excluded.volume,
			liquidity = excluded.liquidity,
			price_usd = excluded.price_usd,
			price_change_24h = excluded.price_change_24h,
			pair_created_at = excluded.pair_created_at,
			total_supply = excluded.total_supply,
			status = excluded.status,
			listed_on_cex = excluded.listed_on_cex,
			dev_address = excluded.dev_address,
			last_updated = excluded.last_updated
		WHERE excluded.last_updated >= tokens.last_updated`,
		snap.Address, snap.Name, snap.Symbol, snap.MarketCap, snap.Volume24h, snap.Liquidity,
		snap.PriceUSD.String(), snap.PriceChange24h, snap.PairCreatedAt, snap.TotalSupply,
		string(storage.StatusOrUnknown(snap.Status)), snap.ListedOnCEX, snap.DevAddress, snap.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", snap.Address, err)
	}
	return nil
}

// GetToken returns the stored snapshot. Returns ErrNotFound if not exists.
func (s *Store) GetToken(ctx context.Context, address string) (*token.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE address = ?`, address)
	snap, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *Store) TopTokensByMarketCap(ctx context.Context, limit int) ([]token.Snapshot, error) {
	return s.queryTokens(ctx,
		`SELECT `+tokenColumns+` FROM tokens ORDER BY market_cap DESC, address LIMIT ?`, limit)
}

func (s *Store) queryTokens(ctx context.Context, query string, args ...any) ([]token.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO patterns (token_address, pattern_type, detected_at, details) VALUES (?, ?, ?, ?)`,
		e.TokenAddress, string(e.PatternType), e.DetectedAt, e.Details)
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("pattern id: %w", err)
	}
	e.ID = id
	return nil
}

// ListPatterns returns all events ordered by detected_at, then id.
func (s *Store) ListPatterns(ctx context.Context) ([]token.PatternEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, token_address, pattern_type, detected_at, details FROM patterns ORDER BY detected_at, id`)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*token.Snapshot, error) {
	var snap token.Snapshot
	var status string
	err := row.Scan(
		&snap.Address,
		&snap.Name,
		&snap.Symbol,
		&snap.MarketCap,
		&snap.Volume24h,
		&snap.Liquidity,
		&snap.PriceUSD,
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
	snap.Status = token.Status(status)
	return &snap, nil
}
