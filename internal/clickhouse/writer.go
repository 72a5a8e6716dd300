package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/screener/internal/token"
)

const patternTable = "pattern_events"

// PatternWriter mirrors pattern events into ClickHouse for analytics. Rows
// are buffered and flushed when the batch is full, on a timer, and on Close.
type PatternWriter struct {
	client        *Client
	database      string
	batchSize     int
	flushInterval time.Duration

	mu     sync.Mutex
	buf    []token.PatternEvent
	closed bool

	flushCount atomic.Int64
	errorCount atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	// flushHook replaces real writes during testing.
	flushHook func(ctx context.Context, table string, rows [][]any) error
}

// NewPatternWriter creates a batch writer. client may be nil when a flush
// hook is installed.
func NewPatternWriter(client *Client, batchSize int, flushInterval time.Duration) *PatternWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	w := &PatternWriter{
		client:        client,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buf:           make([]token.PatternEvent, 0, batchSize),
	}
	if client != nil {
		w.database = client.Database()
	}
	return w
}

// Publish buffers e. Implements audit.Sink.
func (w *PatternWriter) Publish(ctx context.Context, e token.PatternEvent) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("pattern writer is closed")
	}
	w.buf = append(w.buf, e)
	needsFlush := len(w.buf) >= w.batchSize
	w.mu.Unlock()

	if needsFlush {
		return w.Flush(ctx)
	}
	return nil
}

// Start begins the background flush loop.
func (w *PatternWriter) Start(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				if err := w.Flush(bgCtx); err != nil {
					log.Error().Err(err).Msg("clickhouse: periodic flush error")
				}
			}
		}
	}()
}

// Flush writes all buffered rows. Rows of a failed batch are dropped; the
// authoritative copy lives in the primary store.
func (w *PatternWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	rows := w.buf
	w.buf = make([]token.PatternEvent, 0, w.batchSize)
	w.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	w.flushCount.Add(1)
	if err := w.write(ctx, rows); err != nil {
		w.errorCount.Add(1)
		log.Error().Err(err).Int("count", len(rows)).Msg("clickhouse: flush pattern events failed")
		return err
	}

	log.Debug().Int("rows", len(rows)).Msg("clickhouse: pattern events flushed")
	return nil
}

func (w *PatternWriter) write(ctx context.Context, rows []token.PatternEvent) error {
	table := qualify(w.database, patternTable)
	generic := make([][]any, len(rows))
	for i, e := range rows {
		generic[i] = []any{e.ID, e.TokenAddress, string(e.PatternType), time.Unix(e.DetectedAt, 0).UTC(), e.Details}
	}

	if w.flushHook != nil {
		return w.flushHook(ctx, table, generic)
	}

	batch, err := w.client.Conn().PrepareBatch(ctx,
		"INSERT INTO "+table+" (id, token_address, pattern_type, detected_at, details)")
	if err != nil {
		return fmt.Errorf("prepare pattern batch: %w", err)
	}
	for _, r := range generic {
		if err := batch.Append(r...); err != nil {
			return fmt.Errorf("append pattern row: %w", err)
		}
	}
	return batch.Send()
}

// Close stops the background loop and performs a final flush.
func (w *PatternWriter) Close() error {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	err := w.Flush(context.Background())
	log.Info().
		Int64("flushes", w.flushCount.Load()).
		Int64("errors", w.errorCount.Load()).
		Msg("clickhouse: pattern writer closed")
	return err
}

// Stats returns writer statistics.
func (w *PatternWriter) Stats() (flushCount, errorCount int64, pending int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushCount.Load(), w.errorCount.Load(), len(w.buf)
}

// SetFlushHook sets a test hook. Intended for testing only.
func (w *PatternWriter) SetFlushHook(hook func(ctx context.Context, table string, rows [][]any) error) {
	w.flushHook = hook
}
