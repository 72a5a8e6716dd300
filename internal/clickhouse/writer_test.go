package clickhouse

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/screener/internal/token"
)

func makeEvent(i int) token.PatternEvent {
	return token.PatternEvent{
		ID:           int64(i + 1),
		TokenAddress: "tok",
		PatternType:  token.PatternNewPair,
		DetectedAt:   1700000000 + int64(i),
		Details:      "Pair age: 1.00 hours",
	}
}

func TestBatchSizeTrigger(t *testing.T) {
	const batchSize = 10

	var mu sync.Mutex
	var flushed [][]any

	w := NewPatternWriter(nil, batchSize, time.Hour)
	w.database = "screener"
	w.SetFlushHook(func(_ context.Context, table string, rows [][]any) error {
		mu.Lock()
		flushed = append(flushed, rows...)
		mu.Unlock()
		assert.Equal(t, "screener.pattern_events", table)
		return nil
	})

	ctx := context.Background()
	for i := 0; i < batchSize-1; i++ {
		require.NoError(t, w.Publish(ctx, makeEvent(i)))
	}
	mu.Lock()
	assert.Empty(t, flushed, "no flush below batch size")
	mu.Unlock()

	require.NoError(t, w.Publish(ctx, makeEvent(batchSize)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushed, batchSize)
	assert.Equal(t, int64(1), flushed[0][0])
	assert.Equal(t, "tok", flushed[0][1])
	assert.Equal(t, "new_pair", flushed[0][2])
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), flushed[0][3])
}

func TestFlushIntervalTrigger(t *testing.T) {
	var total atomic.Int64

	w := NewPatternWriter(nil, 1000, 50*time.Millisecond)
	w.SetFlushHook(func(_ context.Context, table string, rows [][]any) error {
		assert.Equal(t, "pattern_events", table)
		total.Add(int64(len(rows)))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Publish(ctx, makeEvent(i)))
	}

	w.Start(ctx)
	assert.Eventually(t, func() bool { return total.Load() == 5 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Close())
}

func TestFlushEmpty(t *testing.T) {
	called := false
	w := NewPatternWriter(nil, 100, time.Hour)
	w.SetFlushHook(func(context.Context, string, [][]any) error {
		called = true
		return nil
	})

	require.NoError(t, w.Flush(context.Background()))
	assert.False(t, called)
}

func TestFlushErrorCounted(t *testing.T) {
	w := NewPatternWriter(nil, 100, time.Hour)
	w.SetFlushHook(func(context.Context, string, [][]any) error {
		return errors.New("table missing")
	})

	require.NoError(t, w.Publish(context.Background(), makeEvent(0)))
	assert.Error(t, w.Flush(context.Background()))

	flushes, errs, pending := w.Stats()
	assert.Equal(t, int64(1), flushes)
	assert.Equal(t, int64(1), errs)
	assert.Zero(t, pending, "failed rows are dropped")
}

func TestCloseFlushesAndRejects(t *testing.T) {
	var total atomic.Int64
	w := NewPatternWriter(nil, 100, time.Hour)
	w.SetFlushHook(func(_ context.Context, _ string, rows [][]any) error {
		total.Add(int64(len(rows)))
		return nil
	})

	require.NoError(t, w.Publish(context.Background(), makeEvent(0)))
	require.NoError(t, w.Close())
	assert.Equal(t, int64(1), total.Load())

	assert.Error(t, w.Publish(context.Background(), makeEvent(1)))
}

func TestConcurrentPublish(t *testing.T) {
	var total atomic.Int64
	w := NewPatternWriter(nil, 50, time.Hour)
	w.SetFlushHook(func(_ context.Context, _ string, rows [][]any) error {
		total.Add(int64(len(rows)))
		return nil
	})

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = w.Publish(context.Background(), makeEvent(i))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	assert.Equal(t, int64(1000), total.Load())
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "pattern_events", qualify("", "pattern_events"))
	assert.Equal(t, "db.pattern_events", qualify("db", "pattern_events"))
	assert.Contains(t, patternEventsDDL("db.pattern_events"), "CREATE TABLE IF NOT EXISTS db.pattern_events")
}
