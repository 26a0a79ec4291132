package clickhouse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]int
	err     error
}

func (r *recorder) flush(_ context.Context, batch []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recorder) rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestBatchWriter_FlushOnMaxSize(t *testing.T) {
	rec := &recorder{}
	bw := NewBatchWriter(BatchWriterConfig[int]{
		FlushFunc:    rec.flush,
		TableName:    "predictions",
		MaxBatchSize: 3,
		MaxAge:       time.Minute,
	})

	ctx := context.Background()
	require.NoError(t, bw.Add(ctx, 1))
	require.NoError(t, bw.Add(ctx, 2))
	assert.Equal(t, 0, rec.count())

	require.NoError(t, bw.Add(ctx, 3))
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, []int{1, 2, 3}, rec.batches[0])
	assert.Equal(t, 0, bw.BufferSize())
	assert.Equal(t, int64(3), bw.GetStats().Flushed)
}

func TestBatchWriter_FlushOnTimer(t *testing.T) {
	rec := &recorder{}
	bw := NewBatchWriter(BatchWriterConfig[int]{
		FlushFunc:    rec.flush,
		TableName:    "predictions",
		MaxBatchSize: 100,
		MaxAge:       50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bw.Start(ctx)
	require.NoError(t, bw.Add(ctx, 1))
	require.NoError(t, bw.Add(ctx, 2))

	assert.Eventually(t, func() bool { return rec.rows() == 2 }, time.Second, 10*time.Millisecond)
	require.NoError(t, bw.Stop(context.Background()))
}

func TestBatchWriter_StopFlushesRemaining(t *testing.T) {
	rec := &recorder{}
	bw := NewBatchWriter(BatchWriterConfig[int]{
		FlushFunc:    rec.flush,
		TableName:    "predictions",
		MaxBatchSize: 100,
		MaxAge:       time.Minute,
	})

	bw.Start(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, bw.Add(context.Background(), i))
	}

	require.NoError(t, bw.Stop(context.Background()))
	assert.Equal(t, 5, rec.rows())
	assert.False(t, bw.GetStats().Running)

	// second stop is a no-op
	require.NoError(t, bw.Stop(context.Background()))
}

func TestBatchWriter_StopFlushesRowsAddedAfterCancel(t *testing.T) {
	rec := &recorder{}
	bw := NewBatchWriter(BatchWriterConfig[int]{
		FlushFunc:    rec.flush,
		TableName:    "predictions",
		MaxBatchSize: 100,
		MaxAge:       time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	bw.Start(ctx)
	require.NoError(t, bw.Add(ctx, 1))
	cancel()

	// the loop exits on cancel; late writers still land in the buffer
	assert.Eventually(t, func() bool { return rec.rows() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, bw.Add(context.Background(), 2))

	require.NoError(t, bw.Stop(context.Background()))
	assert.Equal(t, 2, rec.rows())
}

func TestBatchWriter_FlushErrorDropsBatch(t *testing.T) {
	rec := &recorder{err: errors.New("clickhouse down")}
	bw := NewBatchWriter(BatchWriterConfig[int]{
		FlushFunc:    rec.flush,
		TableName:    "predictions",
		MaxBatchSize: 2,
	})

	ctx := context.Background()
	require.NoError(t, bw.Add(ctx, 1))
	assert.Error(t, bw.Add(ctx, 2))

	stats := bw.GetStats()
	assert.Equal(t, 0, stats.BufferSize)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(0), stats.Flushed)
}

func TestBatchWriter_ConcurrentAdds(t *testing.T) {
	rec := &recorder{}
	bw := NewBatchWriter(BatchWriterConfig[int]{
		FlushFunc:    rec.flush,
		TableName:    "predictions",
		MaxBatchSize: 10,
		MaxAge:       time.Minute,
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = bw.Add(ctx, i)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, bw.Flush(ctx))

	assert.Equal(t, 200, rec.rows())
}

func TestBatchWriter_FlushEmptyIsNoop(t *testing.T) {
	called := false
	bw := NewBatchWriter(BatchWriterConfig[int]{
		FlushFunc: func(context.Context, []int) error {
			called = true
			return nil
		},
	})
	require.NoError(t, bw.Flush(context.Background()))
	assert.False(t, called)
}
