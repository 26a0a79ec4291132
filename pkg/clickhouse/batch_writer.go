package clickhouse

import (
	"context"
	"sync"
	"time"

	"airquality/pkg/logger"
)

// FlushFunc performs the INSERT for one batch
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BatchWriter buffers rows in memory and hands them to FlushFunc either when
// the buffer reaches MaxBatchSize or every MaxAge, whichever comes first.
// Rows of a failed flush are dropped; the error is returned to the caller that triggered it.
type BatchWriter[T any] struct {
	flush FlushFunc[T]
	log   *logger.Logger

	maxBatchSize int
	maxAge       time.Duration
	table        string

	mu        sync.Mutex
	buffer    []T
	lastFlush time.Time
	flushed   int64
	failed    int64
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// BatchWriterConfig configures a BatchWriter
type BatchWriterConfig[T any] struct {
	FlushFunc    FlushFunc[T]
	TableName    string
	MaxBatchSize int           // default 500
	MaxAge       time.Duration // default 5s
}

// NewBatchWriter creates a stopped writer
func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}

	return &BatchWriter[T]{
		flush:        cfg.FlushFunc,
		maxBatchSize: cfg.MaxBatchSize,
		maxAge:       cfg.MaxAge,
		table:        cfg.TableName,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		lastFlush:    time.Now(),
		log:          logger.Get().With("component", "batch_writer", "table", cfg.TableName),
	}
}

// Start launches the periodic flush loop. It stops on ctx cancellation or Stop.
func (bw *BatchWriter[T]) Start(ctx context.Context) {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return
	}
	bw.running = true
	bw.stopCh = make(chan struct{})
	stopCh := bw.stopCh
	bw.mu.Unlock()

	bw.wg.Add(1)
	go bw.loop(ctx, stopCh)

	bw.log.Infof("Batch writer started (max_batch=%d, max_age=%v)", bw.maxBatchSize, bw.maxAge)
}

// Add buffers one row and flushes synchronously when the buffer is full
func (bw *BatchWriter[T]) Add(ctx context.Context, item T) error {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, item)
	full := len(bw.buffer) >= bw.maxBatchSize
	bw.mu.Unlock()

	if full {
		return bw.Flush(ctx)
	}
	return nil
}

// Flush writes everything buffered so far
func (bw *BatchWriter[T]) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	batch := bw.buffer
	bw.buffer = make([]T, 0, bw.maxBatchSize)
	bw.lastFlush = time.Now()
	bw.mu.Unlock()

	// outside the lock so Add never waits on the network
	start := time.Now()
	err := bw.flush(ctx, batch)
	took := time.Since(start)

	bw.mu.Lock()
	if err != nil {
		bw.failed += int64(len(batch))
	} else {
		bw.flushed += int64(len(batch))
	}
	bw.mu.Unlock()

	if err != nil {
		bw.log.Errorf("Failed to flush %d rows to %s: %v (took %v)", len(batch), bw.table, err, took)
		return err
	}

	bw.log.Debugf("Flushed %d rows to %s (took %v)", len(batch), bw.table, took)
	return nil
}

func (bw *BatchWriter[T]) loop(ctx context.Context, stopCh chan struct{}) {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.finalFlush()
			return
		case <-stopCh:
			bw.finalFlush()
			return
		case <-ticker.C:
			if err := bw.Flush(ctx); err != nil {
				bw.log.Errorf("Periodic flush failed: %v", err)
			}
		}
	}
}

func (bw *BatchWriter[T]) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bw.Flush(ctx); err != nil {
		bw.log.Errorf("Final flush failed: %v", err)
	}
}

// Stop flushes what is left and waits for the loop to exit, bounded by ctx
func (bw *BatchWriter[T]) Stop(ctx context.Context) error {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		return nil
	}
	bw.running = false
	close(bw.stopCh)
	bw.mu.Unlock()

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// rows added after the loop's final flush
		if err := bw.Flush(ctx); err != nil {
			return err
		}
		bw.log.Info("Batch writer stopped")
		return nil
	case <-ctx.Done():
		bw.log.Warn("Batch writer stop timed out")
		return ctx.Err()
	}
}

// BufferSize returns the number of rows waiting to be flushed
func (bw *BatchWriter[T]) BufferSize() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// BatchWriterStats is a point-in-time view of a writer
type BatchWriterStats struct {
	BufferSize   int
	LastFlushAge time.Duration
	Flushed      int64
	Failed       int64
	Running      bool
}

// GetStats returns current statistics
func (bw *BatchWriter[T]) GetStats() BatchWriterStats {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	return BatchWriterStats{
		BufferSize:   len(bw.buffer),
		LastFlushAge: time.Since(bw.lastFlush),
		Flushed:      bw.flushed,
		Failed:       bw.failed,
		Running:      bw.running,
	}
}
