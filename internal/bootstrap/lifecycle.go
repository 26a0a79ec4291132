package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "airquality/internal/adapters/clickhouse"
	"airquality/internal/adapters/kafka"
	pgclient "airquality/internal/adapters/postgres"
	redisclient "airquality/internal/adapters/redis"
	"airquality/internal/api"
	chrepo "airquality/internal/repository/clickhouse"
	"airquality/internal/services/scoring"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

// Lifecycle manages graceful startup and shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 30 * time.Second,
	}
}

// Components are the parts Shutdown tears down. Any of them may be nil.
type Components struct {
	HTTPServer       *api.Server
	ReadingsConsumer *kafka.Consumer
	Predictions      *chrepo.PredictionRepository
	KafkaProducer    *kafka.Producer
	Scoring          *scoring.Service
	PG               *pgclient.Client
	CH               *chclient.Client
	Redis            *redisclient.Client
	ErrorTracker     errors.Tracker
}

// Shutdown performs coordinated cleanup of all components in order:
// 1. No new requests accepted
// 2. Kafka consumers unblock before waiting for goroutines
// 3. Buffered prediction rows flushed
// 4. Producer closes after consumers
// 5. Model sessions released once in-flight runs finish
// 6. Logs and errors flushed
// 7. Database connections last (other components may need them)
func (l *Lifecycle) Shutdown(wg *sync.WaitGroup, c Components, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server (5s timeout)
	// ========================================
	log.Info("[1/9] Stopping HTTP server...")
	if c.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := c.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	// ========================================
	// Step 2: Close Kafka Consumers
	// Unblocks FetchMessage() before waiting for goroutines
	// ========================================
	log.Info("[2/9] Closing Kafka consumers...")
	l.closeKafkaConsumers(map[string]*kafka.Consumer{
		"readings": c.ReadingsConsumer,
	}, log)

	// ========================================
	// Step 3: Wait for Goroutines
	// ========================================
	log.Info("[3/9] Waiting for goroutines...")
	l.waitForGoroutines(wg, 5*time.Second, log)

	// ========================================
	// Step 4: Flush Prediction Log
	// ========================================
	log.Info("[4/9] Flushing prediction log...")
	if c.Predictions != nil {
		flushCtx, flushCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := c.Predictions.Stop(flushCtx); err != nil {
			log.Errorw("Prediction log flush failed", "error", err)
		} else {
			log.Info("✓ Prediction log flushed")
		}
		flushCancel()
	}

	// ========================================
	// Step 5: Close Kafka Producer
	// ========================================
	log.Info("[5/9] Closing Kafka producer...")
	if c.KafkaProducer != nil {
		if err := c.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 6: Release Models
	// ========================================
	log.Info("[6/9] Releasing models...")
	if c.Scoring != nil {
		c.Scoring.Close()
		log.Info("✓ Models released")
	}

	// ========================================
	// Step 7: Flush Error Tracker
	// ========================================
	log.Info("[7/9] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, c.ErrorTracker, log)

	// ========================================
	// Step 8: Sync Logs
	// ========================================
	log.Info("[8/9] Syncing logs...")
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	// ========================================
	// Step 9: Close Database Connections
	// LAST - other components may need them during shutdown
	// ========================================
	log.Info("[9/9] Closing database connections...")
	l.closeDatabases(c.PG, c.CH, c.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// closeKafkaConsumers closes all Kafka consumers
func (l *Lifecycle) closeKafkaConsumers(consumers map[string]*kafka.Consumer, log *logger.Logger) {
	for name, consumer := range consumers {
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				log.Errorw("Kafka consumer close failed", "consumer", name, "error", err)
			}
		}
	}
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var errs errors.MultiError

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "redis"))
		}
	}

	if err := errs.ToError(); err != nil {
		log.Errorw("Database close errors", "error", err)
	} else {
		log.Info("✓ Database connections closed")
	}
}
