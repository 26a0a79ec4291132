package reconnect

import (
	"context"
	"sync"
	"time"

	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

// Manager retries a failing dependency with exponential backoff and a circuit breaker.
// Used for store connections at startup and for restarting long-running consumers.
type Manager struct {
	minBackoff        time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	maxRetries        int
	circuitResetAfter time.Duration
	stableAfter       time.Duration

	mu                  sync.RWMutex
	currentBackoff      time.Duration
	consecutiveFailures int
	totalRestarts       int
	circuitOpen         bool
	circuitOpenedAt     time.Time

	logger *logger.Logger
}

// Config configures the reconnect manager
type Config struct {
	MinBackoff        time.Duration // Initial backoff (e.g. 1s)
	MaxBackoff        time.Duration // Max backoff (e.g. 1min)
	BackoffMultiplier float64       // Multiplier for exponential backoff (e.g. 2.0)
	MaxRetries        int           // Consecutive failures before opening circuit
	CircuitResetAfter time.Duration // How long the circuit stays open
	StableAfter       time.Duration // A run lasting this long resets the failure count
}

// NewManager creates a new reconnect manager, filling zero fields with defaults
func NewManager(config Config, log *logger.Logger) *Manager {
	if config.MinBackoff == 0 {
		config.MinBackoff = 1 * time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 1 * time.Minute
	}
	if config.BackoffMultiplier == 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 10
	}
	if config.CircuitResetAfter == 0 {
		config.CircuitResetAfter = 5 * time.Minute
	}
	if config.StableAfter == 0 {
		config.StableAfter = 1 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Manager{
		minBackoff:        config.MinBackoff,
		maxBackoff:        config.MaxBackoff,
		backoffMultiplier: config.BackoffMultiplier,
		maxRetries:        config.MaxRetries,
		circuitResetAfter: config.CircuitResetAfter,
		stableAfter:       config.StableAfter,
		currentBackoff:    config.MinBackoff,
		logger:            log,
	}
}

// ShouldRetry returns whether another attempt is allowed
func (m *Manager) ShouldRetry() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.circuitOpen {
		return time.Since(m.circuitOpenedAt) >= m.circuitResetAfter
	}
	return m.consecutiveFailures < m.maxRetries
}

// GetBackoff returns current backoff duration
func (m *Manager) GetBackoff() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentBackoff
}

// RecordFailure records a failed attempt and grows the backoff
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures++

	newBackoff := time.Duration(float64(m.currentBackoff) * m.backoffMultiplier)
	if newBackoff > m.maxBackoff {
		newBackoff = m.maxBackoff
	}
	m.currentBackoff = newBackoff

	if m.consecutiveFailures >= m.maxRetries && !m.circuitOpen {
		m.circuitOpen = true
		m.circuitOpenedAt = time.Now()

		m.logger.Errorw("🔴 Circuit breaker OPENED - too many consecutive failures",
			"consecutive_failures", m.consecutiveFailures,
			"circuit_reset_after", m.circuitResetAfter,
		)
	}
}

// RecordSuccess resets backoff and closes the circuit
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutiveFailures > 0 {
		m.logger.Infow("✅ Recovered, resetting backoff",
			"previous_consecutive_failures", m.consecutiveFailures,
		)
	}

	m.currentBackoff = m.minBackoff
	m.consecutiveFailures = 0

	if m.circuitOpen {
		m.logger.Info("🟢 Circuit breaker CLOSED")
		m.circuitOpen = false
		m.circuitOpenedAt = time.Time{}
	}
}

// Stats contains reconnection statistics
type Stats struct {
	ConsecutiveFailures int
	TotalRestarts       int
	CurrentBackoff      time.Duration
	CircuitOpen         bool
	CircuitOpenedAt     time.Time
}

// GetStats returns current reconnect manager stats
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		ConsecutiveFailures: m.consecutiveFailures,
		TotalRestarts:       m.totalRestarts,
		CurrentBackoff:      m.currentBackoff,
		CircuitOpen:         m.circuitOpen,
		CircuitOpenedAt:     m.circuitOpenedAt,
	}
}

// Retry calls fn until it succeeds, the circuit opens, or ctx ends.
// The last error is returned when giving up.
func (m *Manager) Retry(ctx context.Context, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			m.RecordSuccess()
			return nil
		}

		m.RecordFailure()
		if !m.ShouldRetry() {
			return errors.Wrap(err, "giving up after repeated failures")
		}

		backoff := m.GetBackoff()
		m.logger.Warnw("⏳ Attempt failed, retrying", "error", err, "backoff", backoff)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

// Supervise keeps run alive until ctx ends. A failing run is restarted with
// backoff; while the circuit is open Supervise waits for it to reset.
// It returns nil when ctx ends or run exits cleanly.
func (m *Manager) Supervise(ctx context.Context, name string, run func(context.Context) error) error {
	for {
		started := time.Now()
		err := run(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}

		if time.Since(started) >= m.stableAfter {
			m.RecordSuccess()
		}
		m.RecordFailure()

		m.mu.Lock()
		m.totalRestarts++
		m.mu.Unlock()

		wait := m.GetBackoff()
		if !m.ShouldRetry() {
			wait = m.circuitResetAfter
		}

		m.logger.Warnw("🔄 Restarting after failure",
			"component", name,
			"error", err,
			"backoff", wait,
		)

		if err := sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
