package ml

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"airquality/internal/domain/prediction"
	"airquality/internal/metrics"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

// State is the readiness of a model handle
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Handle owns one loaded graph and its readiness. Loading happens once in the
// background; predictions must go through Acquire, which refuses until Ready.
// A failed load stays failed until Load is called again.
type Handle struct {
	mode   prediction.Mode
	path   string
	loader Loader
	log    *logger.Logger

	mu       sync.RWMutex
	state    State
	session  Session
	err      error
	loadedAt time.Time
	artifact string
	done     chan struct{}

	inflight sync.WaitGroup
}

// NewHandle creates an unloaded handle for the graph at path
func NewHandle(mode prediction.Mode, path string, loader Loader) *Handle {
	h := &Handle{
		mode:   mode,
		path:   path,
		loader: loader,
		log:    logger.Get().With("component", "model_handle", "mode", mode),
		done:   make(chan struct{}),
	}
	metrics.SetModelState(mode.String(), int(StateUnloaded))
	return h
}

// Mode returns which model this handle serves
func (h *Handle) Mode() prediction.Mode { return h.mode }

// Path returns the model artifact location
func (h *Handle) Path() string { return h.path }

// Load starts loading in the background. It returns false when the handle is
// already loading or ready.
func (h *Handle) Load() bool {
	h.mu.Lock()
	if h.state == StateLoading || h.state == StateReady {
		h.mu.Unlock()
		return false
	}
	h.state = StateLoading
	h.err = nil
	done := make(chan struct{})
	h.done = done
	h.mu.Unlock()

	metrics.SetModelState(h.mode.String(), int(StateLoading))
	h.log.Infof("Loading %s model from %s", h.mode.Noun(), h.path)

	go h.load(done)
	return true
}

func (h *Handle) load(done chan struct{}) {
	defer close(done)

	start := time.Now()
	session, err := h.loader(h.path)
	elapsed := time.Since(start)
	if err != nil {
		err = errors.Mark(err, errors.ErrLoad)
	}

	h.mu.Lock()
	if h.state != StateLoading {
		// closed while loading
		h.mu.Unlock()
		if session != nil {
			session.Destroy()
		}
		return
	}
	if err != nil {
		h.state = StateFailed
		h.err = err
	} else {
		h.state = StateReady
		h.session = session
		h.loadedAt = time.Now()
		h.artifact = fingerprint(h.path, h.loadedAt)
	}
	state := h.state
	h.mu.Unlock()

	metrics.RecordModelLoad(h.mode.String(), elapsed, err)
	metrics.SetModelState(h.mode.String(), int(state))

	if err != nil {
		h.log.Errorf("Failed to load %s model: %v", h.mode.Noun(), err)
		return
	}
	h.log.Infof("%s model ready (took %v)", h.mode.Noun(), elapsed.Round(time.Millisecond))
}

// Wait blocks until the current load attempt finishes, then reports its outcome
func (h *Handle) Wait(ctx context.Context) error {
	h.mu.RLock()
	done := h.done
	state := h.state
	h.mu.RUnlock()

	if state == StateUnloaded {
		return errors.Wrapf(errors.ErrNotReady, "%s model was never loaded", h.mode)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return errors.Mark(ctx.Err(), errors.ErrNotReady)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// State returns the current readiness
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Err returns the load error while Failed
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Ready reports whether predictions can run
func (h *Handle) Ready() bool {
	return h.State() == StateReady
}

// LoadedAt returns when the handle became ready
func (h *Handle) LoadedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loadedAt
}

// Fingerprint identifies the artifact behind the current session. It changes
// when a reload picks up a replaced file at the same path.
func (h *Handle) Fingerprint() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.artifact
}

// fingerprint is size and mtime of the file, or the load time when it cannot be read
func fingerprint(path string, loadedAt time.Time) string {
	fi, err := os.Stat(path)
	if err != nil {
		return "t" + strconv.FormatInt(loadedAt.UnixNano(), 36)
	}
	return fmt.Sprintf("%x-%x", fi.Size(), fi.ModTime().UnixNano())
}

// Acquire hands out the session for one run. The caller must call release.
// Fails with ErrNotReady before the load finishes and ErrLoad after a failed load.
func (h *Handle) Acquire() (Session, func(), error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch h.state {
	case StateReady:
		h.inflight.Add(1)
		return h.session, h.inflight.Done, nil
	case StateFailed:
		return nil, nil, h.err
	default:
		return nil, nil, errors.Wrapf(errors.ErrNotReady, "%s model is %s", h.mode, h.state)
	}
}

// StatusText is the line shown to users about this model
func (h *Handle) StatusText() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	noun := h.mode.Noun()
	switch h.state {
	case StateLoading:
		return "Loading " + noun + " model..."
	case StateReady:
		return capitalize(noun) + " model loaded. Ready for prediction."
	case StateFailed:
		return "Error loading " + noun + " model: " + h.err.Error()
	default:
		return capitalize(noun) + " model not loaded."
	}
}

// Close waits for in-flight runs and releases the session. The handle returns to Unloaded.
func (h *Handle) Close() {
	h.mu.Lock()
	session := h.session
	h.session = nil
	h.state = StateUnloaded
	h.err = nil
	h.mu.Unlock()

	metrics.SetModelState(h.mode.String(), int(StateUnloaded))

	h.inflight.Wait()
	if session != nil {
		session.Destroy()
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
