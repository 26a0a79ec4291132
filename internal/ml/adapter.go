package ml

import (
	"context"
	"time"

	"airquality/internal/domain/features"
	"airquality/internal/metrics"
	"airquality/pkg/errors"
)

// Adapter is the only caller of the inference engine. It owns no business
// logic: vector in, raw scalar out, with a deadline.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter creates an adapter that gives up on a run after timeout
func NewAdapter(timeout time.Duration) *Adapter {
	return &Adapter{timeout: timeout}
}

type runResult struct {
	value float32
	err   error
}

// Run feeds v to the handle's graph. Errors match ErrNotReady or ErrLoad when
// the handle cannot serve, and ErrInferenceRuntime for everything the engine
// does wrong. A failed run leaves the handle Ready.
func (a *Adapter) Run(ctx context.Context, h *Handle, v features.Vector) (float32, error) {
	session, release, err := h.Acquire()
	if err != nil {
		return 0, err
	}

	if width := session.InputWidth(); width > 0 && width != v.Len() {
		release()
		return 0, errors.Wrapf(errors.ErrInferenceRuntime,
			"shape mismatch: %s model expects %d features, got %d", h.Mode(), width, v.Len())
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	out := make(chan runResult, 1)
	go func() {
		defer release()
		value, err := session.Run(v.Values())
		out <- runResult{value: value, err: err}
	}()

	select {
	case res := <-out:
		metrics.RecordInference(h.Mode().String(), time.Since(start), res.err)
		if res.err != nil {
			return 0, errors.Mark(res.err, errors.ErrInferenceRuntime)
		}
		return res.value, nil
	case <-ctx.Done():
		// the engine call cannot be interrupted; it finishes in the background and releases the session
		err := errors.Mark(errors.Wrapf(errors.ErrTimeout, "%s inference after %v", h.Mode(), time.Since(start)), errors.ErrInferenceRuntime)
		metrics.RecordInference(h.Mode().String(), time.Since(start), err)
		return 0, err
	}
}
