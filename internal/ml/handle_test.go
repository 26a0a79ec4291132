package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality/internal/domain/prediction"
	"airquality/pkg/errors"
)

func TestHandle_Lifecycle(t *testing.T) {
	session := &fakeSession{output: 1}
	loader, release := gatedLoader(session, nil)
	h := NewHandle(prediction.ModeClassify, "cls.onnx", loader)

	assert.Equal(t, StateUnloaded, h.State())
	_, _, err := h.Acquire()
	assert.True(t, errors.Is(err, errors.ErrNotReady))

	require.True(t, h.Load())
	assert.False(t, h.Load(), "second load while loading is ignored")
	assert.Equal(t, StateLoading, h.State())
	assert.Equal(t, "Loading classification model...", h.StatusText())

	_, _, err = h.Acquire()
	assert.True(t, errors.Is(err, errors.ErrNotReady), "requests before load completes are refused")

	close(release)
	require.NoError(t, h.Wait(context.Background()))

	assert.True(t, h.Ready())
	assert.False(t, h.LoadedAt().IsZero())
	assert.Equal(t, "Classification model loaded. Ready for prediction.", h.StatusText())

	got, done, err := h.Acquire()
	require.NoError(t, err)
	assert.Same(t, session, got)
	done()

	h.Close()
	assert.Equal(t, StateUnloaded, h.State())
	assert.True(t, session.destroyed.Load())
}

func TestHandle_FailedLoad(t *testing.T) {
	loader, release := gatedLoader(nil, errors.New("open regression_model.onnx: no such file"))
	h := NewHandle(prediction.ModeRegress, "reg.onnx", loader)

	require.True(t, h.Load())
	close(release)

	err := h.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLoad))
	assert.Equal(t, StateFailed, h.State())
	assert.Equal(t, "Error loading regression model: model load failed: open regression_model.onnx: no such file", h.StatusText())

	_, _, err = h.Acquire()
	assert.True(t, errors.Is(err, errors.ErrLoad))
	assert.False(t, errors.Is(err, errors.ErrNotReady))
}

func TestHandle_ReloadAfterFailure(t *testing.T) {
	attempts := 0
	session := &fakeSession{}
	h := NewHandle(prediction.ModeClassify, "cls.onnx", func(path string) (Session, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("network error")
		}
		return session, nil
	})

	require.True(t, h.Load())
	require.Error(t, h.Wait(context.Background()))

	require.True(t, h.Load(), "failed handles can be reloaded")
	require.NoError(t, h.Wait(context.Background()))
	assert.True(t, h.Ready())
	assert.Nil(t, h.Err())
	assert.False(t, h.Load(), "ready handles are not reloaded")
}

func TestHandle_WaitNeverLoaded(t *testing.T) {
	h := NewHandle(prediction.ModeClassify, "cls.onnx", nil)
	err := h.Wait(context.Background())
	assert.True(t, errors.Is(err, errors.ErrNotReady))
	assert.Equal(t, "Classification model not loaded.", h.StatusText())
}

func TestHandle_WaitHonoursContext(t *testing.T) {
	loader, release := gatedLoader(&fakeSession{}, nil)
	defer close(release)

	h := NewHandle(prediction.ModeClassify, "cls.onnx", loader)
	h.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.Wait(ctx)
	assert.True(t, errors.Is(err, errors.ErrNotReady))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHandle_CloseWhileLoadingDestroysLateSession(t *testing.T) {
	session := &fakeSession{}
	loader, release := gatedLoader(session, nil)
	h := NewHandle(prediction.ModeClassify, "cls.onnx", loader)
	h.Load()

	h.Close()
	close(release)

	assert.Eventually(t, session.destroyed.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateUnloaded, h.State())
}

func TestHandle_CloseWaitsForInflightRuns(t *testing.T) {
	session := &fakeSession{}
	h := NewHandle(prediction.ModeClassify, "cls.onnx", func(string) (Session, error) { return session, nil })
	h.Load()
	require.NoError(t, h.Wait(context.Background()))

	_, done, err := h.Acquire()
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		h.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a run was in flight")
	case <-time.After(30 * time.Millisecond):
	}
	assert.False(t, session.destroyed.Load())

	done()
	<-closed
	assert.True(t, session.destroyed.Load())
}

func TestHandle_FingerprintFollowsArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reg.onnx")
	require.NoError(t, os.WriteFile(path, []byte("graph-v1"), 0o600))

	h := NewHandle(prediction.ModeRegress, path, func(string) (Session, error) {
		return &fakeSession{}, nil
	})
	assert.Empty(t, h.Fingerprint())

	require.True(t, h.Load())
	require.NoError(t, h.Wait(context.Background()))
	first := h.Fingerprint()
	require.NotEmpty(t, first)

	h.Close()
	require.NoError(t, os.WriteFile(path, []byte("graph-v2-retrained"), 0o600))
	require.True(t, h.Load())
	require.NoError(t, h.Wait(context.Background()))

	assert.NotEqual(t, first, h.Fingerprint())
}
