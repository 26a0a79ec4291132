package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality/internal/services/scoring"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

type fakeModels struct{ ready bool }

func (f fakeModels) Ready() bool { return f.ready }

func (f fakeModels) Status() []scoring.ModelStatus {
	state := "loading"
	if f.ready {
		state = "ready"
	}
	return []scoring.ModelStatus{{Mode: "classify", State: state}}
}

type fakeChecker struct{ err error }

func (f fakeChecker) Health(context.Context) error { return f.err }

func serve(t *testing.T, handler http.HandlerFunc) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadiness_FollowsModels(t *testing.T) {
	h := New(logger.Nop(), fakeModels{ready: false}, nil, "airquality", "dev")
	code, body := serve(t, h.HandleReadiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	require.Len(t, body.Models, 1)
	assert.Equal(t, "loading", body.Models[0].State)

	h = New(logger.Nop(), fakeModels{ready: true}, map[string]Checker{"redis": fakeChecker{err: errors.ErrUnavailable}}, "airquality", "dev")
	code, body = serve(t, h.HandleReadiness)
	assert.Equal(t, http.StatusOK, code, "storage outages do not affect readiness")
	assert.Equal(t, "healthy", body.Status)
}

func TestHealth_Degraded(t *testing.T) {
	h := New(logger.Nop(), fakeModels{ready: true}, map[string]Checker{
		"postgres": fakeChecker{},
		"redis":    fakeChecker{err: errors.ErrUnavailable},
		"kafka":    nil,
	}, "airquality", "dev")

	code, body := serve(t, h.HandleHealth)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "healthy", body.Checks["postgres"].Status)
	assert.Equal(t, "unhealthy", body.Checks["redis"].Status)
	assert.NotContains(t, body.Checks, "kafka")
}

func TestHealth_ModelsNotReady(t *testing.T) {
	h := New(logger.Nop(), fakeModels{ready: false}, nil, "airquality", "dev")
	code, body := serve(t, h.HandleHealth)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
}

func TestLiveness(t *testing.T) {
	h := New(logger.Nop(), fakeModels{}, nil, "airquality", "dev")
	rec := httptest.NewRecorder()
	h.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
