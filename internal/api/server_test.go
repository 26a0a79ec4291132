package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"airquality/internal/api/health"
	"airquality/internal/api/predict"
	"airquality/internal/domain/features"
	"airquality/internal/domain/prediction"
	"airquality/internal/metrics"
	"airquality/internal/services/scoring"
	"airquality/pkg/logger"
)

type idleScorer struct{}

func (idleScorer) Predict(context.Context, prediction.Mode, features.RawInput, scoring.Options) (*scoring.Outcome, error) {
	return nil, nil
}
func (idleScorer) Reload(prediction.Mode) (bool, error) { return false, nil }
func (idleScorer) Status() []scoring.ModelStatus         { return nil }
func (idleScorer) Ready() bool                           { return true }

func TestServer_Routes(t *testing.T) {
	metrics.Init()

	srv := NewServer(ServerConfig{ServiceName: "airquality", Version: "test"},
		health.New(logger.Nop(), idleScorer{}, nil, "airquality", "test"),
		predict.New(idleScorer{}, predict.Config{}),
		logger.Nop(),
	)

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/live", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/models", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodGet, "/predict/classify", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.code, rec.Code, "%s %s", tt.method, tt.path)
	}
}
