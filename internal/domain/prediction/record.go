package prediction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"airquality/internal/domain/features"
)

// Record is one served prediction, kept for offline analysis
type Record struct {
	ID            uuid.UUID        `ch:"id" json:"id"`
	ReadingID     string           `ch:"reading_id" json:"reading_id,omitempty"` // upstream id, batch scoring only
	Mode          Mode             `ch:"mode" json:"mode"`
	SchemaVersion string           `ch:"schema_version" json:"schema_version"`
	Reading       features.Reading `ch:"-" json:"reading"`
	Category      string           `ch:"category" json:"category"` // country after fallback
	Vector        []float32        `ch:"vector" json:"vector"`
	Raw           float32          `ch:"raw" json:"raw"`
	Display       string           `ch:"display" json:"display"`
	Cached        bool             `ch:"cached" json:"cached"`
	Latency       time.Duration    `ch:"-" json:"latency_ns"`
	CreatedAt     time.Time        `ch:"created_at" json:"created_at"`
}

// Repository stores prediction records
type Repository interface {
	Store(ctx context.Context, rec *Record) error
	GetRecent(ctx context.Context, mode Mode, limit int) ([]Record, error)
}

// Cache short-circuits repeated vectors. A miss returns (nil, nil).
type Cache interface {
	Get(ctx context.Context, mode Mode, key string) (*Result, error)
	Set(ctx context.Context, mode Mode, key string, res Result) error
}

// Publisher broadcasts served predictions
type Publisher interface {
	PublishPrediction(ctx context.Context, rec *Record) error
}
