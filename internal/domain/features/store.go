package features

import (
	"context"
	"time"
)

// SchemaVersionInfo describes one published schema
type SchemaVersionInfo struct {
	Version     string    `db:"version" json:"version"`
	VectorLen   int       `db:"vector_len" json:"vector_len"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
}

// Store keeps versioned schemas so a model and its encoding contract ship together
type Store interface {
	// Get returns the schema for version, or the newest one when version is empty.
	// A missing version matches errors.ErrNotFound.
	Get(ctx context.Context, version string) (*Schema, error)
	// Publish stores a new version. Republishing an existing version fails.
	Publish(ctx context.Context, schema *Schema) error
	List(ctx context.Context) ([]SchemaVersionInfo, error)
}
