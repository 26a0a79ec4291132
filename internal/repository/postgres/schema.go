package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"airquality/internal/domain/features"
	"airquality/internal/metrics"
	"airquality/pkg/errors"
)

// Compile-time check
var _ features.Store = (*SchemaRepository)(nil)

const featureSchemasDDL = `
	CREATE TABLE IF NOT EXISTS feature_schemas (
		version      TEXT PRIMARY KEY,
		spec         JSONB NOT NULL,
		vector_len   INTEGER NOT NULL,
		published_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// uniqueViolation is the Postgres SQLSTATE for a duplicate key
const uniqueViolation = "23505"

// SchemaRepository implements features.Store using sqlx
type SchemaRepository struct {
	db DBTX
}

// NewSchemaRepository creates a new schema repository
func NewSchemaRepository(db DBTX) *SchemaRepository {
	return &SchemaRepository{db: db}
}

// Migrate creates the feature_schemas table when missing
func (r *SchemaRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, featureSchemasDDL); err != nil {
		return errors.Wrap(err, "failed to create feature_schemas table")
	}
	return nil
}

type schemaRow struct {
	Version     string    `db:"version"`
	Spec        []byte    `db:"spec"`
	PublishedAt time.Time `db:"published_at"`
}

// Get retrieves a schema by version, or the latest when version is empty
func (r *SchemaRepository) Get(ctx context.Context, version string) (*features.Schema, error) {
	var (
		row   schemaRow
		err   error
		start = time.Now()
	)

	if version == "" {
		err = r.db.GetContext(ctx, &row,
			`SELECT version, spec, published_at FROM feature_schemas ORDER BY published_at DESC LIMIT 1`)
	} else {
		err = r.db.GetContext(ctx, &row,
			`SELECT version, spec, published_at FROM feature_schemas WHERE version = $1`, version)
	}
	metrics.RecordDBQuery("postgres", "get_schema", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, sql.ErrNoRows) {
		if version == "" {
			return nil, errors.Wrap(errors.ErrNotFound, "no feature schema published")
		}
		return nil, errors.Wrapf(errors.ErrNotFound, "feature schema %q", version)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get feature schema %q", version)
	}

	schema, err := features.DecodeSchemaJSON(row.Spec)
	if err != nil {
		return nil, errors.Wrapf(err, "feature schema %q", row.Version)
	}
	return schema, nil
}

// Publish inserts a new schema version
func (r *SchemaRepository) Publish(ctx context.Context, schema *features.Schema) error {
	data, err := json.Marshal(schema.Spec())
	if err != nil {
		return errors.Wrap(err, "failed to encode feature schema")
	}

	start := time.Now()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO feature_schemas (version, spec, vector_len) VALUES ($1, $2, $3)`,
		schema.Version(), data, schema.VectorLen(),
	)
	metrics.RecordDBQuery("postgres", "publish_schema", time.Since(start), err)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errors.NewValidationError("version", "already published", schema.Version())
	}
	if err != nil {
		return errors.Wrapf(err, "failed to publish feature schema %q", schema.Version())
	}
	return nil
}

// List returns every published version, newest first
func (r *SchemaRepository) List(ctx context.Context) ([]features.SchemaVersionInfo, error) {
	var out []features.SchemaVersionInfo

	start := time.Now()
	err := r.db.SelectContext(ctx, &out,
		`SELECT version, vector_len, published_at FROM feature_schemas ORDER BY published_at DESC`)
	metrics.RecordDBQuery("postgres", "list_schemas", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list feature schemas")
	}
	return out, nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
