package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality/internal/domain/features"
	"airquality/internal/testsupport"
	"airquality/pkg/errors"
)

func newTestSchema(t *testing.T, version string) *features.Schema {
	t.Helper()

	def, err := features.DefaultSchema()
	require.NoError(t, err)

	spec := def.Spec()
	spec.Version = version
	schema, err := features.NewSchema(spec)
	require.NoError(t, err)
	return schema
}

func TestSchemaRepository_PublishAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	repo := NewSchemaRepository(testDB.Tx())
	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))

	version := "test-" + uuid.NewString()
	schema := newTestSchema(t, version)
	require.NoError(t, repo.Publish(ctx, schema))

	got, err := repo.Get(ctx, version)
	require.NoError(t, err)
	assert.Equal(t, schema.Spec(), got.Spec())

	latest, err := repo.Get(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, version, latest.Version())

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, version, list[0].Version)
	assert.Equal(t, 15, list[0].VectorLen)
}

func TestSchemaRepository_GetMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	repo := NewSchemaRepository(testDB.Tx())
	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))

	_, err := repo.Get(ctx, "does-not-exist")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSchemaRepository_PublishTwiceFails(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	repo := NewSchemaRepository(testDB.Tx())
	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))

	schema := newTestSchema(t, "dup-"+uuid.NewString())
	require.NoError(t, repo.Publish(ctx, schema))

	err := repo.Publish(ctx, schema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
