package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality/internal/domain/prediction"
	"airquality/internal/testsupport"
)

func TestPredictionCache_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testsupport.LoadRedisConfigFromEnv(t)
	client := testsupport.NewRedisClient(t, cfg)
	cache := NewPredictionCache(client, time.Minute)
	ctx := context.Background()

	res, err := cache.Get(ctx, prediction.ModeClassify, "abc")
	require.NoError(t, err)
	assert.Nil(t, res, "empty cache must be a miss")

	want := prediction.Result{
		Mode:           prediction.ModeClassify,
		Raw:            1.2,
		Classification: &prediction.Classification{Probability: 0.7685, Label: prediction.LabelGood},
		Display:        "Good (or better) (Probability: 0.7685)",
	}
	require.NoError(t, cache.Set(ctx, prediction.ModeClassify, "abc", want))

	got, err := cache.Get(ctx, prediction.ModeClassify, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	// modes do not share entries
	other, err := cache.Get(ctx, prediction.ModeRegress, "abc")
	require.NoError(t, err)
	assert.Nil(t, other)

	ttl, err := client.TTL(ctx, "prediction:classify:abc").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestPredictionCache_Key(t *testing.T) {
	c := NewPredictionCache(nil, 0)
	assert.Equal(t, "prediction:regress:deadbeef", c.getKey(prediction.ModeRegress, "deadbeef"))
}
