package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"airquality/internal/domain/prediction"
	"airquality/internal/metrics"
	"airquality/pkg/errors"
)

// Compile-time check
var _ prediction.Cache = (*PredictionCache)(nil)

// PredictionCache implements prediction.Cache using Redis. Keys embed the
// vector hash, which covers the schema version, and the model fingerprint.
type PredictionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPredictionCache creates a cache whose entries expire after ttl (0 keeps them forever)
func NewPredictionCache(client *redis.Client, ttl time.Duration) *PredictionCache {
	return &PredictionCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached result, or nil when the key is absent
func (c *PredictionCache) Get(ctx context.Context, mode prediction.Mode, key string) (*prediction.Result, error) {
	start := time.Now()
	data, err := c.client.Get(ctx, c.getKey(mode, key)).Bytes()
	if err == redis.Nil {
		metrics.RecordDBQuery("redis", "get", time.Since(start), nil)
		return nil, nil
	}
	metrics.RecordDBQuery("redis", "get", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get cached prediction: mode=%s", mode)
	}

	var res prediction.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal cached prediction: mode=%s", mode)
	}
	if res.Mode != mode {
		return nil, nil
	}

	return &res, nil
}

// Set stores res under key
func (c *PredictionCache) Set(ctx context.Context, mode prediction.Mode, key string, res prediction.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal prediction: mode=%s", mode)
	}

	start := time.Now()
	err = c.client.Set(ctx, c.getKey(mode, key), data, c.ttl).Err()
	metrics.RecordDBQuery("redis", "set", time.Since(start), err)
	if err != nil {
		return errors.Wrapf(err, "failed to cache prediction: mode=%s", mode)
	}

	return nil
}

func (c *PredictionCache) getKey(mode prediction.Mode, key string) string {
	return fmt.Sprintf("prediction:%s:%s", mode, key)
}
