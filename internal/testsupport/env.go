package testsupport

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"airquality/internal/adapters/config"
)

// skipUnlessSet skips the test when any of keys is unset
func skipUnlessSet(t *testing.T, keys ...string) {
	t.Helper()

	var missing []string
	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		t.Skipf("integration environment missing, set %v to run", missing)
	}
}

// LoadPostgresConfigFromEnv reads the Postgres section for integration tests
func LoadPostgresConfigFromEnv(t *testing.T) config.PostgresConfig {
	t.Helper()
	skipUnlessSet(t, "POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB")

	return config.PostgresConfig{
		Enabled:  true,
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     intValue("POSTGRES_PORT", 5432),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: os.Getenv("POSTGRES_DB"),
		SSLMode:  valueWithDefault("POSTGRES_SSL_MODE", "disable"),
		MaxConns: 4,
	}
}

// LoadClickHouseConfigFromEnv reads the ClickHouse section for integration tests
func LoadClickHouseConfigFromEnv(t *testing.T) config.ClickHouseConfig {
	t.Helper()
	skipUnlessSet(t, "CLICKHOUSE_HOST", "CLICKHOUSE_DB")

	return config.ClickHouseConfig{
		Enabled:  true,
		Host:     os.Getenv("CLICKHOUSE_HOST"),
		Port:     intValue("CLICKHOUSE_PORT", 9000),
		User:     valueWithDefault("CLICKHOUSE_USER", "default"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		Database: os.Getenv("CLICKHOUSE_DB"),
	}
}

// LoadRedisConfigFromEnv reads the Redis section for integration tests
func LoadRedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()
	skipUnlessSet(t, "REDIS_HOST")

	return config.RedisConfig{
		Enabled:  true,
		Host:     os.Getenv("REDIS_HOST"),
		Port:     intValue("REDIS_PORT", 6379),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intValue("REDIS_DB", 0),
	}
}

// LoadKafkaConfigFromEnv reads the Kafka section for integration tests
func LoadKafkaConfigFromEnv(t *testing.T) config.KafkaConfig {
	t.Helper()
	skipUnlessSet(t, "KAFKA_BROKERS")

	return config.KafkaConfig{
		Enabled:          true,
		Brokers:          strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
		GroupID:          valueWithDefault("KAFKA_GROUP_ID", "airquality-test"),
		ReadingsTopic:    valueWithDefault("KAFKA_READINGS_TOPIC", "air.readings.test"),
		PredictionsTopic: valueWithDefault("KAFKA_PREDICTIONS_TOPIC", "air.predictions.test"),
	}
}

func valueWithDefault(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func intValue(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}
