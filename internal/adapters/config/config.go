package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"airquality/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Model         ModelConfig
	Schema        SchemaConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"airquality"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type HTTPConfig struct {
	Port      int     `envconfig:"HTTP_PORT" default:"8080"`
	RateLimit float64 `envconfig:"HTTP_RATE_LIMIT" default:"50"` // predictions per second, all clients
	Burst     int     `envconfig:"HTTP_RATE_BURST" default:"100"`
}

// ModelConfig points at the two exported graphs. Paths are deployment config, never request input.
type ModelConfig struct {
	ClassifierPath    string        `envconfig:"MODEL_CLASSIFIER_PATH" default:"./models/classification_model.onnx"`
	RegressorPath     string        `envconfig:"MODEL_REGRESSOR_PATH" default:"./models/regression_model.onnx"`
	ClassifierEnabled bool          `envconfig:"MODEL_CLASSIFIER_ENABLED" default:"true"`
	RegressorEnabled  bool          `envconfig:"MODEL_REGRESSOR_ENABLED" default:"true"`
	InputName         string        `envconfig:"MODEL_INPUT_NAME" default:"input"`
	OutputName        string        `envconfig:"MODEL_OUTPUT_NAME" default:"output"`
	SharedLibraryPath string        `envconfig:"ONNXRUNTIME_SHARED_LIBRARY_PATH"`
	InferenceTimeout  time.Duration `envconfig:"MODEL_INFERENCE_TIMEOUT" default:"5s"`
}

// SchemaConfig selects where the feature schema comes from: a YAML file
// (empty path means the embedded default) or a versioned Postgres row.
type SchemaConfig struct {
	Source  string `envconfig:"SCHEMA_SOURCE" default:"file"` // file|postgres
	Path    string `envconfig:"SCHEMA_PATH"`
	Version string `envconfig:"SCHEMA_VERSION"` // postgres only, empty = latest
}

type PostgresConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"airquality"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"5"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled       bool          `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host          string        `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port          int           `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User          string        `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password      string        `envconfig:"CLICKHOUSE_PASSWORD"`
	Database      string        `envconfig:"CLICKHOUSE_DB" default:"airquality"`
	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"500"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"5s"`
}

type RedisConfig struct {
	Enabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"REDIS_PREDICTION_TTL" default:"1h"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled          bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers          []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID          string   `envconfig:"KAFKA_GROUP_ID" default:"airquality"`
	ReadingsTopic    string   `envconfig:"KAFKA_READINGS_TOPIC" default:"air.readings"`
	PredictionsTopic string   `envconfig:"KAFKA_PREDICTIONS_TOPIC" default:"air.predictions"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Schema.Source {
	case "file":
	case "postgres":
		if !c.Postgres.Enabled {
			return errors.NewConfigError("SCHEMA_SOURCE", "postgres schema source requires POSTGRES_ENABLED", c.Schema.Source)
		}
	default:
		return errors.NewConfigError("SCHEMA_SOURCE", "must be file or postgres", c.Schema.Source)
	}

	if !c.Model.ClassifierEnabled && !c.Model.RegressorEnabled {
		return errors.NewConfigError("MODEL_*_ENABLED", "at least one model must be enabled", false)
	}

	if c.Model.InferenceTimeout <= 0 {
		return errors.NewConfigError("MODEL_INFERENCE_TIMEOUT", "must be positive", c.Model.InferenceTimeout)
	}

	return nil
}
