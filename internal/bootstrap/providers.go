package bootstrap

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	chclient "airquality/internal/adapters/clickhouse"
	"airquality/internal/adapters/config"
	errnoop "airquality/internal/adapters/errors/noop"
	"airquality/internal/adapters/errors/sentry"
	"airquality/internal/adapters/kafka"
	pgclient "airquality/internal/adapters/postgres"
	redisclient "airquality/internal/adapters/redis"
	"airquality/internal/api"
	"airquality/internal/api/health"
	"airquality/internal/api/predict"
	"airquality/internal/consumers"
	"airquality/internal/domain/features"
	"airquality/internal/domain/prediction"
	"airquality/internal/events"
	"airquality/internal/metrics"
	"airquality/internal/ml"
	chrepo "airquality/internal/repository/clickhouse"
	pgrepo "airquality/internal/repository/postgres"
	redisrepo "airquality/internal/repository/redis"
	"airquality/internal/services/scoring"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
	"airquality/pkg/reconnect"
)

const (
	connectTimeout  = 10 * time.Second
	connectAttempts = 5
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
	c.Log = logger.Get()
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the enabled data stores (Postgres, ClickHouse, Redis).
// Each store gets a few attempts so the service can start alongside its dependencies.
func (c *Container) MustInitInfrastructure() {
	if c.Config.Postgres.Enabled {
		c.connect("PostgreSQL", func(ctx context.Context) (err error) {
			c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
			return err
		})
	}

	if c.Config.ClickHouse.Enabled {
		c.connect("ClickHouse", func(ctx context.Context) (err error) {
			c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
			return err
		})
	}

	if c.Config.Redis.Enabled {
		c.connect("Redis", func(ctx context.Context) (err error) {
			c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
			return err
		})
	}
}

func (c *Container) connect(name string, dial func(ctx context.Context) error) {
	c.Log.Infof("Connecting to %s...", name)

	retrier := reconnect.NewManager(reconnect.Config{
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 8 * time.Second,
		MaxRetries: connectAttempts,
	}, c.Log.With("component", "connect", "store", name))

	err := retrier.Retry(c.Context, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return dial(attemptCtx)
	})
	if err != nil {
		c.Log.Fatalf("failed to connect %s: %v", name, err)
	}
	c.Log.Infof("✓ %s connected", name)
}

// ========================================
// Phase 3: Feature Schema
// ========================================

// MustInitSchema loads the encoding contract. A bad schema is fatal: no model may serve without one.
func (c *Container) MustInitSchema() {
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	if c.PG != nil {
		c.Repos.Schema = pgrepo.NewSchemaRepository(c.PG.DB())
		if err := c.Repos.Schema.Migrate(ctx); err != nil {
			c.Log.Fatalf("failed to migrate schema store: %v", err)
		}
	}

	schema, err := provideSchema(ctx, c.Config.Schema, c.Repos.Schema, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to load feature schema: %v", err)
	}
	c.Schema = schema

	c.Log.Infow("✓ Feature schema loaded",
		"version", schema.Version(),
		"vector_len", schema.VectorLen(),
		"fallback", schema.Fallback(),
	)
}

// ========================================
// Phase 4: Repositories
// ========================================

// MustInitRepositories initializes the optional prediction cache and log
func (c *Container) MustInitRepositories() {
	if c.CH != nil {
		ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
		defer cancel()

		c.Repos.Predictions = chrepo.NewPredictionRepository(c.CH.Conn(), chrepo.PredictionRepositoryConfig{
			BatchSize:     c.Config.ClickHouse.BatchSize,
			FlushInterval: c.Config.ClickHouse.FlushInterval,
		})
		if err := c.Repos.Predictions.Migrate(ctx); err != nil {
			c.Log.Fatalf("failed to migrate predictions table: %v", err)
		}
	}

	if c.Redis != nil {
		c.Repos.Cache = redisrepo.NewPredictionCache(c.Redis.Client(), c.Config.Redis.CacheTTL)
	}

	c.Log.Infow("✓ Repositories initialized",
		"prediction_log", c.Repos.Predictions != nil,
		"cache", c.Repos.Cache != nil,
	)
}

// ========================================
// Phase 5: External Adapters
// ========================================

// MustInitAdapters initializes Kafka when enabled
func (c *Container) MustInitAdapters() {
	if !c.Config.Kafka.Enabled {
		c.Log.Info("Kafka disabled")
		return
	}

	if err := kafka.EnsureTopics(c.Config.Kafka.Brokers, 1, 1,
		c.Config.Kafka.ReadingsTopic, c.Config.Kafka.PredictionsTopic); err != nil {
		// Topics may be managed externally, the writers will surface real failures
		c.Log.Warnf("Failed to ensure Kafka topics: %v", err)
	}

	c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
	c.Adapters.ReadingsConsumer = provideKafkaConsumer(c.Config, c.Config.Kafka.ReadingsTopic, c.Log)
	c.Adapters.Publisher = events.NewPredictionPublisher(
		c.Adapters.KafkaProducer, c.Config.Kafka.PredictionsTopic, c.Config.App.Name)
}

// ========================================
// Phase 6: Services
// ========================================

// MustInitServices creates one handle per enabled model and the scoring pipeline
func (c *Container) MustInitServices() {
	c.Services.Handles = provideHandles(c.Config.Model)

	deps := scoring.Deps{
		Schema:  c.Schema,
		Handles: c.Services.Handles,
		Runner:  ml.NewAdapter(c.Config.Model.InferenceTimeout),
	}
	// optional collaborators stay nil interfaces when disabled
	if c.Repos.Cache != nil {
		deps.Cache = c.Repos.Cache
	}
	if c.Repos.Predictions != nil {
		deps.Repository = c.Repos.Predictions
	}
	if c.Adapters.Publisher != nil {
		deps.Publisher = c.Adapters.Publisher
	}

	svc, err := scoring.NewService(deps)
	if err != nil {
		c.Log.Fatalf("failed to create scoring service: %v", err)
	}
	c.Services.Scoring = svc

	metrics.Init()
	if err := prometheus.Register(metrics.NewStatusCollector(svc)); err != nil {
		c.Log.Warnf("Failed to register status collector: %v", err)
	}

	c.Log.Infow("✓ Scoring service initialized", "modes", svc.Modes())
}

// ========================================
// Phase 7: Application Layer
// ========================================

// MustInitApplication builds the HTTP surface
func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = health.New(c.Log, c.Services.Scoring, c.healthDependencies(),
		c.Config.App.Name, c.Config.App.Version)

	predictCfg := predict.Config{
		RateLimit: c.Config.HTTP.RateLimit,
		Burst:     c.Config.HTTP.Burst,
	}
	if c.Repos.Predictions != nil {
		predictCfg.History = c.Repos.Predictions
	}

	c.Application.HTTPServer = provideHTTPServer(c.Config, c.Application.HealthHandler,
		predict.New(c.Services.Scoring, predictCfg), c.Log)
}

func (c *Container) healthDependencies() map[string]health.Checker {
	deps := make(map[string]health.Checker)
	if c.PG != nil {
		deps["postgres"] = c.PG
	}
	if c.CH != nil {
		deps["clickhouse"] = c.CH
	}
	if c.Redis != nil {
		deps["redis"] = c.Redis
	}
	return deps
}

// ========================================
// Phase 8: Background Processing
// ========================================

// MustInitBackground creates the batch scoring consumer when Kafka is enabled
func (c *Container) MustInitBackground() {
	if c.Adapters.ReadingsConsumer == nil {
		return
	}
	c.Background.ReadingSvc = consumers.NewReadingConsumer(c.Adapters.ReadingsConsumer, c.Services.Scoring)
	c.Log.Info("✓ Background consumers initialized")
}

// ========================================
// Helper Provider Functions
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

// provideSchema reads the schema from a file or the Postgres store. An empty
// store is seeded from the file so a fresh database serves the shipped schema.
func provideSchema(ctx context.Context, cfg config.SchemaConfig, store features.Store, log *logger.Logger) (*features.Schema, error) {
	if cfg.Source != "postgres" {
		return features.LoadSchemaFile(cfg.Path)
	}

	schema, err := store.Get(ctx, cfg.Version)
	if err == nil {
		return schema, nil
	}
	if !errors.Is(err, errors.ErrNotFound) || cfg.Version != "" {
		return nil, err
	}

	schema, err = features.LoadSchemaFile(cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Publish(ctx, schema); err != nil {
		return nil, errors.Wrap(err, "seed schema store")
	}
	log.Infow("Seeded schema store", "version", schema.Version())
	return schema, nil
}

func provideHandles(cfg config.ModelConfig) []*ml.Handle {
	loader := ml.NewONNXLoader(ml.ONNXOptions{
		InputName:         cfg.InputName,
		OutputName:        cfg.OutputName,
		SharedLibraryPath: cfg.SharedLibraryPath,
	})

	var handles []*ml.Handle
	if cfg.ClassifierEnabled {
		handles = append(handles, ml.NewHandle(prediction.ModeClassify, cfg.ClassifierPath, loader))
	}
	if cfg.RegressorEnabled {
		handles = append(handles, ml.NewHandle(prediction.ModeRegress, cfg.RegressorPath, loader))
	}
	return handles
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Info("Initializing Kafka producer...")
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
	})
	log.Info("✓ Kafka producer initialized")
	return producer
}

func provideKafkaConsumer(cfg *config.Config, topic string, log *logger.Logger) *kafka.Consumer {
	log.Infow("Initializing Kafka consumer", "topic", topic)
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   topic,
	})
	log.Infow("✓ Kafka consumer initialized", "topic", topic)
	return consumer
}

func provideHTTPServer(cfg *config.Config, healthHandler *health.Handler, predictHandler *predict.Handler, log *logger.Logger) *api.Server {
	return api.NewServer(api.ServerConfig{
		Port:        cfg.HTTP.Port,
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
	}, healthHandler, predictHandler, log)
}
