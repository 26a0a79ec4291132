package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "airquality/internal/adapters/clickhouse"
	"airquality/internal/adapters/config"
	"airquality/internal/adapters/kafka"
	pgclient "airquality/internal/adapters/postgres"
	redisclient "airquality/internal/adapters/redis"
	"airquality/internal/api"
	"airquality/internal/api/health"
	"airquality/internal/consumers"
	"airquality/internal/domain/features"
	"airquality/internal/events"
	"airquality/internal/ml"
	chrepo "airquality/internal/repository/clickhouse"
	pgrepo "airquality/internal/repository/postgres"
	redisrepo "airquality/internal/repository/redis"
	"airquality/internal/services/scoring"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
	"airquality/pkg/reconnect"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores), nil when disabled
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	// Encoding contract shared by every model
	Schema *features.Schema

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the optional storage backends
type Repositories struct {
	Schema      *pgrepo.SchemaRepository
	Predictions *chrepo.PredictionRepository
	Cache       *redisrepo.PredictionCache
}

// Adapters groups external adapters
type Adapters struct {
	KafkaProducer    *kafka.Producer
	ReadingsConsumer *kafka.Consumer
	Publisher        *events.PredictionPublisher
}

// Services groups the model handles and the scoring pipeline
type Services struct {
	Handles []*ml.Handle
	Scoring *scoring.Service
}

// Application groups application layer components
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
}

// Background groups background processing components
type Background struct {
	ReadingSvc *consumers.ReadingConsumer
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitSchema()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start begins model loading and starts background components.
// The HTTP server is up before the models finish loading; /ready reports when they have.
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Repos.Predictions != nil {
		c.Repos.Predictions.Start(c.Context)
		c.Log.Info("✓ Prediction log writer started")
	}

	c.Services.Scoring.LoadAll()

	if err := c.startConsumers(); err != nil {
		return err
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// startConsumers starts Kafka consumers in background goroutines
func (c *Container) startConsumers() error {
	if c.Background.ReadingSvc == nil {
		return nil
	}

	supervisor := reconnect.NewManager(reconnect.Config{
		MinBackoff: time.Second,
		MaxBackoff: time.Minute,
		MaxRetries: 10,
	}, c.Log.With("component", "consumer_supervisor"))

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		_ = supervisor.Supervise(c.Context, "readings", c.Background.ReadingSvc.Start)
	}()

	c.Log.Infow("✓ Event consumers started", "consumers", []string{"readings"})
	return nil
}

// Done is closed when the application context is cancelled
func (c *Container) Done() <-chan struct{} {
	return c.Context.Done()
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Cancel application context to signal all components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(c.WG, Components{
		HTTPServer:       c.Application.HTTPServer,
		ReadingsConsumer: c.Adapters.ReadingsConsumer,
		Predictions:      c.Repos.Predictions,
		KafkaProducer:    c.Adapters.KafkaProducer,
		Scoring:          c.Services.Scoring,
		PG:               c.PG,
		CH:               c.CH,
		Redis:            c.Redis,
		ErrorTracker:     c.ErrorTracker,
	}, c.Log)
}
