package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Prediction metrics
	Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airquality_predictions_total",
			Help: "Total number of prediction requests",
		},
		[]string{"mode", "source", "status"}, // status: success|invalid_input|not_ready|error
	)

	PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airquality_prediction_duration_seconds",
			Help:    "End-to-end prediction duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"mode"},
	)

	FallbackCategory = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airquality_fallback_category_total",
			Help: "Requests whose country was not a known category",
		},
		[]string{"mode"},
	)

	// Inference engine metrics
	InferenceRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airquality_inference_runs_total",
			Help: "Total number of engine runs",
		},
		[]string{"mode", "status"}, // status: success|error
	)

	InferenceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airquality_inference_latency_seconds",
			Help:    "Engine run latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 1},
		},
		[]string{"mode"},
	)

	// Model lifecycle metrics
	ModelState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "airquality_model_state",
			Help: "Model handle state: 0 unloaded, 1 loading, 2 ready, 3 failed",
		},
		[]string{"mode"},
	)

	ModelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airquality_model_loads_total",
			Help: "Total number of model load attempts",
		},
		[]string{"mode", "status"},
	)

	ModelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airquality_model_load_duration_seconds",
			Help:    "Model load duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	// Cache metrics
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airquality_cache_lookups_total",
			Help: "Prediction cache lookups",
		},
		[]string{"mode", "result"}, // result: hit|miss|error
	)

	// Storage and transport metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airquality_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airquality_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airquality_kafka_messages_total",
			Help: "Total Kafka messages produced/consumed",
		},
		[]string{"topic", "direction", "status"}, // direction: produce|consume
	)
)

var initOnce sync.Once

// Init registers all metrics with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(register)
}

func register() {
	prometheus.MustRegister(Predictions)
	prometheus.MustRegister(PredictionDuration)
	prometheus.MustRegister(FallbackCategory)

	prometheus.MustRegister(InferenceRuns)
	prometheus.MustRegister(InferenceLatency)

	prometheus.MustRegister(ModelState)
	prometheus.MustRegister(ModelLoads)
	prometheus.MustRegister(ModelLoadDuration)

	prometheus.MustRegister(CacheLookups)

	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)
	prometheus.MustRegister(KafkaMessages)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordPrediction records one request outcome. status is decided by the caller.
func RecordPrediction(mode, source, status string, duration time.Duration) {
	Predictions.WithLabelValues(mode, source, status).Inc()
	PredictionDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordFallback counts a request whose country fell back to the catch-all category
func RecordFallback(mode string) {
	FallbackCategory.WithLabelValues(mode).Inc()
}

// RecordInference records one engine run
func RecordInference(mode string, latency time.Duration, err error) {
	InferenceRuns.WithLabelValues(mode, statusOf(err)).Inc()
	InferenceLatency.WithLabelValues(mode).Observe(latency.Seconds())
}

// SetModelState publishes a handle state transition
func SetModelState(mode string, state int) {
	ModelState.WithLabelValues(mode).Set(float64(state))
}

// RecordModelLoad records a finished load attempt
func RecordModelLoad(mode string, duration time.Duration, err error) {
	ModelLoads.WithLabelValues(mode, statusOf(err)).Inc()
	ModelLoadDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit, miss or error
func RecordCacheLookup(mode, result string) {
	CacheLookups.WithLabelValues(mode, result).Inc()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, statusOf(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced or consumed message
func RecordKafkaMessage(topic, direction string, err error) {
	KafkaMessages.WithLabelValues(topic, direction, statusOf(err)).Inc()
}
