package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ModelSnapshot is a point-in-time view of one model handle
type ModelSnapshot struct {
	Mode     string
	Ready    bool
	LoadedAt time.Time
}

// StatusSource reports current model and schema state at scrape time
type StatusSource interface {
	ModelSnapshots() []ModelSnapshot
	SchemaVersion() string
}

// StatusCollector exposes state that is cheaper to read at scrape time than to push
type StatusCollector struct {
	source StatusSource

	schemaInfo *prometheus.Desc
	modelAge   *prometheus.Desc
}

// NewStatusCollector creates a collector over source
func NewStatusCollector(source StatusSource) *StatusCollector {
	return &StatusCollector{
		source: source,
		schemaInfo: prometheus.NewDesc(
			"airquality_schema_info",
			"Feature schema in use, value is always 1",
			[]string{"version"}, nil,
		),
		modelAge: prometheus.NewDesc(
			"airquality_model_loaded_seconds",
			"Seconds since the model became ready",
			[]string{"mode"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.schemaInfo
	ch <- c.modelAge
}

// Collect implements prometheus.Collector
func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.schemaInfo, prometheus.GaugeValue, 1, c.source.SchemaVersion())

	for _, snap := range c.source.ModelSnapshots() {
		if !snap.Ready {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.modelAge, prometheus.GaugeValue,
			time.Since(snap.LoadedAt).Seconds(), snap.Mode)
	}
}
