package features

import (
	"fmt"
	"math"

	"airquality/pkg/errors"
)

// Numeric feature names as they appear in the training data.
const (
	FeatureCO    = "CO AQI Value"
	FeatureOzone = "Ozone AQI Value"
	FeatureNO2   = "NO2 AQI Value"
	FeaturePM25  = "PM2.5 AQI Value"
)

// DefaultFallback is the catch-all country category.
const DefaultFallback = "Other"

var knownFeatures = map[string]bool{
	FeatureCO:    true,
	FeatureOzone: true,
	FeatureNO2:   true,
	FeaturePM25:  true,
}

// NumericStat holds the scaler statistics fitted for one numeric feature
type NumericStat struct {
	Mean  float64 `yaml:"mean" json:"mean"`
	Scale float64 `yaml:"scale" json:"scale"`
}

// Schema is the encoding contract with a trained model: numeric feature order,
// their scaler statistics, and the one-hot category order. It is immutable once
// built and safe for concurrent use.
type Schema struct {
	version         string
	numericFeatures []string
	stats           []NumericStat
	categories      []string
	fallback        string

	categoryIndex map[string]int
	fallbackIndex int
}

// SchemaSpec is the serialized form of a Schema
type SchemaSpec struct {
	Version         string        `yaml:"version" json:"version"`
	NumericFeatures []string      `yaml:"numeric_features" json:"numeric_features"`
	Stats           []NumericStat `yaml:"stats" json:"stats"`
	Categories      []string      `yaml:"categories" json:"categories"`
	// Fallback names the last category; empty means the last category
	Fallback string `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// NewSchema validates spec and builds a Schema. Every violation is reported,
// and all of them match errors.ErrConfig.
func NewSchema(spec SchemaSpec) (*Schema, error) {
	if spec.Fallback == "" && len(spec.Categories) > 0 {
		spec.Fallback = spec.Categories[len(spec.Categories)-1]
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	s := &Schema{
		version:         spec.Version,
		numericFeatures: append([]string(nil), spec.NumericFeatures...),
		stats:           append([]NumericStat(nil), spec.Stats...),
		categories:      append([]string(nil), spec.Categories...),
		fallback:        spec.Fallback,
		categoryIndex:   make(map[string]int, len(spec.Categories)),
	}
	for i, c := range s.categories {
		s.categoryIndex[c] = i
	}
	s.fallbackIndex = s.categoryIndex[s.fallback]

	return s, nil
}

// Validate checks the schema invariants without building it
func (spec SchemaSpec) Validate() error {
	var errs errors.MultiError

	if spec.Version == "" {
		errs.Add(errors.NewConfigError("version", "must not be empty", spec.Version))
	}

	if len(spec.NumericFeatures) == 0 {
		errs.Add(errors.NewConfigError("numeric_features", "must not be empty", spec.NumericFeatures))
	}

	seen := make(map[string]bool, len(spec.NumericFeatures))
	for _, name := range spec.NumericFeatures {
		if !knownFeatures[name] {
			errs.Add(errors.NewConfigError("numeric_features", "unknown feature", name))
		}
		if seen[name] {
			errs.Add(errors.NewConfigError("numeric_features", "duplicate feature", name))
		}
		seen[name] = true
	}

	if len(spec.Stats) != len(spec.NumericFeatures) {
		errs.Add(errors.NewConfigError("stats", "length must equal numeric_features length", len(spec.Stats)))
	}

	for i, st := range spec.Stats {
		if math.IsNaN(st.Mean) || math.IsInf(st.Mean, 0) {
			errs.Add(errors.NewConfigError(statField(i, "mean"), "must be finite", st.Mean))
		}
		if st.Scale == 0 || math.IsNaN(st.Scale) || math.IsInf(st.Scale, 0) {
			errs.Add(errors.NewConfigError(statField(i, "scale"), "must be finite and non-zero", st.Scale))
		}
	}

	if len(spec.Categories) == 0 {
		errs.Add(errors.NewConfigError("categories", "must not be empty", spec.Categories))
	}

	labels := make(map[string]bool, len(spec.Categories))
	for _, c := range spec.Categories {
		if labels[c] {
			errs.Add(errors.NewConfigError("categories", "duplicate label", c))
		}
		labels[c] = true
	}

	if n := len(spec.Categories); spec.Fallback != "" && n > 0 && spec.Fallback != spec.Categories[n-1] {
		errs.Add(errors.NewConfigError("fallback", "must be the last category", spec.Fallback))
	}

	return errs.ToError()
}

func statField(i int, name string) string {
	return fmt.Sprintf("stats[%d].%s", i, name)
}

// Version identifies the trained model this schema belongs to
func (s *Schema) Version() string { return s.version }

// NumericFeatures returns the numeric feature order
func (s *Schema) NumericFeatures() []string { return append([]string(nil), s.numericFeatures...) }

// Stats returns the scaler statistics in numeric feature order
func (s *Schema) Stats() []NumericStat { return append([]NumericStat(nil), s.stats...) }

// Categories returns the one-hot category order
func (s *Schema) Categories() []string { return append([]string(nil), s.categories...) }

// Fallback returns the category used for unrecognized labels
func (s *Schema) Fallback() string { return s.fallback }

// FallbackIndex returns the position of the fallback inside the one-hot block
func (s *Schema) FallbackIndex() int { return s.fallbackIndex }

// VectorLen is the model input width
func (s *Schema) VectorLen() int { return len(s.numericFeatures) + len(s.categories) }

// Spec returns the serializable form of s
func (s *Schema) Spec() SchemaSpec {
	return SchemaSpec{
		Version:         s.version,
		NumericFeatures: s.NumericFeatures(),
		Stats:           s.Stats(),
		Categories:      s.Categories(),
		Fallback:        s.fallback,
	}
}
