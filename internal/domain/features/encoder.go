package features

import (
	"math"

	"airquality/pkg/errors"
)

// Normalize applies z-score scaling in schema order: out[i] = (values[i]-mean[i]) / scale[i].
func (s *Schema) Normalize(values []float64) ([]float64, error) {
	if len(values) != len(s.numericFeatures) {
		return nil, errors.Wrapf(errors.ErrInvalidInput,
			"expected %d numeric values, got %d", len(s.numericFeatures), len(values))
	}

	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.NewValidationError(fieldFor(s.numericFeatures[i]), "must be a finite number", v)
		}
		out[i] = (v - s.stats[i].Mean) / s.stats[i].Scale
	}
	return out, nil
}

// Encode one-hot encodes a country label. Matching is exact and case-sensitive,
// the same convention the training encoder was fitted with; anything else maps
// to the fallback category.
func (s *Schema) Encode(country string) []float32 {
	out := make([]float32, len(s.categories))
	idx, ok := s.categoryIndex[country]
	if !ok {
		idx = s.fallbackIndex
	}
	out[idx] = 1
	return out
}

// CategoryOf returns the category the label encodes to
func (s *Schema) CategoryOf(country string) string {
	if _, ok := s.categoryIndex[country]; ok {
		return country
	}
	return s.fallback
}

// NumericValues orders the reading's numbers the way the schema declares them
func (s *Schema) NumericValues(r Reading) []float64 {
	out := make([]float64, len(s.numericFeatures))
	for i, name := range s.numericFeatures {
		// names are checked against knownFeatures in Validate
		out[i], _ = r.value(name)
	}
	return out
}

// Assemble builds the model input: normalized numerics followed by the one-hot
// block, no interleaving. Index order is a contract with the trained model.
func (s *Schema) Assemble(r Reading) (Vector, error) {
	numeric, err := s.Normalize(s.NumericValues(r))
	if err != nil {
		return Vector{}, err
	}

	values := make([]float32, 0, s.VectorLen())
	for _, v := range numeric {
		values = append(values, float32(v))
	}
	values = append(values, s.Encode(r.Country)...)

	return Vector{values: values, schemaVersion: s.version}, nil
}
