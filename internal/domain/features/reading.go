package features

import (
	"math"
	"strconv"
	"strings"

	"airquality/pkg/errors"
)

// Input field names shared by every surface (HTTP form/JSON, Kafka, CLI)
const (
	FieldCO      = "co_aqi"
	FieldOzone   = "ozone_aqi"
	FieldNO2     = "no2_aqi"
	FieldPM25    = "pm25_aqi"
	FieldCountry = "country"
)

// RawInput is one request exactly as the user typed it
type RawInput struct {
	CO      string `json:"co_aqi"`
	Ozone   string `json:"ozone_aqi"`
	NO2     string `json:"no2_aqi"`
	PM25    string `json:"pm25_aqi"`
	Country string `json:"country"`
}

// Reading is one parsed inference request
type Reading struct {
	CO      float64 `json:"co_aqi"`
	Ozone   float64 `json:"ozone_aqi"`
	NO2     float64 `json:"no2_aqi"`
	PM25    float64 `json:"pm25_aqi"`
	Country string  `json:"country"`
}

// ParseReading converts the four numeric fields. A missing, non-numeric or
// non-finite field fails with ErrInvalidInput; nothing is defaulted to zero.
// Country is passed through byte for byte.
func ParseReading(in RawInput) (Reading, error) {
	var errs errors.MultiError

	parse := func(field, raw string) float64 {
		v, err := parseFinite(field, raw)
		errs.Add(err)
		return v
	}

	r := Reading{
		CO:      parse(FieldCO, in.CO),
		Ozone:   parse(FieldOzone, in.Ozone),
		NO2:     parse(FieldNO2, in.NO2),
		PM25:    parse(FieldPM25, in.PM25),
		Country: in.Country,
	}

	if err := errs.ToError(); err != nil {
		return Reading{}, err
	}
	return r, nil
}

func parseFinite(field, raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.NewValidationError(field, "is required", raw)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.NewValidationError(field, "must be a number", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.NewValidationError(field, "must be a finite number", raw)
	}
	return v, nil
}

// value returns the reading's value for a numeric feature name
func (r Reading) value(feature string) (float64, bool) {
	switch feature {
	case FeatureCO:
		return r.CO, true
	case FeatureOzone:
		return r.Ozone, true
	case FeatureNO2:
		return r.NO2, true
	case FeaturePM25:
		return r.PM25, true
	}
	return 0, false
}

// fieldFor maps a feature name back to its input field for error messages
func fieldFor(feature string) string {
	switch feature {
	case FeatureCO:
		return FieldCO
	case FeatureOzone:
		return FieldOzone
	case FeatureNO2:
		return FieldNO2
	case FeaturePM25:
		return FieldPM25
	}
	return feature
}
