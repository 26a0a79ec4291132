package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"airquality/internal/domain/features"
	"airquality/internal/domain/prediction"
	"airquality/pkg/errors"
)

// Event types
const (
	TypePredictionMade = "prediction.made"
)

// BaseEvent carries the envelope shared by every event
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates an envelope with a fresh ID
func NewBaseEvent(eventType, source string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Version:   "1.0",
	}
}

// PredictionEvent is published for every served prediction
type PredictionEvent struct {
	BaseEvent
	PredictionID  string           `json:"prediction_id"`
	ReadingID     string           `json:"reading_id,omitempty"`
	Mode          prediction.Mode  `json:"mode"`
	SchemaVersion string           `json:"schema_version"`
	Reading       features.Reading `json:"reading"`
	Category      string           `json:"category"`
	Raw           float32          `json:"raw"`
	Output        string           `json:"output"`
	Cached        bool             `json:"cached"`
}

// NewPredictionEvent builds the event for rec
func NewPredictionEvent(source string, rec *prediction.Record) *PredictionEvent {
	reading := rec.Reading
	reading.Country = SanitizeUTF8(reading.Country)

	return &PredictionEvent{
		BaseEvent:     NewBaseEvent(TypePredictionMade, source),
		PredictionID:  rec.ID.String(),
		ReadingID:     rec.ReadingID,
		Mode:          rec.Mode,
		SchemaVersion: rec.SchemaVersion,
		Reading:       reading,
		Category:      rec.Category,
		Raw:           rec.Raw,
		Output:        SanitizeUTF8(rec.Display),
		Cached:        rec.Cached,
	}
}

// ReadingEvent is one sensor reading to score. Numeric fields are pointers so
// an absent value is rejected instead of read as zero.
type ReadingEvent struct {
	ID      string   `json:"id"`
	CO      *float64 `json:"co_aqi"`
	Ozone   *float64 `json:"ozone_aqi"`
	NO2     *float64 `json:"no2_aqi"`
	PM25    *float64 `json:"pm25_aqi"`
	Country string   `json:"country"`
	// Modes restricts scoring; empty means every enabled model
	Modes []prediction.Mode `json:"modes,omitempty"`
}

// Reading validates presence of every numeric field
func (e *ReadingEvent) Reading() (features.Reading, error) {
	var errs errors.MultiError

	get := func(field string, v *float64) float64 {
		if v == nil {
			errs.Add(errors.NewValidationError(field, "is required", nil))
			return 0
		}
		return *v
	}

	r := features.Reading{
		CO:      get(features.FieldCO, e.CO),
		Ozone:   get(features.FieldOzone, e.Ozone),
		NO2:     get(features.FieldNO2, e.NO2),
		PM25:    get(features.FieldPM25, e.PM25),
		Country: e.Country,
	}

	for _, m := range e.Modes {
		if !m.Valid() {
			errs.Add(errors.NewValidationError("modes", "unknown mode", string(m)))
		}
	}

	if err := errs.ToError(); err != nil {
		return features.Reading{}, err
	}
	return r, nil
}

// SanitizeUTF8 drops invalid byte sequences so downstream consumers never see mangled text
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
