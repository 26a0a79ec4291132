package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality/internal/domain/features"
	"airquality/internal/domain/prediction"
	"airquality/pkg/errors"
)

type fakeProducer struct {
	topic string
	key   string
	event interface{}
	err   error
}

func (f *fakeProducer) Publish(_ context.Context, topic, key string, event interface{}) error {
	f.topic, f.key, f.event = topic, key, event
	return f.err
}

func TestReadingEvent_Reading(t *testing.T) {
	var e ReadingEvent
	require.NoError(t, json.Unmarshal([]byte(
		`{"id":"r-1","co_aqi":2,"ozone_aqi":36,"no2_aqi":4,"pm25_aqi":48,"country":"Germany"}`), &e))

	r, err := e.Reading()
	require.NoError(t, err)
	assert.Equal(t, features.Reading{CO: 2, Ozone: 36, NO2: 4, PM25: 48, Country: "Germany"}, r)
}

func TestReadingEvent_MissingFieldsAreNotZero(t *testing.T) {
	var e ReadingEvent
	require.NoError(t, json.Unmarshal([]byte(`{"co_aqi":0,"country":"Germany"}`), &e))

	_, err := e.Reading()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Contains(t, err.Error(), features.FieldOzone)
	assert.Contains(t, err.Error(), features.FieldNO2)
	assert.Contains(t, err.Error(), features.FieldPM25)
	assert.NotContains(t, err.Error(), features.FieldCO)
}

func TestReadingEvent_UnknownMode(t *testing.T) {
	v := 1.0
	e := ReadingEvent{CO: &v, Ozone: &v, NO2: &v, PM25: &v, Modes: []prediction.Mode{"forecast"}}

	_, err := e.Reading()
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestPredictionPublisher_Publish(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewPredictionPublisher(producer, "air.predictions", "airquality")

	rec := &prediction.Record{
		ID:            uuid.New(),
		ReadingID:     "r-1",
		Mode:          prediction.ModeClassify,
		SchemaVersion: "v1",
		Reading:       features.Reading{CO: 2, Ozone: 36, NO2: 4, PM25: 48, Country: "Ger\xffmany"},
		Category:      "Other",
		Raw:           1.2,
		Display:       "Good (or better) (Probability: 0.7685)",
	}
	require.NoError(t, pub.PublishPrediction(context.Background(), rec))

	assert.Equal(t, "air.predictions", producer.topic)
	assert.Equal(t, "Other", producer.key)

	event, ok := producer.event.(*PredictionEvent)
	require.True(t, ok)
	assert.Equal(t, TypePredictionMade, event.Type)
	assert.Equal(t, rec.ID.String(), event.PredictionID)
	assert.Equal(t, "r-1", event.ReadingID)
	assert.Equal(t, "Germany", event.Reading.Country)
	assert.Equal(t, rec.Display, event.Output)
	assert.NotEmpty(t, event.ID)
}

func TestPredictionPublisher_ProducerError(t *testing.T) {
	producer := &fakeProducer{err: errors.ErrUnavailable}
	pub := NewPredictionPublisher(producer, "air.predictions", "airquality")

	err := pub.PublishPrediction(context.Background(), &prediction.Record{ID: uuid.New()})
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestPredictionEvent_JSON(t *testing.T) {
	event := NewPredictionEvent("airquality", &prediction.Record{ID: uuid.New(), Mode: prediction.ModeRegress, Display: "57.25"})

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "prediction.made", decoded["type"])
	assert.Equal(t, "regress", decoded["mode"])
	assert.Equal(t, "57.25", decoded["output"])
}
