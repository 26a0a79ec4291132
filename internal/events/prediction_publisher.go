package events

import (
	"context"

	"airquality/internal/domain/prediction"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

// Compile-time check
var _ prediction.Publisher = (*PredictionPublisher)(nil)

// Producer is the subset of the Kafka producer the publishers need
type Producer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// PredictionPublisher publishes prediction events keyed by country category,
// so all predictions for one category land on one partition
type PredictionPublisher struct {
	producer Producer
	topic    string
	source   string
	log      *logger.Logger
}

// NewPredictionPublisher creates a publisher writing to topic
func NewPredictionPublisher(producer Producer, topic, source string) *PredictionPublisher {
	return &PredictionPublisher{
		producer: producer,
		topic:    topic,
		source:   source,
		log:      logger.Get().With("component", "prediction_publisher"),
	}
}

// PublishPrediction implements prediction.Publisher
func (p *PredictionPublisher) PublishPrediction(ctx context.Context, rec *prediction.Record) error {
	event := NewPredictionEvent(p.source, rec)

	if err := p.producer.Publish(ctx, p.topic, rec.Category, event); err != nil {
		return errors.Wrap(err, "send to kafka")
	}

	p.log.Debugw("Event published",
		"topic", p.topic,
		"mode", rec.Mode,
		"prediction_id", event.PredictionID,
	)
	return nil
}
