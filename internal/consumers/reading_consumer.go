package consumers

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"

	"airquality/internal/adapters/kafka"
	"airquality/internal/domain/features"
	"airquality/internal/domain/prediction"
	"airquality/internal/events"
	"airquality/internal/services/scoring"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

// Scorer is the part of the scoring service the consumer drives
type Scorer interface {
	Modes() []prediction.Mode
	WaitReady(ctx context.Context) error
	PredictReading(ctx context.Context, mode prediction.Mode, reading features.Reading, opts scoring.Options) (*scoring.Outcome, error)
}

// ReadingConsumer scores sensor readings from Kafka with every requested
// model. Results leave through the scoring service's publisher.
type ReadingConsumer struct {
	consumer *kafka.Consumer
	scorer   Scorer
	log      *logger.Logger
}

// NewReadingConsumer creates a new reading consumer
func NewReadingConsumer(consumer *kafka.Consumer, scorer Scorer) *ReadingConsumer {
	return &ReadingConsumer{
		consumer: consumer,
		scorer:   scorer,
		log:      logger.Get().With("component", "reading_consumer"),
	}
}

// Start waits for the models to finish loading, then consumes until ctx is
// cancelled. A model that failed to load does not hold back the others.
func (rc *ReadingConsumer) Start(ctx context.Context) error {
	rc.log.Info("Waiting for models before consuming readings...")
	if err := rc.scorer.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		rc.log.Warnw("Consuming readings with a model unavailable", "error", err)
	}

	rc.log.Info("Starting reading consumer...")

	err := rc.consumer.Consume(ctx, func(ctx context.Context, msg kafkago.Message) error {
		return rc.HandleMessage(ctx, msg.Value)
	})
	if ctx.Err() != nil {
		rc.log.Info("Reading consumer stopping (context cancelled)")
		return nil
	}
	return err
}

// HandleMessage scores one JSON reading. A malformed reading is dropped with
// a warning; scoring failures are reported per mode and do not stop the other
// mode. It returns ctx.Err() when cancelled so the reading is not committed.
func (rc *ReadingConsumer) HandleMessage(ctx context.Context, payload []byte) error {
	var event events.ReadingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		rc.log.Warnw("Dropping undecodable reading", "error", err, "size", len(payload))
		return nil
	}

	reading, err := event.Reading()
	if err != nil {
		rc.log.Warnw("Dropping invalid reading", "id", event.ID, "error", err)
		return nil
	}

	modes := event.Modes
	if len(modes) == 0 {
		modes = rc.scorer.Modes()
	}

	var errs errors.MultiError
	for _, mode := range modes {
		out, err := rc.score(ctx, mode, reading, scoring.Options{
			Source:    scoring.SourceKafka,
			ReadingID: event.ID,
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			errs.Add(errors.Wrapf(err, "reading %s, %s", event.ID, mode))
			continue
		}
		rc.log.Debugw("Scored reading",
			"id", event.ID,
			"mode", mode,
			"output", out.Result.Display,
		)
	}

	return errs.ToError()
}

// score holds the reading while its model is (re)loading instead of failing it
func (rc *ReadingConsumer) score(ctx context.Context, mode prediction.Mode, reading features.Reading, opts scoring.Options) (*scoring.Outcome, error) {
	out, err := rc.scorer.PredictReading(ctx, mode, reading, opts)
	if !errors.Is(err, errors.ErrNotReady) {
		return out, err
	}

	rc.log.Infow("Model not ready, holding reading", "id", opts.ReadingID, "mode", mode)
	if err := rc.scorer.WaitReady(ctx); err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return rc.scorer.PredictReading(ctx, mode, reading, opts)
}
