package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"airquality/internal/metrics"
	"airquality/pkg/logger"
)

// Consumer reads one topic as part of a consumer group
type Consumer struct {
	reader  *kafka.Reader
	topic   string
	groupID string
	log     *logger.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig) *Consumer {
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10e6 // 10MB
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		StartOffset: kafka.FirstOffset, // start from the beginning if no offset committed
	})

	log := logger.Get().With("component", "kafka_consumer", "topic", cfg.Topic)
	log.Infow("Kafka consumer created",
		"brokers", cfg.Brokers,
		"group_id", cfg.GroupID,
	)

	return &Consumer{
		reader:  reader,
		topic:   cfg.Topic,
		groupID: cfg.GroupID,
		log:     log,
	}
}

// MessageHandler processes one message. A returned error is logged and the
// message is still committed, unless ctx was cancelled while handling it.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// commitTimeout bounds one offset commit
const commitTimeout = 5 * time.Second

// Consume reads until ctx is cancelled, calling handler for every message.
// Offsets are committed only after the handler returns, so a message whose
// handling was cut short by shutdown is redelivered to the group.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.log.Info("Starting consumer...")

	for {
		msg, err := c.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumer stopped")
				return ctx.Err()
			}
			metrics.RecordKafkaMessage(c.topic, "consume", err)
			c.log.Errorf("Failed to read message: %v", err)
			continue
		}

		err = handler(ctx, msg)
		if err != nil && ctx.Err() != nil {
			c.log.Infow("Leaving message uncommitted on shutdown", "offset", msg.Offset, "partition", msg.Partition)
			return ctx.Err()
		}

		metrics.RecordKafkaMessage(c.topic, "consume", err)
		if err != nil {
			c.log.Errorf("Failed to handle message at offset %d: %v", msg.Offset, err)
		}

		if err := c.commit(msg); err != nil {
			c.log.Warnw("Failed to commit offset", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		}
	}
}

// FetchMessage returns the next message without committing it. It checks ctx
// before blocking so a shutdown never waits on the network.
func (c *Consumer) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	default:
	}

	msg, err := c.reader.FetchMessage(ctx)
	if err != nil && ctx.Err() != nil {
		return kafka.Message{}, ctx.Err()
	}
	return msg, err
}

// commit outlives the consume context so a handled message is not replayed
// just because shutdown began right after it
func (c *Consumer) commit(msg kafka.Message) error {
	if c.groupID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	return c.reader.CommitMessages(ctx, msg)
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
