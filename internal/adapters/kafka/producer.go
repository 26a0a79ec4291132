package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"airquality/internal/metrics"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

// Producer publishes JSON messages, one writer per topic
type Producer struct {
	brokers []string
	log     *logger.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers []string
}

// NewProducer creates a new Kafka producer. Writers connect lazily on first publish.
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		brokers: cfg.Brokers,
		writers: make(map[string]*kafka.Writer),
		log:     logger.Get().With("component", "kafka_producer"),
	}
}

func (p *Producer) getWriter(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same key, same partition
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = w
	return w
}

// Publish JSON-encodes event and writes it synchronously
func (p *Producer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "marshal event for %s", topic)
	}

	err = p.getWriter(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
	metrics.RecordKafkaMessage(topic, "produce", err)
	if err != nil {
		p.log.Errorf("Failed to publish to %s: %v", topic, err)
		return errors.Wrapf(err, "publish to %s", topic)
	}

	p.log.Debugf("Published to %s: %s", topic, key)
	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs errors.MultiError
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.log.Errorf("Failed to close writer for %s: %v", topic, err)
			errs.Add(err)
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return errs.ToError()
}
