package kafka

import (
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"airquality/pkg/errors"
)

// Default topic names
const (
	TopicReadings    = "air.readings"
	TopicPredictions = "air.predictions"
)

// EnsureTopics creates missing topics through the cluster controller.
// Existing topics are left untouched.
func EnsureTopics(brokers []string, partitions, replication int, topics ...string) error {
	if len(brokers) == 0 {
		return errors.Wrap(errors.ErrConfig, "no kafka brokers configured")
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "dial %s", brokers[0]), errors.ErrUnavailable)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return errors.Wrap(err, "find kafka controller")
	}

	ctrl, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "dial kafka controller"), errors.ErrUnavailable)
	}
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		})
	}

	if err := ctrl.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return errors.Wrap(err, "create topics")
	}
	return nil
}
