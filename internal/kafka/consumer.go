package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"tuneshare/internal/config"
)

// MessageHandler is a function type for processing consumed Kafka messages.
// Returning nil commits the message offset.
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// MessageConsumer defines the interface for a Kafka message consumer.
type MessageConsumer interface {
	Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error
	Close()
}

// confluentKafkaConsumer is an implementation of MessageConsumer using confluent-kafka-go.
type confluentKafkaConsumer struct {
	consumer *kafka.Consumer
	cfg      config.KafkaConfig
	groupID  string
}

// NewConfluentKafkaConsumer creates a consumer. The underlying client is
// created in Consume, once the group id is known.
func NewConfluentKafkaConsumer(cfg config.KafkaConfig) (MessageConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: no brokers configured")
	}
	return &confluentKafkaConsumer{cfg: cfg}, nil
}

// Consume starts consuming messages from the specified topics and group.
// This method will block until the context is canceled or a fatal error occurs.
func (c *confluentKafkaConsumer) Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error {
	if len(topics) == 0 {
		return fmt.Errorf("kafka consumer: no topics specified")
	}
	c.groupID = groupID
	log := logrus.WithField("group", groupID)

	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(c.cfg.Brokers, ","),
		"group.id":           c.groupID,
		"auto.offset.reset":  "latest", // push notifications are only useful while fresh
		"enable.auto.commit": "false",
		"security.protocol":  c.cfg.Protocol,
	}
	if c.cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", c.cfg.ClientID)
	}

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer for group %s: %w", groupID, err)
	}
	c.consumer = consumer

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		_ = c.consumer.Close()
		c.consumer = nil
		return fmt.Errorf("failed to subscribe to topics %v for group %s: %w", topics, groupID, err)
	}

	log.WithField("topics", topics).Info("Kafka consumer started, waiting for messages")

	for {
		select {
		case <-ctx.Done():
			log.Info("Context canceled, consumer shutting down")
			return nil
		default:
		}

		ev := c.consumer.Poll(1000)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			msgLog := log.WithFields(logrus.Fields{
				"topic":  *e.TopicPartition.Topic,
				"offset": e.TopicPartition.Offset,
			})
			if err := handler(ctx, e); err != nil {
				msgLog.WithError(err).Error("error processing Kafka message")
				continue
			}
			if _, err := c.consumer.CommitMessage(e); err != nil {
				msgLog.WithError(err).Warn("failed to commit offset")
			}
		case kafka.Error:
			log.WithFields(logrus.Fields{
				"code":      e.Code(),
				"fatal":     e.IsFatal(),
				"retriable": e.IsRetriable(),
			}).WithError(e).Error("Kafka consumer error")
			if e.IsFatal() {
				return e
			}
		case kafka.AssignedPartitions:
			log.WithField("partitions", e.Partitions).Info("partitions assigned")
			_ = c.consumer.Assign(e.Partitions)
		case kafka.RevokedPartitions:
			log.WithField("partitions", e.Partitions).Info("partitions revoked")
			_ = c.consumer.Unassign()
		}
	}
}

// Close closes the Kafka consumer.
func (c *confluentKafkaConsumer) Close() {
	if c.consumer == nil {
		return
	}
	log := logrus.WithField("group", c.groupID)
	if err := c.consumer.Close(); err != nil {
		log.WithError(err).Error("error closing Kafka consumer")
	} else {
		log.Info("Kafka consumer closed")
	}
	c.consumer = nil
}
