package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tuneshare/internal/imtypes"
)

const publishTimeout = 5 * time.Second

// EventPublisher publishes relationship events to one topic, keyed by recipient
// so every event for a user lands on the same partition in order.
type EventPublisher struct {
	producer MessageProducer
	topic    string
}

// NewEventPublisher creates an EventPublisher writing to topic.
func NewEventPublisher(producer MessageProducer, topic string) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic}
}

// Publish serializes the event and waits for delivery, bounded by publishTimeout.
func (p *EventPublisher) Publish(ctx context.Context, event *imtypes.RelationshipEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化关系事件失败: %w", err)
	}
	key := []byte(strconv.FormatUint(uint64(event.RecipientID), 10))

	// The request context may end as soon as the response is written.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	return p.producer.SendMessage(sendCtx, p.topic, key, payload)
}
