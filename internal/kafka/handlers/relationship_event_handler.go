package kafkahandlers

import (
	"context"
	"encoding/json"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"tuneshare/internal/imtypes"
)

// Deliverer pushes a notification to every connection of one user.
// It reports whether the user had at least one live connection.
type Deliverer interface {
	DeliverToUser(userID uint, notification *imtypes.Notification) bool
}

// RelationshipEventHandler turns consumed relationship events into pushed notifications.
type RelationshipEventHandler struct {
	deliverer Deliverer
}

// NewRelationshipEventHandler creates a new RelationshipEventHandler.
func NewRelationshipEventHandler(deliverer Deliverer) *RelationshipEventHandler {
	if deliverer == nil {
		logrus.Panic("Deliverer cannot be nil")
	}
	return &RelationshipEventHandler{deliverer: deliverer}
}

// Handle is the MessageHandler passed to the Kafka consumer. Undecodable
// messages are skipped (nil) so they are committed rather than retried forever.
func (h *RelationshipEventHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	var event imtypes.RelationshipEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   string(msg.Key),
			"value": string(msg.Value),
		}).WithError(err).Warn("skipping undecodable relationship event")
		return nil
	}
	if event.RecipientID == 0 {
		logrus.WithField("type", event.Type).Warn("skipping relationship event without recipient")
		return nil
	}

	delivered := h.deliverer.DeliverToUser(event.RecipientID, imtypes.NotificationFromEvent(&event))
	logrus.WithFields(logrus.Fields{
		"type":         event.Type,
		"recipient_id": event.RecipientID,
		"delivered":    delivered,
	}).Debug("relationship event handled")
	return nil
}
