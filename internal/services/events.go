package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tuneshare/internal/imtypes"
	"tuneshare/internal/models"
)

// EventPublisher delivers relationship events after the change has committed.
type EventPublisher interface {
	Publish(ctx context.Context, event *imtypes.RelationshipEvent) error
}

// NoopPublisher drops every event. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *imtypes.RelationshipEvent) error { return nil }

// publishEvent sends the event and only logs failures: the committed change stands.
func publishEvent(ctx context.Context, publisher EventPublisher, eventType imtypes.RelationshipEventType, actor *models.User, recipientID uint, modify func(*imtypes.RelationshipEvent)) {
	if publisher == nil || actor == nil {
		return
	}
	event := &imtypes.RelationshipEvent{
		Type:          eventType,
		RecipientID:   recipientID,
		ActorID:       actor.ID,
		ActorUserID:   actor.UserID,
		ActorUsername: actor.Username,
		Timestamp:     time.Now().UTC(),
	}
	if modify != nil {
		modify(event)
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logrus.WithFields(logrus.Fields{
			"event":        eventType,
			"actor_id":     actor.ID,
			"recipient_id": recipientID,
		}).WithError(err).Warn("failed to publish relationship event")
	}
}
