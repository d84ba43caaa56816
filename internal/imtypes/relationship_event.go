package imtypes

import "time"

// RelationshipEventType names an event published after a relationship change commits.
type RelationshipEventType string

const (
	FriendRequestSentEvent     RelationshipEventType = "friend_request.sent"
	FriendRequestAcceptedEvent RelationshipEventType = "friend_request.accepted"
	PresenceUpdatedEvent       RelationshipEventType = "presence.updated"
)

// RelationshipEvent is the Kafka payload for relationship and presence changes.
// RecipientID is the user that should be notified; it is also the message key.
type RelationshipEvent struct {
	Type          RelationshipEventType `json:"type"`
	RecipientID   uint                  `json:"recipient_id"`
	ActorID       uint                  `json:"actor_id"`
	ActorUserID   string                `json:"actor_userid"`
	ActorUsername string                `json:"actor_username"`
	RequestID     uint                  `json:"request_id,omitempty"`
	ListeningTo   *string               `json:"listening_to,omitempty"`
	Timestamp     time.Time             `json:"timestamp"`
}
