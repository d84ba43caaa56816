package imtypes

import (
	"fmt"
	"time"
)

// Notification is the frame pushed to a connected client over WebSocket.
type Notification struct {
	Type          RelationshipEventType `json:"type"`
	ActorUserID   string                `json:"actor_userid"`
	ActorUsername string                `json:"actor_username"`
	RequestID     uint                  `json:"request_id,omitempty"`
	ListeningTo   *string               `json:"listeningto,omitempty"`
	Message       string                `json:"message,omitempty"`
	Timestamp     time.Time             `json:"timestamp"`
}

// NotificationFromEvent converts a consumed event into the client-facing frame.
func NotificationFromEvent(ev *RelationshipEvent) *Notification {
	n := &Notification{
		Type:          ev.Type,
		ActorUserID:   ev.ActorUserID,
		ActorUsername: ev.ActorUsername,
		RequestID:     ev.RequestID,
		ListeningTo:   ev.ListeningTo,
		Timestamp:     ev.Timestamp,
	}
	switch ev.Type {
	case FriendRequestSentEvent:
		n.Message = fmt.Sprintf("%s sent you a friend request.", ev.ActorUsername)
	case FriendRequestAcceptedEvent:
		n.Message = fmt.Sprintf("%s accepted your friend request.", ev.ActorUsername)
	}
	return n
}
