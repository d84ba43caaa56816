package models

import (
	"time"

	"gorm.io/gorm"
)

// FriendRequest 代表一个待处理的好友请求。
// A row exists only while the request is pending; responding to it deletes it.
// UserLowID/UserHighID hold the unordered pair so the unique index admits at
// most one pending request between two users, whichever side sent it.
type FriendRequest struct {
	ID          uint      `gorm:"primarykey" json:"request_id"`
	SenderID    uint      `gorm:"not null;index" json:"sender_id"`
	RecipientID uint      `gorm:"not null;index" json:"recipient_id"`
	UserLowID   uint      `gorm:"not null;uniqueIndex:idx_friend_request_pair" json:"-"`
	UserHighID  uint      `gorm:"not null;uniqueIndex:idx_friend_request_pair" json:"-"`
	CreatedAt   time.Time `json:"created_at"`

	Sender    User `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"-"`
	Recipient User `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定 FriendRequest 模型的表名。
func (FriendRequest) TableName() string {
	return "friend_requests"
}

// BeforeCreate fills the canonical pair columns.
func (r *FriendRequest) BeforeCreate(tx *gorm.DB) error {
	r.UserLowID, r.UserHighID = orderedPair(r.SenderID, r.RecipientID)
	return nil
}

// PendingRequestView is a pending request joined with its sender.
type PendingRequestView struct {
	RequestID      uint   `json:"request_id"`
	SenderUsername string `json:"sender_username"`
	SenderUserID   string `json:"sender_userid"`
	SenderIconURL  string `json:"sender_icon_url"`
}
