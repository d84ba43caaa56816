package models

import (
	"time"

	"gorm.io/gorm"
)

// FriendshipStatus 定义好友关系的状态
type FriendshipStatus string

const (
	FriendshipStatusPending  FriendshipStatus = "pending"
	FriendshipStatusAccepted FriendshipStatus = "accepted"
	FriendshipStatusRejected FriendshipStatus = "rejected"
)

// Friendship represents a friendship relationship between two users.
// UserID1 is always the smaller id, so (UserID1, UserID2) is unique per unordered pair.
// Only accepted rows are written; pending state lives in friend_requests.
type Friendship struct {
	ID        uint             `gorm:"primarykey" json:"id"`
	UserID1   uint             `gorm:"not null;uniqueIndex:idx_friendship_users" json:"user_id1"`
	User1     User             `gorm:"foreignKey:UserID1;constraint:OnDelete:CASCADE" json:"-"`
	UserID2   uint             `gorm:"not null;uniqueIndex:idx_friendship_users;index" json:"user_id2"`
	User2     User             `gorm:"foreignKey:UserID2;constraint:OnDelete:CASCADE" json:"-"`
	Status    FriendshipStatus `gorm:"type:varchar(10);not null;default:'accepted'" json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TableName 指定 Friendship 模型的表名。
func (Friendship) TableName() string {
	return "friendships"
}

// EnsureCanonicalOrder sets UserID1 to the smaller ID and UserID2 to the larger ID.
func (f *Friendship) EnsureCanonicalOrder() {
	f.UserID1, f.UserID2 = orderedPair(f.UserID1, f.UserID2)
}

// BeforeCreate keeps every inserted row in canonical order.
func (f *Friendship) BeforeCreate(tx *gorm.DB) error {
	f.EnsureCanonicalOrder()
	if f.Status == "" {
		f.Status = FriendshipStatusAccepted
	}
	return nil
}

// Other returns the id on the opposite side of the friendship from userID.
func (f *Friendship) Other(userID uint) uint {
	if f.UserID1 == userID {
		return f.UserID2
	}
	return f.UserID1
}

// FriendView is one friend as seen by the listing user.
type FriendView struct {
	FriendID    uint       `json:"friend_id"`
	Username    string     `json:"username"`
	UserID      string     `json:"userid"`
	IconURL     string     `json:"icon_url"`
	ListeningTo *string    `json:"listeningto"`
	LastSeenAt  *time.Time `json:"last_seen"`
}
