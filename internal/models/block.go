package models

import "time"

// MaxBlockReasonLength bounds Block.Reason.
const MaxBlockReasonLength = 255

// Block records that BlockerID has blocked BlockedID. Directional.
type Block struct {
	ID        uint      `gorm:"primarykey" json:"block_id"`
	BlockerID uint      `gorm:"not null;uniqueIndex:idx_block_pair" json:"blocker_id"`
	Blocker   User      `gorm:"foreignKey:BlockerID;constraint:OnDelete:CASCADE" json:"-"`
	BlockedID uint      `gorm:"not null;uniqueIndex:idx_block_pair;index" json:"blocked_id"`
	Blocked   User      `gorm:"foreignKey:BlockedID;constraint:OnDelete:CASCADE" json:"-"`
	Reason    *string   `gorm:"type:varchar(255)" json:"reason"`
	CreatedAt time.Time `json:"blocked_at"`
}

// TableName 指定 Block 模型的表名。
func (Block) TableName() string {
	return "blocked_users"
}

// BlockedView is one blocked user as seen by the blocker.
type BlockedView struct {
	BlockID   uint      `json:"block_id"`
	Username  string    `json:"username"`
	UserID    string    `json:"userid"`
	IconURL   string    `json:"icon_url"`
	Reason    *string   `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}
