package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// BaseModel defines the common fields for soft-deletable models.
// Relationship rows (friend requests, friendships, blocks) do not embed it: they
// are hard-deleted so their unique indexes stay meaningful.
type BaseModel struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deletedAt,omitempty"` // For soft deletes
}

// IDString returns the ID as a string.
func (b *BaseModel) IDString() string {
	return strconv.FormatUint(uint64(b.ID), 10)
}

// orderedPair returns (a, b) with the smaller id first.
func orderedPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}
