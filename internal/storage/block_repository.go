package storage

import (
	"context"

	"gorm.io/gorm"

	"tuneshare/internal/models"
)

// BlockRepository defines the interface for block data operations.
// Blocks are directional: (blocker, blocked) differs from (blocked, blocker).
type BlockRepository interface {
	Create(ctx context.Context, block *models.Block) error
	Exists(ctx context.Context, blockerID, blockedID uint) (bool, error)
	Delete(ctx context.Context, blockerID, blockedID uint) (int64, error)
	ListByBlocker(ctx context.Context, blockerID uint) ([]models.BlockedView, error)
}

type gormBlockRepository struct {
	db *gorm.DB
}

// NewGormBlockRepository creates a new GORM-based BlockRepository.
func NewGormBlockRepository(db *gorm.DB) BlockRepository {
	return &gormBlockRepository{db: db}
}

func (r *gormBlockRepository) Create(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Create(block).Error
}

func (r *gormBlockRepository) Exists(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete removes the block, returning rows deleted.
func (r *gormBlockRepository) Delete(ctx context.Context, blockerID, blockedID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.Block{})
	return res.RowsAffected, res.Error
}

// ListByBlocker returns the users blockerID has blocked, most recent first.
func (r *gormBlockRepository) ListByBlocker(ctx context.Context, blockerID uint) ([]models.BlockedView, error) {
	views := make([]models.BlockedView, 0)
	err := r.db.WithContext(ctx).
		Table("blocked_users AS b").
		Select("b.id AS block_id, u.username, u.userid AS user_id, u.icon_url, b.reason, b.created_at AS blocked_at").
		Joins("JOIN users u ON u.id = b.blocked_id").
		Where("b.blocker_id = ?", blockerID).
		Order("b.created_at DESC, b.id DESC").
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}
