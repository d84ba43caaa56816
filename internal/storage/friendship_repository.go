package storage

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tuneshare/internal/models"
)

// FriendshipRepository defines the interface for friendship data operations.
type FriendshipRepository interface {
	CreateIfAbsent(ctx context.Context, friendship *models.Friendship) error
	AreUsersFriends(ctx context.Context, userID1, userID2 uint) (bool, error)
	GetFriendIDs(ctx context.Context, userID uint) ([]uint, error)
	ListFriends(ctx context.Context, userID uint) ([]models.FriendView, error)
	DeleteBetween(ctx context.Context, userID1, userID2 uint) (int64, error)
}

type gormFriendshipRepository struct {
	db *gorm.DB
}

// NewGormFriendshipRepository creates a new GormFriendshipRepository.
func NewGormFriendshipRepository(db *gorm.DB) FriendshipRepository {
	return &gormFriendshipRepository{db: db}
}

// CreateIfAbsent inserts the friendship, doing nothing if the pair already exists.
// Canonical order is applied by the model's BeforeCreate hook.
func (r *gormFriendshipRepository) CreateIfAbsent(ctx context.Context, friendship *models.Friendship) error {
	friendship.EnsureCanonicalOrder()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id1"}, {Name: "user_id2"}},
			DoNothing: true,
		}).
		Create(friendship).Error
}

// AreUsersFriends checks if two users are already friends.
func (r *gormFriendshipRepository) AreUsersFriends(ctx context.Context, userID1, userID2 uint) (bool, error) {
	u1, u2 := canonical(userID1, userID2)
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("user_id1 = ? AND user_id2 = ? AND status = ?", u1, u2, models.FriendshipStatusAccepted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetFriendIDs retrieves a list of user IDs who are friends with the given userID.
func (r *gormFriendshipRepository) GetFriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	var idsPart1 []uint
	err := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("user_id1 = ? AND status = ?", userID, models.FriendshipStatusAccepted).
		Pluck("user_id2", &idsPart1).Error
	if err != nil {
		return nil, err
	}

	var idsPart2 []uint
	err = r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("user_id2 = ? AND status = ?", userID, models.FriendshipStatusAccepted).
		Pluck("user_id1", &idsPart2).Error
	if err != nil {
		return nil, err
	}

	return append(idsPart1, idsPart2...), nil
}

// ListFriends returns the other side of every friendship of userID, ordered by username.
func (r *gormFriendshipRepository) ListFriends(ctx context.Context, userID uint) ([]models.FriendView, error) {
	views := make([]models.FriendView, 0)
	err := r.db.WithContext(ctx).
		Table("friendships AS f").
		Select("u.id AS friend_id, u.username, u.userid AS user_id, u.icon_url, u.listening_to, u.last_seen_at").
		Joins("JOIN users u ON u.id = CASE WHEN f.user_id1 = ? THEN f.user_id2 ELSE f.user_id1 END AND u.deleted_at IS NULL", userID).
		Where("(f.user_id1 = ? OR f.user_id2 = ?) AND f.status = ?", userID, userID, models.FriendshipStatusAccepted).
		Order("u.username ASC").
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

// DeleteBetween removes the friendship of the pair, returning rows deleted.
func (r *gormFriendshipRepository) DeleteBetween(ctx context.Context, userID1, userID2 uint) (int64, error) {
	u1, u2 := canonical(userID1, userID2)
	res := r.db.WithContext(ctx).
		Where("user_id1 = ? AND user_id2 = ?", u1, u2).
		Delete(&models.Friendship{})
	return res.RowsAffected, res.Error
}

func canonical(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}
