package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tuneshare/internal/models"
)

// FriendRequestRepository defines the interface for friend request data operations.
// Every row is a pending request.
type FriendRequestRepository interface {
	Create(ctx context.Context, request *models.FriendRequest) error
	FindPendingRequest(ctx context.Context, userID1, userID2 uint) (*models.FriendRequest, error)
	GetForRecipient(ctx context.Context, requestID, recipientID uint) (*models.FriendRequest, error)
	Delete(ctx context.Context, requestID uint) error
	DeleteBetween(ctx context.Context, userID1, userID2 uint) error
	ListPendingForRecipient(ctx context.Context, recipientID uint) ([]models.PendingRequestView, error)
}

type gormFriendRequestRepository struct {
	db *gorm.DB
}

func NewGormFriendRequestRepository(db *gorm.DB) FriendRequestRepository {
	return &gormFriendRequestRepository{db: db}
}

func (r *gormFriendRequestRepository) Create(ctx context.Context, request *models.FriendRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// FindPendingRequest checks if there is a pending request between two users (in either direction).
func (r *gormFriendRequestRepository) FindPendingRequest(ctx context.Context, userID1, userID2 uint) (*models.FriendRequest, error) {
	low, high := userID1, userID2
	if low > high {
		low, high = high, low
	}
	var request models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // No pending request found is not an error in this context
		}
		return nil, err
	}
	return &request, nil
}

// GetForRecipient loads a request addressed to recipientID. A request addressed
// to someone else is reported as gorm.ErrRecordNotFound.
func (r *gormFriendRequestRepository) GetForRecipient(ctx context.Context, requestID, recipientID uint) (*models.FriendRequest, error) {
	var request models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", requestID, recipientID).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *gormFriendRequestRepository) Delete(ctx context.Context, requestID uint) error {
	return r.db.WithContext(ctx).Delete(&models.FriendRequest{}, requestID).Error
}

// DeleteBetween removes pending requests in both directions.
func (r *gormFriendRequestRepository) DeleteBetween(ctx context.Context, userID1, userID2 uint) error {
	return r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", userID1, userID2, userID2, userID1).
		Delete(&models.FriendRequest{}).Error
}

// ListPendingForRecipient returns requests addressed to recipientID, oldest first.
func (r *gormFriendRequestRepository) ListPendingForRecipient(ctx context.Context, recipientID uint) ([]models.PendingRequestView, error) {
	views := make([]models.PendingRequestView, 0)
	err := r.db.WithContext(ctx).
		Table("friend_requests AS fr").
		Select("fr.id AS request_id, u.username AS sender_username, u.userid AS sender_user_id, u.icon_url AS sender_icon_url").
		Joins("JOIN users u ON u.id = fr.sender_id AND u.deleted_at IS NULL").
		Where("fr.recipient_id = ?", recipientID).
		Order("fr.created_at ASC, fr.id ASC").
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}
