package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tuneshare/internal/models"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUserID(ctx context.Context, userid string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameTaken(ctx context.Context, username string, excludeID uint) (bool, error)
	UserIDExists(ctx context.Context, userid string) (bool, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	GetMultipleBasicInfoByIDs(ctx context.Context, ids []uint) ([]*models.UserBasicInfo, error)
	GetDB() *gorm.DB
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create creates a new user record in the database.
func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by their numeric ID.
func (r *gormUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err // Handles gorm.ErrRecordNotFound as well
	}
	return &user, nil
}

// GetByUserID retrieves a user by their public userid.
func (r *gormUserRepository) GetByUserID(ctx context.Context, userid string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("userid = ?", userid).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email.
func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", email)
}

// UsernameTaken reports whether any user other than excludeID holds username.
func (r *gormUserRepository) UsernameTaken(ctx context.Context, username string, excludeID uint) (bool, error) {
	return r.exists(ctx, "username = ? AND id <> ?", username, excludeID)
}

func (r *gormUserRepository) UserIDExists(ctx context.Context, userid string) (bool, error) {
	return r.exists(ctx, "userid = ?", userid)
}

// exists counts rows including soft-deleted ones: unique indexes still cover them.
func (r *gormUserRepository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.User{}).Where(query, args...).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateFields updates only the given columns. Returns gorm.ErrRecordNotFound
// when no live user has that id.
func (r *gormUserRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	if id == 0 {
		return gorm.ErrMissingWhereClause
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetMultipleBasicInfoByIDs retrieves minimal public user info for a list of user IDs.
func (r *gormUserRepository) GetMultipleBasicInfoByIDs(ctx context.Context, ids []uint) ([]*models.UserBasicInfo, error) {
	var basicInfos []*models.UserBasicInfo
	if len(ids) == 0 {
		return basicInfos, nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("id", "userid", "username", "icon_url").
		Where("id IN ?", ids).
		Find(&basicInfos).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return basicInfos, nil
}

// GetDB returns the underlying gorm.DB instance
func (r *gormUserRepository) GetDB() *gorm.DB {
	return r.db
}
