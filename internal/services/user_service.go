package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tuneshare/internal/imtypes"
	"tuneshare/internal/models"
	"tuneshare/internal/storage"
)

const (
	maxIconURLLength     = 999
	maxListeningToLength = 255
)

var (
	ErrMissingUserID      = newError(KindInvalidOperation, "User ID is required.")
	ErrNoIconURL          = newError(KindInvalidOperation, "No icon URL provided")
	ErrIconURLTooLong     = newError(KindInvalidOperation, "Image link too long (max 999 characters).")
	ErrNotAnImage         = newError(KindInvalidOperation, "Only image uploads are allowed")
	ErrEmptyUsername      = newError(KindInvalidOperation, "Username cannot be empty")
	ErrUsernameTooLong    = newError(KindInvalidOperation, "Username too long (max 150 characters).")
	ErrListeningTooLong   = newError(KindInvalidOperation, "Listening status too long (max 255 characters).")
	ErrStorageUnavailable = newError(KindInternal, "file storage is not configured")
)

// UserService 定义了用户资料与在线状态相关服务的接口。
type UserService interface {
	GetUserDetails(ctx context.Context, userid string) (*models.UserBasicInfo, error)
	UpdateIcon(ctx context.Context, userID uint, iconURL string) error
	UploadIcon(ctx context.Context, userID uint, reader io.Reader, size int64, fileName, mimeType string) (*imtypes.FileInfo, error)
	UpdateUsername(ctx context.Context, userID uint, username string) (string, error)
	UpdateListeningTo(ctx context.Context, userID uint, listeningTo *string) error
	TouchLastSeen(ctx context.Context, userID uint) error
}

// userService 是 UserService 的实现。
type userService struct {
	userRepo       storage.UserRepository
	friendshipRepo storage.FriendshipRepository
	files          imtypes.StorageService
	publisher      EventPublisher
}

// NewUserService 创建一个新的 UserService 实例。files 和 publisher 可以为 nil。
func NewUserService(userRepo storage.UserRepository, friendshipRepo storage.FriendshipRepository, files imtypes.StorageService, publisher EventPublisher) UserService {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &userService{
		userRepo:       userRepo,
		friendshipRepo: friendshipRepo,
		files:          files,
		publisher:      publisher,
	}
}

// GetUserDetails 按公开 userid 获取用户名和头像。
func (s *userService) GetUserDetails(ctx context.Context, userid string) (*models.UserBasicInfo, error) {
	userid = strings.TrimSpace(userid)
	if userid == "" {
		return nil, ErrMissingUserID
	}
	user, err := s.userRepo.GetByUserID(ctx, userid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, wrapServiceError("get user details", 0, err)
	}
	return user.BasicInfo(), nil
}

func (s *userService) UpdateIcon(ctx context.Context, userID uint, iconURL string) error {
	iconURL = strings.TrimSpace(iconURL)
	if iconURL == "" {
		return ErrNoIconURL
	}
	if utf8.RuneCountInString(iconURL) > maxIconURLLength {
		return ErrIconURLTooLong
	}
	return s.updateFields(ctx, "update icon", userID, map[string]interface{}{"icon_url": iconURL})
}

// UploadIcon 保存上传的图片并将其 URL 设为用户头像。数据库更新失败时删除已保存的文件。
func (s *userService) UploadIcon(ctx context.Context, userID uint, reader io.Reader, size int64, fileName, mimeType string) (*imtypes.FileInfo, error) {
	if s.files == nil {
		return nil, ErrStorageUnavailable
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, ErrNotAnImage
	}

	info, err := s.files.UploadFile(ctx, reader, size, fileName, mimeType)
	if err != nil {
		return nil, wrapServiceError("upload icon", userID, fmt.Errorf("保存头像失败: %w", err))
	}
	if err := s.updateFields(ctx, "upload icon", userID, map[string]interface{}{"icon_url": info.URL}); err != nil {
		if delErr := s.files.DeleteFile(ctx, info.Path); delErr != nil {
			logrus.WithField("path", info.Path).WithError(delErr).Warn("failed to remove orphaned icon")
		}
		return nil, err
	}
	return info, nil
}

// UpdateUsername 修改用户名，返回修改后的值。
func (s *userService) UpdateUsername(ctx context.Context, userID uint, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrEmptyUsername
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return "", ErrUsernameTooLong
	}

	taken, err := s.userRepo.UsernameTaken(ctx, username, userID)
	if err != nil {
		return "", wrapServiceError("update username", userID, err)
	}
	if taken {
		return "", ErrUsernameTaken
	}

	err = s.updateFields(ctx, "update username", userID, map[string]interface{}{"username": username})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", ErrUsernameTaken
	}
	if err != nil {
		return "", err
	}
	return username, nil
}

// UpdateListeningTo sets what the user is listening to (nil or blank clears it)
// and notifies every friend.
func (s *userService) UpdateListeningTo(ctx context.Context, userID uint, listeningTo *string) error {
	var value *string
	if listeningTo != nil {
		trimmed := strings.TrimSpace(*listeningTo)
		if utf8.RuneCountInString(trimmed) > maxListeningToLength {
			return ErrListeningTooLong
		}
		if trimmed != "" {
			value = &trimmed
		}
	}

	if err := s.updateFields(ctx, "update listening to", userID, map[string]interface{}{"listening_to": value}); err != nil {
		return err
	}

	actor, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Warn("skipping presence fan-out")
		return nil
	}
	friendIDs, err := s.friendshipRepo.GetFriendIDs(ctx, userID)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Warn("skipping presence fan-out")
		return nil
	}
	for _, friendID := range friendIDs {
		publishEvent(ctx, s.publisher, imtypes.PresenceUpdatedEvent, actor, friendID, func(ev *imtypes.RelationshipEvent) {
			ev.ListeningTo = value
		})
	}
	return nil
}

// TouchLastSeen 更新用户最近在线时间。
func (s *userService) TouchLastSeen(ctx context.Context, userID uint) error {
	return s.updateFields(ctx, "touch last seen", userID, map[string]interface{}{"last_seen_at": time.Now()})
}

func (s *userService) updateFields(ctx context.Context, op string, userID uint, fields map[string]interface{}) error {
	err := s.userRepo.UpdateFields(ctx, userID, fields)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotAuthenticated
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return err
	default:
		return wrapServiceError(op, userID, err)
	}
}
