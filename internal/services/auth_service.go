package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tuneshare/internal/auth"
	"tuneshare/internal/config"
	"tuneshare/internal/models"
	"tuneshare/internal/storage"
)

const (
	maxUsernameLength = 150
	userIDAttempts    = 10
)

var (
	ErrMissingFields      = newError(KindInvalidOperation, "Missing fields")
	ErrEmailExists        = newError(KindConflict, "Email already exists")
	ErrUsernameTaken      = newError(KindConflict, "Username already taken")
	ErrInvalidCredentials = newError(KindInvalidOperation, "Invalid credentials")
	ErrUserIDExhausted    = newError(KindInternal, "could not allocate a unique userid")
)

// AuthService 定义了用户认证服务的接口。
type AuthService interface {
	Register(ctx context.Context, email, username, password string) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	EmailExists(ctx context.Context, email string) (bool, error)
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// authService 是 AuthService 的实现。
type authService struct {
	userRepo  storage.UserRepository
	blacklist auth.TokenBlacklist
	cfg       config.AuthConfig
}

// NewAuthService 创建一个新的 AuthService 实例。blacklist 可以为 nil。
func NewAuthService(userRepo storage.UserRepository, blacklist auth.TokenBlacklist, cfg config.AuthConfig) AuthService {
	return &authService{
		userRepo:  userRepo,
		blacklist: blacklist,
		cfg:       cfg,
	}
}

// Register 创建用户并返回登录令牌。公开的 userid 由用户名加两位数字和三个小写字母组成。
func (s *authService) Register(ctx context.Context, email, username, password string) (*models.User, string, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	if email == "" || username == "" || password == "" {
		return nil, "", ErrMissingFields
	}
	if len([]rune(username)) > maxUsernameLength {
		return nil, "", ErrUsernameTooLong
	}

	exists, err := s.userRepo.EmailExists(ctx, email)
	if err != nil {
		return nil, "", wrapServiceError("register", 0, err)
	}
	if exists {
		return nil, "", ErrEmailExists
	}
	taken, err := s.userRepo.UsernameTaken(ctx, username, 0)
	if err != nil {
		return nil, "", wrapServiceError("register", 0, err)
	}
	if taken {
		return nil, "", ErrUsernameTaken
	}

	userid, err := s.generateUserID(ctx, username)
	if err != nil {
		return nil, "", wrapServiceError("register", 0, err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", wrapServiceError("register", 0, fmt.Errorf("密码哈希失败: %w", err))
	}

	now := time.Now()
	user := &models.User{
		UserID:       userid,
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		IsActive:     true,
		LastSeenAt:   &now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race with a concurrent signup.
			if exists, _ := s.userRepo.EmailExists(ctx, email); exists {
				return nil, "", ErrEmailExists
			}
			return nil, "", ErrUsernameTaken
		}
		return nil, "", wrapServiceError("register", 0, fmt.Errorf("创建用户失败: %w", err))
	}

	token, err := auth.GenerateToken(user.ID, user.UserID, user.Username, s.cfg)
	if err != nil {
		return nil, "", wrapServiceError("register", user.ID, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"userid":  user.UserID,
	}).Info("user registered")
	return user, token, nil
}

func (s *authService) generateUserID(ctx context.Context, username string) (string, error) {
	base := strings.ReplaceAll(username, " ", "")
	for i := 0; i < userIDAttempts; i++ {
		candidate := base + randomUserIDSuffix()
		exists, err := s.userRepo.UserIDExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrUserIDExhausted
}

func randomUserIDSuffix() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 0, 5)
	b = append(b, byte('0'+rand.Intn(10)), byte('0'+rand.Intn(10)))
	for i := 0; i < 3; i++ {
		b = append(b, letters[rand.Intn(len(letters))])
	}
	return string(b)
}

// Login 校验邮箱和密码，成功后返回令牌并记录最近在线时间。
func (s *authService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", wrapServiceError("login", 0, fmt.Errorf("通过邮箱查找用户失败: %w", err))
	}
	if !user.IsActive || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.UserID, user.Username, s.cfg)
	if err != nil {
		return nil, "", wrapServiceError("login", user.ID, fmt.Errorf("生成令牌失败: %w", err))
	}

	now := time.Now()
	if err := s.userRepo.UpdateFields(ctx, user.ID, map[string]interface{}{"last_seen_at": now}); err != nil {
		logrus.WithField("user_id", user.ID).WithError(err).Warn("failed to stamp last_seen_at on login")
	} else {
		user.LastSeenAt = &now
	}
	return user, token, nil
}

// Logout 将令牌的 jti 加入黑名单，直到令牌原本的过期时间。
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return ErrNotAuthenticated
	}
	if s.blacklist == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return wrapServiceError("logout", claims.UserID, err)
	}
	return nil
}

func (s *authService) EmailExists(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, nil
	}
	exists, err := s.userRepo.EmailExists(ctx, email)
	if err != nil {
		return false, wrapServiceError("check email", 0, err)
	}
	return exists, nil
}

// ValidateToken checks signature, expiry and revocation.
func (s *authService) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := auth.ValidateToken(ctx, token, s.cfg.JWTSecretKey, s.blacklist)
	if err != nil {
		return nil, &Error{Kind: KindNotAuthenticated, Message: "Not authenticated", Err: err}
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
