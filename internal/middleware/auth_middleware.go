package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"tuneshare/internal/auth"
)

// contextKey 是用于在 context.Context 中存储值的自定义类型，以避免键冲突。
type contextKey string

// UserIDKey 是用于在上下文中存储用户ID的键。
const UserIDKey contextKey = "userID"

// UsernameKey 是用于在上下文中存储用户名的键。
const UsernameKey contextKey = "username"

// ClaimsKey stores the validated *auth.Claims.
const ClaimsKey contextKey = "claims"

// TokenValidator validates a session token. services.AuthService satisfies it.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// LastSeenToucher records that a user made a request.
type LastSeenToucher interface {
	TouchLastSeen(ctx context.Context, userID uint) error
}

// Throttle decides whether a per-user write may happen now.
type Throttle interface {
	Allow(ctx context.Context, userID uint) (bool, error)
}

// PresenceTracker 在认证成功后更新 last_seen_at，受 Throttle 限流。
// Throttle 为 nil 时每个请求都会写库。
type PresenceTracker struct {
	Users    LastSeenToucher
	Throttle Throttle
}

func (p *PresenceTracker) touch(ctx context.Context, userID uint) {
	if p == nil || p.Users == nil {
		return
	}
	if p.Throttle != nil {
		allowed, err := p.Throttle.Allow(ctx, userID)
		if err != nil {
			// Redis 不可用时退化为每个请求都写库
			logrus.WithError(err).WithField("user_id", userID).Warn("presence throttle unavailable")
		} else if !allowed {
			return
		}
	}
	if err := p.Users.TouchLastSeen(ctx, userID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("更新 last_seen_at 失败")
	}
}

// AuthMiddleware 验证 Bearer 令牌或会话 cookie，并将用户信息添加到上下文中。
func AuthMiddleware(validator TokenValidator, cookieName string, presence *PresenceTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := tokenFromRequest(r, cookieName)
			if err != nil {
				writeJSONError(w, err.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(r.Context(), tokenString)
			if err != nil {
				writeJSONError(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			presence.touch(r.Context(), claims.UserID)

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, UsernameKey, claims.Username)
			ctx = context.WithValue(ctx, ClaimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request, cookieName string) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" || headerParts[1] == "" {
			return "", errors.New("授权头部格式无效，应为 Bearer {token}")
		}
		return headerParts[1], nil
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", errors.New("Authentication required")
}

// GetUserIDFromContext 从上下文中获取用户ID。
// 如果用户ID不存在或类型不正确，返回0和false。
func GetUserIDFromContext(ctx context.Context) (uint, bool) {
	userID, ok := ctx.Value(UserIDKey).(uint)
	return userID, ok
}

// GetUsernameFromContext 从上下文中获取用户名。
func GetUsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

// GetClaimsFromContext returns the claims stored by AuthMiddleware.
func GetClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// ContextWithUserID returns ctx carrying userID the way AuthMiddleware stores it.
func ContextWithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": message})
}
