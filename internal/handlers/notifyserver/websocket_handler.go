package notifyserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"tuneshare/internal/auth"
	"tuneshare/internal/config"
	"tuneshare/internal/middleware"
	ws "tuneshare/internal/websocket"
)

// JWTValidator checks a token's signature, expiry and revocation without a database.
type JWTValidator struct {
	Key       string
	Blacklist auth.TokenBlacklist // 可以为 nil
}

func (v JWTValidator) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	return auth.ValidateToken(ctx, token, v.Key, v.Blacklist)
}

// WebSocketHandler 负责处理通知推送的 WebSocket 连接请求。
type WebSocketHandler struct {
	hub       *ws.Hub
	validator middleware.TokenValidator
	cfg       config.Config // 用于获取 WebSocket 和 Auth 配置
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *ws.Hub, validator middleware.TokenValidator, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		validator: validator,
		cfg:       cfg,
	}
}

// ServeWS 验证令牌后把 HTTP 连接升级为 WebSocket。
// 浏览器无法为 WebSocket 设置请求头，所以令牌优先从 ?token= 读取，其次是会话 cookie。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" && h.cfg.Auth.CookieName != "" {
		if c, err := r.Cookie(h.cfg.Auth.CookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		http.Error(w, "缺少认证令牌", http.StatusUnauthorized)
		return
	}

	claims, err := h.validator.ValidateToken(r.Context(), token)
	if err != nil {
		logrus.WithError(err).Info("WebSocket 连接尝试失败：令牌无效")
		http.Error(w, "令牌无效", http.StatusUnauthorized)
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": claims.UserID, "username": claims.Username}).Debug("用户尝试连接 WebSocket")
	ws.ServeWs(h.hub, claims.UserID, w, r, h.cfg.WebSocket)
}
