package apiserver

import (
	"net/http"
	"time"

	"tuneshare/internal/config"
	"tuneshare/internal/middleware"
	"tuneshare/internal/services"
)

// AuthHandler 封装了认证相关的 HTTP 处理器方法。
type AuthHandler struct {
	AuthService services.AuthService
	cfg         config.AuthConfig
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(authService services.AuthService, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{AuthService: authService, cfg: cfg}
}

// SignupRequest 是用户注册请求的结构体。
type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest 是用户登录请求的结构体。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse 是注册或登录成功后返回的结构体。
type LoginResponse struct {
	Success     bool   `json:"success"`
	IsSuperuser bool   `json:"is_superuser"`
	Token       string `json:"token"`
	UserID      string `json:"userid,omitempty"`
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

// Signup 处理用户注册请求。注册成功即视为登录。
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, token, err := h.AuthService.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, token, h.cfg.JWTExpiry)
	writeJSONResponse(w, http.StatusOK, LoginResponse{
		Success:     true,
		IsSuperuser: user.IsSuperuser,
		Token:       token,
		UserID:      user.UserID,
	})
}

// Login 处理用户登录请求。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, token, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, token, h.cfg.JWTExpiry)
	writeJSONResponse(w, http.StatusOK, LoginResponse{Success: true, IsSuperuser: user.IsSuperuser, Token: token})
}

// CheckEmail 处理邮箱是否已注册的查询。解析失败时按不存在处理。
func (h *AuthHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req checkEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusOK, map[string]bool{"exists": false})
		return
	}
	exists, err := h.AuthService.EmailExists(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"exists": exists})
}

// Logout 将当前 Token 加入黑名单并清除会话 cookie。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeJSONError(w, services.ErrNotAuthenticated.Message, http.StatusUnauthorized)
		return
	}
	if err := h.AuthService.Logout(r.Context(), claims); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.setSessionCookie(w, "", -1)
	writeJSONResponse(w, http.StatusOK, SuccessResponse{Success: true})
}

// setSessionCookie writes the HttpOnly session cookie. A negative maxAge deletes it.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	if h.cfg.CookieName == "" {
		return
	}
	cookie := &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	http.SetCookie(w, cookie)
}
