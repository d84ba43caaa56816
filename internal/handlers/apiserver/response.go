package apiserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"tuneshare/internal/middleware"
	"tuneshare/internal/services"
)

// ErrorResponse 是 API 错误响应的通用结构体。
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SuccessResponse is the body of operations that return nothing else.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

var errInvalidBody = errors.New("Invalid JSON body")

// writeJSONResponse 是一个辅助函数，用于发送 JSON 响应。
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// 头部已发送，只能记录
			logrus.WithError(err).Error("无法编码 JSON 响应")
		}
	}
}

// writeJSONError 是一个辅助函数，用于发送 JSON 格式的错误响应。
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Success: false, Error: message})
}

// writeServiceError maps a service error to its status. Internal details never reach the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		svcErr = &services.Error{Kind: services.KindInternal, Err: err}
	}
	if svcErr.Kind == services.KindInternal {
		userID, _ := middleware.GetUserIDFromContext(r.Context())
		logrus.WithError(err).WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"user_id": userID,
		}).Error("request failed")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSONError(w, svcErr.Message, svcErr.Kind.HTTPStatus())
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidBody
	}
	return nil
}

// currentUserID 从上下文中获取用户ID，缺失时写出 401。
func currentUserID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok || userID == 0 {
		writeJSONError(w, services.ErrNotAuthenticated.Message, http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}
