package apiserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"tuneshare/internal/config"
	"tuneshare/internal/services"
)

const (
	defaultMaxMemory = 32 << 20 // multipart 表单在内存中的上限
	defaultMaxUpload = 5 << 20
)

// UserHandler 封装了用户资料相关的 HTTP 处理器方法。
type UserHandler struct {
	userService services.UserService
	storageCfg  config.StorageConfig
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService services.UserService, storageCfg config.StorageConfig) *UserHandler {
	return &UserHandler{userService: userService, storageCfg: storageCfg}
}

type updateIconRequest struct {
	IconURL string `json:"icon_url"`
}

type updateUsernameRequest struct {
	Username string `json:"username"`
}

type updateListeningRequest struct {
	ListeningTo *string `json:"listeningto"`
}

// GetUserDetails 处理 GET /api/get_user_details?userid=。
func (h *UserHandler) GetUserDetails(w http.ResponseWriter, r *http.Request) {
	info, err := h.userService.GetUserDetails(r.Context(), r.URL.Query().Get("userid"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"username": info.Username,
		"icon_url": info.IconURL,
	})
}

// UpdateIcon 处理 POST /api/update_icon，使用外部图片链接作为头像。
func (h *UserHandler) UpdateIcon(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req updateIconRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.userService.UpdateIcon(r.Context(), userID, req.IconURL); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, SuccessResponse{Success: true})
}

// UploadIcon 处理 POST /api/upload_icon，multipart 字段名为 "file"。
func (h *UserHandler) UploadIcon(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	maxUploadSize := h.storageCfg.MaxFileSizeMB << 20
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, fmt.Sprintf("上传文件过大，最大允许 %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		} else {
			writeJSONError(w, "Invalid multipart form", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeJSONError(w, "No file uploaded", http.StatusBadRequest)
		} else {
			writeJSONError(w, "Invalid file", http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"file_name": header.Filename,
		"size":      header.Size,
		"mime_type": mimeType,
	}).Debug("收到头像上传")

	info, err := h.userService.UploadIcon(r.Context(), userID, file, header.Size, header.Filename, mimeType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"success": true, "icon_url": info.URL})
}

// UpdateUsername 处理 POST /api/update_username。
func (h *UserHandler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req updateUsernameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	username, err := h.userService.UpdateUsername(r.Context(), userID, req.Username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"success": true, "new_username": username})
}

// UpdateListeningTo 处理 POST /api/update_listening_to。
func (h *UserHandler) UpdateListeningTo(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req updateListeningRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.userService.UpdateListeningTo(r.Context(), userID, req.ListeningTo); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, SuccessResponse{Success: true})
}
