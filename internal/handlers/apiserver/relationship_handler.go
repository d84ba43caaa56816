package apiserver

import (
	"net/http"

	"tuneshare/internal/models"
	"tuneshare/internal/services"
	"tuneshare/internal/storage"
)

const defaultListeningTo = "Nothing"

// RelationshipHandler 封装了好友请求、好友关系和屏蔽相关的 HTTP 处理器方法。
type RelationshipHandler struct {
	relationships services.RelationshipService
}

// NewRelationshipHandler 创建一个新的 RelationshipHandler 实例。
func NewRelationshipHandler(relationships services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{relationships: relationships}
}

type targetRequest struct {
	TargetUserID string `json:"target_userid"`
}

type respondRequest struct {
	RequestID storage.FlexibleID `json:"request_id"`
	Action    string             `json:"action"`
}

type unfriendRequest struct {
	UserID string `json:"userid"`
}

type blockRequest struct {
	TargetUserID string  `json:"target_userid"`
	Reason       *string `json:"reason"`
}

// ActiveFriend is one entry of /api/friends/active.
type ActiveFriend struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	IconURL     string `json:"icon_url"`
	ListeningTo string `json:"listeningto"`
}

// SendFriendRequest 处理 POST /api/friends/send_request。
func (h *RelationshipHandler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.relationships.SendFriendRequest(r.Context(), actorID, req.TargetUserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, SuccessResponse{Success: true, Message: "Friend request sent"})
}

// RespondToFriendRequest 处理 POST /api/friends/respond。
func (h *RelationshipHandler) RespondToFriendRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.relationships.RespondToFriendRequest(r.Context(), actorID, uint(req.RequestID), req.Action); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, SuccessResponse{Success: true})
}

// ListPendingRequests 处理 GET /api/friends/pending。
func (h *RelationshipHandler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	requests, err := h.relationships.ListPendingRequests(r.Context(), actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if requests == nil {
		requests = []models.PendingRequestView{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// ListFriends 处理 GET /api/friends/list。
func (h *RelationshipHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	friends, err := h.relationships.ListFriends(r.Context(), actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if friends == nil {
		friends = []models.FriendView{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"friends": friends})
}

// ListActiveFriends 处理 GET /api/friends/active，为缺省的头像和收听状态填充默认值。
func (h *RelationshipHandler) ListActiveFriends(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	friends, err := h.relationships.ListFriends(r.Context(), actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	active := make([]ActiveFriend, 0, len(friends))
	for _, f := range friends {
		entry := ActiveFriend{
			ID:          f.FriendID,
			Username:    f.Username,
			IconURL:     f.IconURL,
			ListeningTo: defaultListeningTo,
		}
		if entry.IconURL == "" {
			entry.IconURL = models.DefaultIconURL
		}
		if f.ListeningTo != nil && *f.ListeningTo != "" {
			entry.ListeningTo = *f.ListeningTo
		}
		active = append(active, entry)
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"success": true, "friends": active})
}

// Unfriend 处理 POST /api/unfriend。
func (h *RelationshipHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req unfriendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.relationships.Unfriend(r.Context(), actorID, req.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, SuccessResponse{Success: true})
}

// BlockUser 处理 POST /api/block。
func (h *RelationshipHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req blockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.relationships.BlockUser(r.Context(), actorID, req.TargetUserID, req.Reason); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, SuccessResponse{Success: true, Message: "User blocked successfully"})
}

// UnblockUser 处理 POST /api/unblock。目标不存在或未被屏蔽都不算错误。
func (h *RelationshipHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	outcome, err := h.relationships.UnblockUser(r.Context(), actorID, req.TargetUserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, SuccessResponse{Success: true, Message: outcome.Message()})
}

// ListBlocked 处理 GET /api/blocked/list。
func (h *RelationshipHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	blocked, err := h.relationships.ListBlocked(r.Context(), actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if blocked == nil {
		blocked = []models.BlockedView{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"blocked_users": blocked})
}

// CheckFriendRequestExists 处理 GET /api/check_friend_request_exists?target_userid=。
func (h *RelationshipHandler) CheckFriendRequestExists(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	exists, err := h.relationships.CheckFriendRequestExists(r.Context(), actorID, r.URL.Query().Get("target_userid"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"exists": exists})
}

// GetNotifications 处理 GET /api/get_notifications。
func (h *RelationshipHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	notifications, err := h.relationships.ListNotifications(r.Context(), actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []services.RequestNotification{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"success": true, "notifications": notifications})
}
