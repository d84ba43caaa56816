package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Handlers groups the API handlers mounted by NewRouter.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Relationships *RelationshipHandler
}

// NewRouter 注册所有 API 路由。authMW 只作用于需要登录的路由。
func NewRouter(h Handlers, authMW mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()

	// 公开路由
	r.HandleFunc("/api/signup", h.Auth.Signup).Methods(http.MethodPost)
	r.HandleFunc("/api/login", h.Auth.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/check_email", h.Auth.CheckEmail).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMW)

	api.HandleFunc("/logout", h.Auth.Logout).Methods(http.MethodPost)

	// 用户资料
	api.HandleFunc("/get_user_details", h.Users.GetUserDetails).Methods(http.MethodGet)
	api.HandleFunc("/update_icon", h.Users.UpdateIcon).Methods(http.MethodPost)
	api.HandleFunc("/upload_icon", h.Users.UploadIcon).Methods(http.MethodPost)
	api.HandleFunc("/update_username", h.Users.UpdateUsername).Methods(http.MethodPost)
	api.HandleFunc("/update_listening_to", h.Users.UpdateListeningTo).Methods(http.MethodPost)

	// 好友与屏蔽
	rel := h.Relationships
	api.HandleFunc("/friends/send_request", rel.SendFriendRequest).Methods(http.MethodPost)
	api.HandleFunc("/friends/respond", rel.RespondToFriendRequest).Methods(http.MethodPost)
	api.HandleFunc("/friends/pending", rel.ListPendingRequests).Methods(http.MethodGet)
	api.HandleFunc("/friends/list", rel.ListFriends).Methods(http.MethodGet)
	api.HandleFunc("/friends/active", rel.ListActiveFriends).Methods(http.MethodGet)
	api.HandleFunc("/unfriend", rel.Unfriend).Methods(http.MethodPost)
	api.HandleFunc("/block", rel.BlockUser).Methods(http.MethodPost)
	api.HandleFunc("/unblock", rel.UnblockUser).Methods(http.MethodPost)
	api.HandleFunc("/blocked/list", rel.ListBlocked).Methods(http.MethodGet)
	api.HandleFunc("/check_friend_request_exists", rel.CheckFriendRequestExists).Methods(http.MethodGet)
	api.HandleFunc("/get_notifications", rel.GetNotifications).Methods(http.MethodGet)

	return r
}
