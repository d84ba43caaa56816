package apiserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuneshare/internal/auth"
	"tuneshare/internal/config"
	"tuneshare/internal/middleware"
	"tuneshare/internal/models"
	"tuneshare/internal/services"
	"tuneshare/internal/storage"
)

var testAuthCfg = config.AuthConfig{
	JWTSecretKey: "handler-secret",
	JWTExpiry:    time.Hour,
	CookieName:   "session_token",
}

type apiFixture struct {
	router http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db, err := storage.InitDB(config.DatabaseConfig{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, storage.AutoMigrateTables(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	storageCfg := config.StorageConfig{LocalPath: t.TempDir(), BaseURL: "/uploads", MaxFileSizeMB: 1}
	files, err := storage.NewLocalStorageService(storageCfg)
	require.NoError(t, err)

	userRepo := storage.NewGormUserRepository(db)
	friendshipRepo := storage.NewGormFriendshipRepository(db)
	authService := services.NewAuthService(userRepo, auth.NewMemoryBlacklist(), testAuthCfg)
	userService := services.NewUserService(userRepo, friendshipRepo, files, nil)
	relService := services.NewRelationshipService(db, userRepo,
		storage.NewGormFriendRequestRepository(db), friendshipRepo, storage.NewGormBlockRepository(db), nil)

	authMW := middleware.AuthMiddleware(authService, testAuthCfg.CookieName, &middleware.PresenceTracker{Users: userService})
	router := NewRouter(Handlers{
		Auth:          NewAuthHandler(authService, testAuthCfg),
		Users:         NewUserHandler(userService, storageCfg),
		Relationships: NewRelationshipHandler(relService),
	}, authMW)
	return &apiFixture{router: router}
}

type session struct {
	token  string
	userid string
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (f *apiFixture) signup(t *testing.T, name string) session {
	t.Helper()
	rec, body := f.do(t, http.MethodPost, "/api/signup", "", map[string]string{
		"email":    name + "@example.com",
		"username": name,
		"password": "secret-" + name,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, body["success"])
	return session{token: body["token"].(string), userid: body["userid"].(string)}
}

func TestSignupLoginAndLogout(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.signup(t, "alice")
	assert.NotEmpty(t, alice.userid)

	rec, body := f.do(t, http.MethodPost, "/api/signup", "", map[string]string{"email": "alice@example.com", "username": "x", "password": "p"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already exists", body["error"])

	rec, body = f.do(t, http.MethodPost, "/api/check_email", "", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["exists"])
	_, body = f.do(t, http.MethodPost, "/api/check_email", "", "not json")
	assert.Equal(t, false, body["exists"])

	rec, body = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials", body["error"])
	assert.Equal(t, false, body["success"])

	rec, body = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "alice@example.com", "password": "secret-alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["is_superuser"])
	token := body["token"].(string)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// The session cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/friends/list", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: token})
	cookieRec := httptest.NewRecorder()
	f.router.ServeHTTP(cookieRec, req)
	assert.Equal(t, http.StatusOK, cookieRec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/friends/list", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	f := newAPIFixture(t)
	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/friends/send_request"},
		{http.MethodGet, "/api/friends/pending"},
		{http.MethodGet, "/api/blocked/list"},
		{http.MethodGet, "/api/get_notifications"},
		{http.MethodPost, "/api/update_listening_to"},
	} {
		rec, body := f.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
		assert.Equal(t, false, body["success"], route.path)
	}
}

func TestFriendRequestFlow(t *testing.T) {
	f := newAPIFixture(t)
	alice, bob := f.signup(t, "alice"), f.signup(t, "bob")

	rec, body := f.do(t, http.MethodPost, "/api/friends/send_request", alice.token, map[string]string{"target_userid": bob.userid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Friend request sent", body["message"])

	rec, body = f.do(t, http.MethodPost, "/api/friends/send_request", alice.token, map[string]string{"target_userid": bob.userid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Friend request already pending", body["error"])

	rec, body = f.do(t, http.MethodPost, "/api/friends/send_request", alice.token, map[string]string{"target_userid": "nobody00aaa"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", body["error"])

	rec, body = f.do(t, http.MethodPost, "/api/friends/send_request", alice.token, "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", body["error"])

	rec, body = f.do(t, http.MethodGet, "/api/check_friend_request_exists?target_userid="+bob.userid, alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["exists"])

	_, body = f.do(t, http.MethodGet, "/api/friends/pending", bob.token, nil)
	requests := body["requests"].([]interface{})
	require.Len(t, requests, 1)
	pending := requests[0].(map[string]interface{})
	assert.Equal(t, "alice", pending["sender_username"])
	assert.Equal(t, alice.userid, pending["sender_userid"])
	requestID := uint(pending["request_id"].(float64))

	_, body = f.do(t, http.MethodGet, "/api/get_notifications", bob.token, nil)
	notifications := body["notifications"].([]interface{})
	require.Len(t, notifications, 1)
	assert.Equal(t, "alice sent you a friend request.", notifications[0].(map[string]interface{})["message"])

	rec, body = f.do(t, http.MethodPost, "/api/friends/respond", bob.token, map[string]string{"request_id": fmt.Sprint(requestID), "action": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid action", body["error"])

	// request_id may be sent as a string.
	rec, _ = f.do(t, http.MethodPost, "/api/friends/respond", bob.token, map[string]string{"request_id": fmt.Sprint(requestID), "action": "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = f.do(t, http.MethodPost, "/api/friends/respond", bob.token, map[string]interface{}{"request_id": requestID, "action": "accept"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Request not found", body["error"])

	_, body = f.do(t, http.MethodGet, "/api/friends/list", alice.token, nil)
	friends := body["friends"].([]interface{})
	require.Len(t, friends, 1)
	friend := friends[0].(map[string]interface{})
	assert.Equal(t, "bob", friend["username"])
	assert.Equal(t, bob.userid, friend["userid"])
	assert.Nil(t, friend["listeningto"])

	_, body = f.do(t, http.MethodGet, "/api/friends/active", alice.token, nil)
	assert.Equal(t, true, body["success"])
	active := body["friends"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Nothing", active["listeningto"])
	assert.Equal(t, models.DefaultIconURL, active["icon_url"])

	rec, _ = f.do(t, http.MethodPost, "/api/update_listening_to", bob.token, map[string]string{"listeningto": "So What"})
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = f.do(t, http.MethodGet, "/api/friends/active", alice.token, nil)
	active = body["friends"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "So What", active["listeningto"])

	rec, _ = f.do(t, http.MethodPost, "/api/unfriend", alice.token, map[string]string{"userid": bob.userid})
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = f.do(t, http.MethodGet, "/api/friends/list", bob.token, nil)
	assert.Empty(t, body["friends"])
}

func TestBlockFlow(t *testing.T) {
	f := newAPIFixture(t)
	alice, bob := f.signup(t, "alice"), f.signup(t, "bob")

	rec, body := f.do(t, http.MethodPost, "/api/block", alice.token, map[string]string{"target_userid": bob.userid, "reason": "spam"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "User blocked successfully", body["message"])

	rec, body = f.do(t, http.MethodPost, "/api/block", alice.token, map[string]string{"target_userid": bob.userid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already blocked", body["error"])

	rec, body = f.do(t, http.MethodPost, "/api/friends/send_request", bob.token, map[string]string{"target_userid": alice.userid})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "you are blocked by this user", body["error"])

	_, body = f.do(t, http.MethodGet, "/api/blocked/list", alice.token, nil)
	blocked := body["blocked_users"].([]interface{})
	require.Len(t, blocked, 1)
	assert.Equal(t, "spam", blocked[0].(map[string]interface{})["reason"])

	_, body = f.do(t, http.MethodPost, "/api/unblock", alice.token, map[string]string{"target_userid": bob.userid})
	assert.Equal(t, "User unblocked successfully", body["message"])
	_, body = f.do(t, http.MethodPost, "/api/unblock", alice.token, map[string]string{"target_userid": bob.userid})
	assert.Equal(t, "User was not blocked", body["message"])
	rec, body = f.do(t, http.MethodPost, "/api/unblock", alice.token, map[string]string{"target_userid": "ghost00zzz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User unblocked (or was not found)", body["message"])

	_, body = f.do(t, http.MethodGet, "/api/blocked/list", alice.token, nil)
	assert.Empty(t, body["blocked_users"])
}

func TestUserProfileRoutes(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.signup(t, "alice")
	f.signup(t, "bob")

	rec, body := f.do(t, http.MethodGet, "/api/get_user_details?userid="+alice.userid, alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", body["username"])

	rec, _ = f.do(t, http.MethodGet, "/api/get_user_details?userid=ghost00zzz", alice.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = f.do(t, http.MethodPost, "/api/update_username", alice.token, map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username already taken", body["error"])

	rec, body = f.do(t, http.MethodPost, "/api/update_username", alice.token, map[string]string{"username": "alicia"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alicia", body["new_username"])

	rec, body = f.do(t, http.MethodPost, "/api/update_icon", alice.token, map[string]string{"icon_url": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No icon URL provided", body["error"])

	rec, _ = f.do(t, http.MethodPost, "/api/update_icon", alice.token, map[string]string{"icon_url": "https://img.example.com/a.png"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadIconRoute(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.signup(t, "alice")

	upload := func(contentType string, content []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/upload_icon", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+alice.token)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec, out
	}

	rec, body := upload("image/png", []byte("png-bytes"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, body["icon_url"], "/uploads/")

	rec, body = upload("text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only image uploads are allowed", body["error"])

	rec, _ = upload("image/png", bytes.Repeat([]byte("x"), 2<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
