package notifyserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuneshare/internal/auth"
	"tuneshare/internal/config"
	"tuneshare/internal/imtypes"
	ws "tuneshare/internal/websocket"
)

var testCfg = config.Config{
	Auth: config.AuthConfig{JWTSecretKey: "ws-secret", JWTExpiry: time.Hour, CookieName: "session_token"},
	WebSocket: config.WebSocketConfig{
		WriteWaitSeconds:    5,
		PongWaitSeconds:     60,
		PingPeriodSeconds:   54,
		MaxMessageSizeBytes: 512,
		SendBufferSize:      8,
	},
}

func newServer(t *testing.T, blacklist auth.TokenBlacklist) (*httptest.Server, *ws.Hub) {
	t.Helper()
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, JWTValidator{Key: testCfg.Auth.JWTSecretKey, Blacklist: blacklist}, testCfg).ServeWS))
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestServeWSRejectsMissingOrBadToken(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWSDeliversNotifications(t *testing.T) {
	srv, hub := newServer(t, nil)
	token, err := auth.GenerateToken(21, "bob42abc", "bob", testCfg.Auth)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ConnectionCount(21) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.DeliverToUser(21, &imtypes.Notification{
		Type:          imtypes.FriendRequestSentEvent,
		ActorUserID:   "alice42abc",
		ActorUsername: "alice",
		RequestID:     3,
		Message:       "alice sent you a friend request.",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got imtypes.Notification
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, imtypes.FriendRequestSentEvent, got.Type)
	assert.Equal(t, "alice sent you a friend request.", got.Message)
}

func TestServeWSRejectsRevokedToken(t *testing.T) {
	blacklist := auth.NewMemoryBlacklist()
	srv, _ := newServer(t, blacklist)
	token, err := auth.GenerateToken(4, "carol42abc", "carol", testCfg.Auth)
	require.NoError(t, err)
	claims, err := auth.ValidateToken(context.Background(), token, testCfg.Auth.JWTSecretKey, nil)
	require.NoError(t, err)
	require.NoError(t, blacklist.Add(context.Background(), claims.ID, claims.ExpiresAt.Time))

	resp, err := http.Get(srv.URL + "?token=" + token)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
