package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tuneshare/internal/config"
)

// Client is a middleman between the websocket connection and the hub.
// The connection is push-only: anything the peer sends is read and discarded
// so that pongs and close frames are processed.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound notifications.
	send chan []byte

	// Authenticated User ID for this client.
	UserID uint
}

// NewClient creates a client for userID with a send buffer of the given size.
func NewClient(hub *Hub, conn *websocket.Conn, userID uint, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		UserID: userID,
	}
}

// readPump reads until the connection fails, then unregisters the client.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	pongWait := time.Duration(wsCfg.PongWaitSeconds) * time.Second
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("user_id", c.UserID).Warn("WebSocket 错误")
			}
			return
		}
	}
}

// writePump pumps notifications from the hub to the websocket connection.
// Each notification is written as its own text frame.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	writeWait := time.Duration(wsCfg.WriteWaitSeconds) * time.Second
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithError(err).WithField("user_id", c.UserID).Debug("写入通知失败")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs 把 HTTP 连接升级为 WebSocket，并为 userID 注册一个客户端。
func ServeWs(hub *Hub, userID uint, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("ServeWs - Upgrade失败")
		return
	}
	client := NewClient(hub, conn, userID, wsCfg.SendBufferSize)
	hub.Register(client)

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)

	logrus.WithField("user_id", userID).Info("客户端已连接")
}
