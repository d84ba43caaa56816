package websocket

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"tuneshare/internal/imtypes"
)

// directCapacity 是待投递通知队列的容量。
const directCapacity = 256

type userNotification struct {
	userID       uint
	notification *imtypes.Notification
}

type countQuery struct {
	userID uint
	reply  chan int
}

// Hub 维护在线客户端并把通知推送给目标用户。
// 同一个用户可以同时有多个连接（多个标签页），每个连接都会收到通知。
// 客户端表只由 Run 所在的 goroutine 读写。
type Hub struct {
	clients map[uint]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	direct     chan userNotification
	count      chan countQuery
	done       chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan userNotification, directCapacity),
		count:      make(chan countQuery),
		done:       make(chan struct{}),
	}
}

// DeliverToUser queues a notification for every connection of userID.
// It never blocks; false means the queue was full and the notification was dropped.
func (h *Hub) DeliverToUser(userID uint, notification *imtypes.Notification) bool {
	select {
	case h.direct <- userNotification{userID: userID, notification: notification}:
		return true
	default:
		logrus.WithField("user_id", userID).Warn("Hub direct channel is full, dropping notification")
		return false
	}
}

// Register adds a client to the hub. Run must be running.
// After the hub has stopped the client's send channel is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ConnectionCount reports how many connections userID currently has.
func (h *Hub) ConnectionCount(userID uint) int {
	q := countQuery{userID: userID, reply: make(chan int, 1)}
	select {
	case h.count <- q:
		return <-q.reply
	case <-h.done:
		return 0
	}
}

// Run 处理注册、注销与投递，直到 ctx 结束。
func (h *Hub) Run(ctx context.Context) {
	logrus.Info("WebSocket Hub Run loop started.")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for c := range set {
					close(c.send)
				}
				delete(h.clients, userID)
			}
			logrus.Info("WebSocket Hub stopped.")
			return

		case c := <-h.register:
			set, ok := h.clients[c.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.UserID] = set
			}
			set[c] = struct{}{}
			logrus.WithFields(logrus.Fields{"user_id": c.UserID, "connections": len(set)}).Info("客户端已注册")

		case c := <-h.unregister:
			if h.remove(c) {
				logrus.WithField("user_id", c.UserID).Info("客户端已注销")
			}

		case q := <-h.count:
			q.reply <- len(h.clients[q.userID])

		case msg := <-h.direct:
			set, ok := h.clients[msg.userID]
			if !ok {
				// 用户不在本实例上
				continue
			}
			payload, err := json.Marshal(msg.notification)
			if err != nil {
				logrus.WithError(err).WithField("user_id", msg.userID).Error("无法序列化通知")
				continue
			}
			for c := range set {
				select {
				case c.send <- payload:
				default:
					logrus.WithField("user_id", msg.userID).Warn("发送通道已满，移除客户端")
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) bool {
	set, ok := h.clients[c.UserID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	return true
}
