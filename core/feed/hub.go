package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"songcatalog/core/catalog"
	"songcatalog/logger"
	"songcatalog/model"

	"github.com/gorilla/websocket"
)

// MessageType 消息类型
type MessageType string

const (
	MsgTypeCatalogChange MessageType = "catalog_change" // 可用性变更
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// WSMessage 推送给后台的消息
type WSMessage struct {
	Type      MessageType  `json:"type"`
	Data      *ChangeEvent `json:"data,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// ChangeEvent 一次已持久化的目录变更
type ChangeEvent struct {
	SongID          string                `json:"songId"`
	Title           string                `json:"title"`
	EffectiveStatus model.EffectiveStatus `json:"effectiveStatus"`
	Version         int64                 `json:"version"`
	Entry           model.AuditEntry      `json:"entry"`
}

// Client WebSocket 客户端
type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte
	Actor string
}

// NewClient 创建客户端，调用方负责 Register 并启动读写循环
func NewClient(hub *Hub, conn *websocket.Conn, actor string) *Client {
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, sendBuffer), Actor: actor}
}

// Hub 目录变更推送中心，实现 catalog.Observer
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

var _ catalog.Observer = (*Hub)(nil)

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Info("[Feed] 客户端已连接", logger.String("actor", client.Actor))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub，关闭所有客户端发送通道
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// removeClient 需要持有锁
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		logger.Info("[Feed] 客户端已断开", logger.String("actor", client.Actor))
	}
}

func (h *Hub) fanOut(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.Send <- msg:
		default:
			// 发送缓冲区满，移除慢客户端
			h.removeClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]bool)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CatalogChanged broadcasts the change without blocking the mutation path.
func (h *Hub) CatalogChanged(ctx context.Context, song *model.Song, entry model.AuditEntry) {
	msg := &WSMessage{
		Type: MsgTypeCatalogChange,
		Data: &ChangeEvent{
			SongID:          song.ID,
			Title:           song.Title,
			EffectiveStatus: entry.NewState,
			Version:         song.Version,
			Entry:           entry,
		},
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("[Feed] 序列化消息失败", logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logger.Warn("[Feed] 广播队列已满，丢弃消息", logger.String("songId", song.ID))
	}
}

// ReadPump 读取循环，负责心跳超时和断线检测
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("[Feed] websocket read error", logger.ErrorField(err), logger.String("actor", c.Actor))
			}
			return
		}

		// 后台只订阅，不处理客户端消息
		logger.Debug("[Feed] 忽略客户端消息", logger.Int("bytes", len(message)))
	}
}

// WritePump 写入循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
