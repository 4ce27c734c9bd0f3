package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ZiyodullaSodiqov/anyChat/internal/config"
	"github.com/ZiyodullaSodiqov/anyChat/internal/metrics"
	"github.com/ZiyodullaSodiqov/anyChat/internal/models"
	"github.com/ZiyodullaSodiqov/anyChat/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	storeTimeout   = 5 * time.Second
	maxMessageSize = 1 << 20 // 1MB
	sendBufferSize = 256

	closeReasonNotFound = "Chat not found"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OutboundMessage 是下行帧格式，没有 type 字段，客户端通过 sender == "System" 识别通知。
type OutboundMessage struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Client 是一个已加入房间的 WebSocket 会话。
type Client struct {
	hub       *Hub
	store     store.Store
	conn      *websocket.Conn
	code      string
	name      string
	fanout    string
	keepAlive time.Duration
	logger    zerolog.Logger

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// Serve 处理 /ws/:chat_id?name=X：校验房间、加入、收发消息，断开时执行离开流程。
func Serve(h *Hub, st store.Store, cfg config.Config) gin.HandlerFunc {
	keepAlive := time.Duration(cfg.KeepAliveSeconds) * time.Second
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}
	return func(c *gin.Context) {
		code := c.Param("chat_id")
		name := strings.TrimSpace(c.Query("name"))
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "name is required"})
			return
		}
		if !h.Acquire() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "server is shutting down"})
			return
		}
		defer h.Release()

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		_, findErr := st.FindRoom(ctx, code)
		cancel()

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("chat_id", code).Msg("ws upgrade")
			return
		}
		if findErr != nil {
			if errors.Is(findErr, store.ErrNotFound) {
				closeWith(conn, websocket.ClosePolicyViolation, closeReasonNotFound)
				return
			}
			log.Error().Err(findErr).Str("chat_id", code).Msg("ws find room")
			closeWith(conn, websocket.CloseInternalServerErr, "Internal error")
			return
		}

		client := &Client{
			hub:       h,
			store:     st,
			conn:      conn,
			code:      code,
			name:      name,
			fanout:    cfg.Fanout,
			keepAlive: keepAlive,
			logger:    log.With().Str("chat_id", code).Str("name", name).Logger(),
			send:      make(chan []byte, sendBufferSize),
		}
		client.join()
		go client.writePump()
		client.readPump()
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

// Send 实现 Session：非阻塞入队，缓冲区满或会话已关闭时返回 false。
func (c *Client) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close 实现 Session：断开连接，readPump 随即退出并执行 leave。
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) join() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := c.store.AdjustActiveConnections(ctx, c.code, 1); err != nil {
		c.storeFailed("connect", err)
	}
	notice, err := c.store.AppendMessage(ctx, models.JoinNotice(c.code, c.name))
	c.hub.Register(c.code, c)
	metrics.WsConnections.Inc()
	if err != nil {
		c.storeFailed("join notice", err)
		return
	}
	c.deliver(notice)
	c.logger.Info().Msg("joined")
}

// leave 在任何断开路径上都会执行；存储失败只记录日志。
func (c *Client) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	notice, noticeErr := c.store.AppendMessage(ctx, models.LeaveNotice(c.code, c.name))
	if noticeErr != nil {
		c.storeFailed("leave notice", noticeErr)
	}
	c.hub.Unregister(c.code, c)
	metrics.WsConnections.Dec()
	if err := c.store.AdjustActiveConnections(ctx, c.code, -1); err != nil {
		c.storeFailed("disconnect", err)
	}
	if noticeErr == nil && c.fanout == config.FanoutRoom {
		if b, err := encode(notice); err == nil {
			c.broadcast(b)
		}
	}
	c.closeSend()
	_ = c.conn.Close()
	c.logger.Info().Msg("left")
}

func (c *Client) handleInbound(content string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	msg, err := c.store.AppendMessage(ctx, models.NewMessage(c.code, c.name, content))
	if err != nil {
		c.storeFailed("append message", err)
		return
	}
	c.deliver(msg)
}

// deliver 按扇出模式投递：echo 只回给自己，room 广播给房间内所有会话。
func (c *Client) deliver(msg models.Message) {
	b, err := encode(msg)
	if err != nil {
		c.logger.Error().Err(err).Msg("encode outbound")
		return
	}
	if c.fanout == config.FanoutRoom {
		c.broadcast(b)
		return
	}
	if !c.Send(b) {
		metrics.WsDroppedTotal.Inc()
		c.logger.Warn().Msg("echo dropped: send buffer full")
	}
}

func (c *Client) broadcast(payload []byte) {
	delivered, dropped := c.hub.Broadcast(c.code, payload)
	if dropped > 0 {
		metrics.WsDroppedTotal.Add(float64(dropped))
		c.logger.Warn().Int("delivered", delivered).Int("dropped", dropped).Msg("broadcast dropped: send buffer full")
	}
}

func (c *Client) storeFailed(op string, err error) {
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	c.logger.Error().Err(err).Str("op", op).Msg("store")
}

func encode(msg models.Message) ([]byte, error) {
	return json.Marshal(OutboundMessage{Sender: msg.Sender, Content: msg.Content, Timestamp: msg.Timestamp})
}

func (c *Client) readPump() {
	defer c.leave()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.keepAlive))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.keepAlive))
	})
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Debug().Err(err).Msg("read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.keepAlive))
		if mt != websocket.TextMessage {
			continue
		}
		metrics.WsMessagesTotal.Inc()
		c.handleInbound(string(data))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.keepAlive * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
