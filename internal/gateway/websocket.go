package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 5 * time.Second
	wsSendBuffer = 32
)

// WSFrame is what the websocket feed writes to clients.
type WSFrame struct {
	Kind      string            `json:"kind"` // "reply" or "broadcast"
	Message   *OutboundMessage  `json:"message,omitempty"`
	Broadcast *BroadcastMessage `json:"broadcast,omitempty"`
}

type wsInbound struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Content  string `json:"content"`
}

type wsConn struct {
	id   string
	conn *websocket.Conn
	out  chan *WSFrame
	once sync.Once
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.out)
	})
}

// WebSocketAdapter is a live feed of action prompts. Clients may also send
// text, which is passed to the handler with the connection ID as channel.
type WebSocketAdapter struct {
	upgrader websocket.Upgrader
	handler  MessageHandler
	conns    map[string]*wsConn
	closed   bool
	wg       sync.WaitGroup
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewWebSocketAdapter creates a websocket gateway adapter.
func NewWebSocketAdapter(logger *zap.Logger) *WebSocketAdapter {
	return &WebSocketAdapter{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:  make(map[string]*wsConn),
		logger: logger,
	}
}

func (a *WebSocketAdapter) Platform() string { return "websocket" }

func (a *WebSocketAdapter) Connect(_ context.Context) error { return nil }

func (a *WebSocketAdapter) OnMessage(h MessageHandler) { a.handler = h }

// Clients returns the number of open connections.
func (a *WebSocketAdapter) Clients() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.conns)
}

// ServeHTTP upgrades the request and serves the connection until the
// client goes away or the adapter is closed.
func (a *WebSocketAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsConn{id: uuid.New().String(), conn: conn, out: make(chan *WSFrame, wsSendBuffer)}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.conns[c.id] = c
	a.wg.Add(1)
	a.mu.Unlock()

	a.logger.Debug("websocket client connected", zap.String("conn", c.id))

	go a.writeLoop(c)
	a.readLoop(c)

	a.mu.Lock()
	delete(a.conns, c.id)
	a.mu.Unlock()
	c.close()
	a.logger.Debug("websocket client gone", zap.String("conn", c.id))
}

func (a *WebSocketAdapter) writeLoop(c *wsConn) {
	defer a.wg.Done()
	defer c.conn.Close()

	for f := range c.out {
		js, err := json.Marshal(f)
		if err != nil {
			a.logger.Warn("websocket frame marshal failed", zap.Error(err))
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, js); err != nil {
			a.logger.Debug("websocket write failed", zap.String("conn", c.id), zap.Error(err))
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
}

func (a *WebSocketAdapter) readLoop(c *wsConn) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil || in.Content == "" {
			in = wsInbound{Content: string(data)}
		}
		if a.handler == nil {
			continue
		}
		a.handler(&InboundMessage{
			Platform:  "websocket",
			ChannelID: c.id,
			UserID:    in.UserID,
			UserName:  in.UserName,
			Content:   in.Content,
			Timestamp: time.Now(),
		})
	}
}

func (a *WebSocketAdapter) enqueue(c *wsConn, f *WSFrame) bool {
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

// Send writes a reply to one connection.
func (a *WebSocketAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.conns[msg.ChannelID]
	if !ok {
		return fmt.Errorf("no websocket connection: %s", msg.ChannelID)
	}
	if !a.enqueue(c, &WSFrame{Kind: "reply", Message: msg}) {
		return fmt.Errorf("websocket %s buffer full", msg.ChannelID)
	}
	return nil
}

// Broadcast writes msg to every connection. Slow clients miss the frame.
func (a *WebSocketAdapter) Broadcast(_ context.Context, msg *BroadcastMessage) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f := &WSFrame{Kind: "broadcast", Broadcast: msg}
	for id, c := range a.conns {
		if !a.enqueue(c, f) {
			a.logger.Warn("websocket client blocked", zap.String("conn", id))
		}
	}
	return nil
}

// Close disconnects every client and waits for their writers to finish.
func (a *WebSocketAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	conns := make([]*wsConn, 0, len(a.conns))
	for _, c := range a.conns {
		conns = append(conns, c)
	}
	a.conns = make(map[string]*wsConn)
	a.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	a.wg.Wait()
	return nil
}
