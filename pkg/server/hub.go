package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/metrics"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// pushMessage is the frame sent to subscribers after every re-analysis
type pushMessage struct {
	Type string `json:"type"`
	*core.Result
}

// client serializes writes to one connection
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(msg interface{}) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Hub keeps the connected websocket subscribers of one stream and fans
// messages out to them. A slow subscriber only delays itself.
type Hub struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*client]bool
	latest  interface{}
}

// NewHub creates an empty hub; name only tags its log lines
func NewHub(name string, logger *zap.Logger) *Hub {
	return &Hub{
		name:    name,
		logger:  logger.With(zap.String("stream", name)),
		clients: make(map[*client]bool),
	}
}

// Clients is the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends msg to every subscriber and remembers it for late joiners.
// Writes happen outside the hub lock. Failed connections are dropped.
func (h *Hub) Publish(msg interface{}) {
	h.mu.Lock()
	h.latest = msg
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		err := c.write(msg)
		c.mu.Unlock()
		if err != nil {
			h.logger.Debug("dropping websocket client", zap.Error(err))
			h.remove(c)
		}
	}
}

// Broadcast publishes a detection result. It has the core.UpdateHandler
// signature.
func (h *Hub) Broadcast(ctx context.Context, res *core.Result) error {
	h.Publish(pushMessage{Type: "runs", Result: res})
	return nil
}

// HandleWebSocket upgrades the request and keeps the connection registered
// until the peer goes away.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	cl := &client{conn: conn}

	// holding cl.mu until latest is written keeps a concurrent Publish
	// from overtaking it
	cl.mu.Lock()
	h.mu.Lock()
	h.clients[cl] = true
	latest := h.latest
	h.mu.Unlock()
	metrics.WebsocketClients.Inc()
	if latest != nil {
		err = cl.write(latest)
	}
	cl.mu.Unlock()
	if err != nil {
		h.remove(cl)
		return
	}

	// incoming frames are ignored; the loop only notices disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", zap.Error(err))
			}
			break
		}
	}
	h.remove(cl)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		c.mu.Unlock()
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	c.conn.Close()
	metrics.WebsocketClients.Dec()
}
