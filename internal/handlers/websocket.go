package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/gorilla/websocket"

	"luckydraw/internal/middleware"
	"luckydraw/internal/models"
	"luckydraw/internal/services"
)

const (
	MessageCelebration = "CELEBRATION"

	writeWait = 5 * time.Second
)

var _ services.Broadcaster = (*WebSocketHub)(nil)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type     string      `json:"type"`
	TenantID string      `json:"-"`
	Data     interface{} `json:"data"`
}

// Client is one websocket connection subscribed to a tenant's lottery.
type Client struct {
	TenantID string
	Conn     *websocket.Conn
}

// WebSocketHub fans celebration events out to the browsers of a tenant.
// It implements services.Broadcaster. All writes to connections happen
// on the hub goroutine.
type WebSocketHub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	closeOnce  sync.Once
}

// NewWebSocketHub creates a hub and starts its event loop.
func NewWebSocketHub() *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
		done:       make(chan struct{}),
	}
	go hub.run()
	return hub
}

// Close stops the event loop and closes all connections.
func (hub *WebSocketHub) Close() {
	hub.closeOnce.Do(func() { close(hub.done) })
}

// ClientCount returns the number of connections for a tenant.
func (hub *WebSocketHub) ClientCount(tenantID string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients[tenantID])
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.mu.Lock()
			if hub.clients[client.TenantID] == nil {
				hub.clients[client.TenantID] = make(map[*Client]struct{})
			}
			hub.clients[client.TenantID][client] = struct{}{}
			hub.mu.Unlock()
			logger.Infof("Client registered for tenant %s", client.TenantID)

		case client := <-hub.unregister:
			hub.remove(client)

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)

		case <-hub.done:
			hub.mu.Lock()
			for _, set := range hub.clients {
				for client := range set {
					client.Conn.Close()
				}
			}
			hub.clients = make(map[string]map[*Client]struct{})
			hub.mu.Unlock()
			return
		}
	}
}

func (hub *WebSocketHub) remove(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	set, ok := hub.clients[client.TenantID]
	if !ok {
		return
	}
	if _, ok := set[client]; ok {
		delete(set, client)
		client.Conn.Close()
		logger.Infof("Client unregistered for tenant %s", client.TenantID)
	}
	if len(set) == 0 {
		delete(hub.clients, client.TenantID)
	}
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	hub.mu.RLock()
	targets := make([]*Client, 0, len(hub.clients[message.TenantID]))
	for client := range hub.clients[message.TenantID] {
		targets = append(targets, client)
	}
	hub.mu.RUnlock()

	for _, client := range targets {
		client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.Conn.WriteJSON(message); err != nil {
			logger.Warningf("Dropping websocket client for tenant %s: %v", client.TenantID, err)
			hub.remove(client)
		}
	}
}

// BroadcastCelebration queues a celebration for every browser of the tenant.
// Events are dropped rather than blocking the draw when the queue is full.
func (hub *WebSocketHub) BroadcastCelebration(tenantID string, tier models.PrizeTier, record models.WinnerRecord) {
	msg := &Message{
		Type:     MessageCelebration,
		TenantID: tenantID,
		Data: gin.H{
			"level": tier.Level,
			"name":  tier.Name,
			"icon":  tier.Icon,
			"time":  record.Time,
		},
	}

	select {
	case hub.broadcast <- msg:
	case <-hub.done:
	default:
		logger.Warningf("Celebration queue full, dropping event for tenant %s", tenantID)
	}
}

// HandleWebSocket upgrades the request and keeps the connection until the
// browser goes away.
func (h *HTTPHandler) HandleWebSocket(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	client := &Client{TenantID: tenantID, Conn: conn}
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
	}()

	for {
		// Inbound messages carry nothing; reading only detects the close.
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warningf("WebSocket error: %v", err)
			}
			return
		}
	}
}
