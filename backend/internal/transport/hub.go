package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"concierge/backend/internal/agent"
	"concierge/backend/internal/orchestrator"
	"concierge/backend/internal/state"
	"concierge/backend/pkg/errors"
	"concierge/backend/pkg/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 32
)

// inbound is what a connected client sends us
type inbound struct {
	Message string `json:"message"`
	Agent   string `json:"agent,omitempty"` // explicit agent override
}

// envelope wraps every payload pushed to a client
type envelope struct {
	Type       string          `json:"type"` // "message" or "status"
	Content    string          `json:"content,omitempty"`
	AgentUsed  string          `json:"agent_used,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Proactive  bool            `json:"proactive,omitempty"`
	Status     *state.Snapshot `json:"status,omitempty"`
}

// Client is one connected WebSocket session
type Client struct {
	userID state.UserID
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	once   sync.Once
}

// Hub tracks connected clients and implements the orchestrator's
// Transport contract: push delivery keyed by user ID.
type Hub struct {
	mu      sync.RWMutex
	clients map[state.UserID]*Client
	orch    *orchestrator.Orchestrator
	logger  *zap.Logger
}

// NewHub creates a hub bound to the orchestrator
func NewHub(orch *orchestrator.Orchestrator) *Hub {
	return &Hub{
		clients: make(map[state.UserID]*Client),
		orch:    orch,
		logger:  logger.Get(),
	}
}

// Deliver pushes a message tuple to the user's socket
func (h *Hub) Deliver(userID state.UserID, d orchestrator.Delivery) error {
	return h.push(userID, envelope{
		Type:       "message",
		Content:    d.Content,
		AgentUsed:  d.AgentUsed.String(),
		Confidence: d.Confidence,
		Proactive:  d.Proactive,
	})
}

// PushStatus pushes a read-only state snapshot to the user's socket
func (h *Hub) PushStatus(userID state.UserID, snap state.Snapshot) error {
	return h.push(userID, envelope{Type: "status", Status: &snap})
}

func (h *Hub) push(userID state.UserID, env envelope) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return errors.NewDeliveryFailed(string(userID), nil)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return errors.NewDeliveryFailed(string(userID), err)
	}

	select {
	case client.send <- payload:
		return nil
	default:
		// Slow consumer; drop the connection rather than block the engine
		h.logger.Warn("Client send buffer full, closing", zap.String("user_id", string(userID)))
		client.close()
		return errors.NewDeliveryFailed(string(userID), nil)
	}
}

// Attach registers a new connection, starts its pumps, and tells the
// orchestrator the user is here.
func (h *Hub) Attach(userID state.UserID, conn *websocket.Conn) {
	client := &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
	}

	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		old.close()
	}
	h.clients[userID] = client
	h.mu.Unlock()

	h.orch.OnConnect(userID)

	go client.writePump()
	go client.readPump()
}

// detach removes the client and tears down the user's session
func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.userID]
	if ok && current == client {
		delete(h.clients, client.userID)
	}
	h.mu.Unlock()

	if ok && current == client {
		h.orch.OnDisconnect(client.userID)
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// readPump consumes inbound messages in receipt order and routes each
// through the orchestrator. Runs until the socket closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		_ = c.conn.Close()
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Message == "" {
			continue
		}

		result, err := c.hub.orch.OnMessage(context.Background(), c.userID, in.Message, nil, agent.Kind(in.Agent))
		if err != nil {
			c.hub.logger.Error("Message handling failed",
				zap.String("user_id", string(c.userID)),
				zap.Error(err),
			)
			continue
		}

		_ = c.hub.Deliver(c.userID, orchestrator.Delivery{
			Content:    result.Content,
			AgentUsed:  result.AgentUsed,
			Confidence: result.Confidence,
		})

		for _, action := range result.ProactiveActions {
			c.hub.orch.DispatchAction(c.userID, action)
		}
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
