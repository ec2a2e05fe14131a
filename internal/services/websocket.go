package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBufferSize = 256
)

// Server to client event types
const (
	EventNotification = "notification"
	EventNewMessage   = "new_message"
	EventMatchUpdated = "match_updated"
	EventUserTyping   = "user_typing"
	EventJoinedChat   = "joined_chat"
	EventLeftChat     = "left_chat"
	EventError        = "error"
	EventPong         = "pong"
)

// Client to server message types
const (
	MessageJoinChat    = "join_chat"
	MessageLeaveChat   = "leave_chat"
	MessageSendMessage = "send_message"
	MessageTyping      = "typing"
	MessagePing        = "ping"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Connections are authenticated by token, not by cookie.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is the envelope written to clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Inbound is the envelope read from clients.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InboundHandler processes client messages the hub does not handle itself.
type InboundHandler func(c *Client, msg Inbound)

// Client represents one websocket connection of a user.
type Client struct {
	UserID uint
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	rooms map[uint]struct{} // guarded by Hub.mu
}

// Delivery says who an event is for. Exactly one of UserID or ChatID is set.
type Delivery struct {
	UserID   uint            `json:"userId,omitempty"`
	ChatID   uint            `json:"chatId,omitempty"`
	ExceptID uint            `json:"exceptId,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Relay fans deliveries out to every API instance.
type Relay interface {
	Publish(ctx context.Context, d Delivery) error
}

// RelaySubscriber is a Relay that also feeds deliveries published by any
// instance back to this one. Subscribe calls ready once the subscription is
// live and blocks until it ends.
type RelaySubscriber interface {
	Relay
	Subscribe(ctx context.Context, ready func(), deliver func(Delivery)) error
}

const maxRelayBackoff = 30 * time.Second

// Hub maintains the set of active clients and their chat rooms.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*Client]struct{}
	rooms   map[uint]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	relay   Relay
	inbound InboundHandler
	metrics *metrics.Metrics
}

// NewHub creates a new WebSocket hub
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]struct{}),
		rooms:      make(map[uint]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// SetRelay routes every delivery through r. A nil r delivers locally.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

func (h *Hub) currentRelay() Relay {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.relay
}

// RunRelay keeps r subscribed until ctx is done. Deliveries go through r
// only while its subscription is live and stay local otherwise.
func (h *Hub) RunRelay(ctx context.Context, r RelaySubscriber, backoff time.Duration) {
	wait := backoff
	for {
		err := r.Subscribe(ctx, func() {
			h.SetRelay(r)
			wait = backoff
		}, h.DeliverLocal)
		h.SetRelay(nil)
		if ctx.Err() != nil {
			return
		}
		logger.Log.Warn("Event relay unavailable, delivering locally",
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxRelayBackoff {
			wait = maxRelayBackoff
		}
	}
}

func (h *Hub) SetInboundHandler(fn InboundHandler) {
	h.inbound = fn
}

// Run processes registrations until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]struct{})
			}
			h.clients[client.UserID][client] = struct{}{}
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.WebsocketConnections.Inc()
			}
			logger.Log.Debug("Client connected", logger.WithUserID(client.UserID))
			// pumps start only once the client is indexed
			if client.Conn != nil {
				go client.writePump()
				go client.readPump()
			}

		case client := <-h.unregister:
			h.remove(client)
			logger.Log.Debug("Client disconnected", logger.WithUserID(client.UserID))

		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		}
	}
}

// remove drops the client from every index and closes its send channel once.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	for chatID := range client.rooms {
		h.leaveLocked(client, chatID)
	}
	close(client.Send)
	if h.metrics != nil {
		h.metrics.WebsocketConnections.Dec()
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	var all []*Client
	for _, conns := range h.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.remove(c)
	}
}

// Join adds the client to a chat room.
func (h *Hub) Join(client *Client, chatID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[chatID] == nil {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][client] = struct{}{}
	client.rooms[chatID] = struct{}{}
}

// Leave removes the client from a chat room.
func (h *Hub) Leave(client *Client, chatID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, chatID)
}

func (h *Hub) leaveLocked(client *Client, chatID uint) {
	if members, ok := h.rooms[chatID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, chatID)
		}
	}
	delete(client.rooms, chatID)
}

// LeaveAll removes every connection of userID from a room, used when a user
// leaves a chat over REST.
func (h *Hub) LeaveAll(userID, chatID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		h.leaveLocked(c, chatID)
	}
}

// IsOnline reports whether userID has a connection on this instance.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// InRoom reports whether any connection of userID on this instance is in the room.
func (h *Hub) InRoom(userID, chatID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[chatID] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// GetConnectedClients returns the number of connected clients
func (h *Hub) GetConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// SendToUser delivers an event to every connection of a user.
func (h *Hub) SendToUser(userID uint, eventType string, data interface{}) {
	h.dispatch(Delivery{UserID: userID}, eventType, data)
}

// SendToRoom delivers an event to every connection joined to a chat,
// skipping connections of exceptUserID (0 for none).
func (h *Hub) SendToRoom(chatID uint, eventType string, data interface{}, exceptUserID uint) {
	h.dispatch(Delivery{ChatID: chatID, ExceptID: exceptUserID}, eventType, data)
}

func (h *Hub) dispatch(d Delivery, eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		logger.Log.Error("Failed to marshal websocket event", zap.String("type", eventType), zap.Error(err))
		return
	}
	d.Payload = payload
	if h.metrics != nil {
		h.metrics.WebsocketEventsTotal.WithLabelValues(eventType, "out").Inc()
	}

	if relay := h.currentRelay(); relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := relay.Publish(ctx, d)
		if err == nil {
			return
		}
		logger.Log.Warn("Relay publish failed, delivering locally", zap.Error(err))
	}
	h.DeliverLocal(d)
}

// DeliverLocal writes a delivery to the matching connections on this
// instance. Clients whose send buffer is full are disconnected.
func (h *Hub) DeliverLocal(d Delivery) {
	var targets []*Client

	h.mu.RLock()
	if d.ChatID != 0 {
		for c := range h.rooms[d.ChatID] {
			if d.ExceptID != 0 && c.UserID == d.ExceptID {
				continue
			}
			targets = append(targets, c)
		}
	} else {
		for c := range h.clients[d.UserID] {
			targets = append(targets, c)
		}
	}

	var slow []*Client
	for _, c := range targets {
		select {
		case c.Send <- d.Payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.Log.Warn("Dropping slow websocket client", logger.WithUserID(c.UserID))
		h.remove(c)
	}
}

// SendEvent writes an event to this connection only.
func (c *Client) SendEvent(eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return
	}
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if _, ok := c.Hub.clients[c.UserID][c]; !ok {
		return
	}
	select {
	case c.Send <- payload:
	default:
	}
}

// SendError reports a problem with a client message.
func (c *Client) SendError(message string) {
	c.SendEvent(EventError, map[string]string{"message": message})
}

// ServeWS upgrades the request and hands the connection to Run, which
// starts its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
		Hub:    h,
		rooms:  make(map[uint]struct{}),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("WebSocket error", logger.WithUserID(c.UserID), zap.Error(err))
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.SendError("invalid message format")
			continue
		}
		if c.Hub.metrics != nil {
			c.Hub.metrics.WebsocketEventsTotal.WithLabelValues(msg.Type, "in").Inc()
		}

		switch msg.Type {
		case MessagePing:
			c.SendEvent(EventPong, nil)
		case MessageLeaveChat:
			var body struct {
				ChatID uint `json:"chatId"`
			}
			if err := json.Unmarshal(msg.Data, &body); err != nil || body.ChatID == 0 {
				c.SendError("chatId is required")
				continue
			}
			c.Hub.Leave(c, body.ChatID)
			c.SendEvent(EventLeftChat, body)
		default:
			if c.Hub.inbound == nil {
				c.SendError("unknown message type")
				continue
			}
			c.Hub.inbound(c, msg)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection and
// keeps it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Log.Debug("WebSocket write error", logger.WithUserID(c.UserID), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
