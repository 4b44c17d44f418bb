// Package events fans household changes out to websocket subscribers.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types published by the API.
const (
	TaskCreated         = "task.created"
	TaskUpdated         = "task.updated"
	MemberAdded         = "member.added"
	ShoppingListSynced  = "shopping_list.synced"
	ShoppingItemUpdated = "shopping_list.item_updated"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// Event is the JSON message pushed to subscribers.
type Event struct {
	Type        string      `json:"type"`
	HouseholdID string      `json:"household_id"`
	WeekStart   string      `json:"week_start,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	At          time.Time   `json:"at"`
}

// Publisher is what the API needs from the hub.
type Publisher interface {
	Publish(ev Event)
}

// Hub tracks the open connections of every household.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	closed  bool
}

type client struct {
	hub         *Hub
	householdID string
	conn        *websocket.Conn
	send        chan []byte
	once        sync.Once
}

// NewHub creates a hub. checkOrigin may be nil to accept any origin.
func NewHub(logger *zap.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[string]map[*client]struct{}),
	}
}

// Serve upgrades the request and subscribes the connection to householdID.
// The caller must already have authorized the subscription.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, householdID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		hub:         h,
		householdID: householdID,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
	}
	if !h.register(c) {
		conn.Close()
		return nil
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// Publish delivers ev to every subscriber of its household. Slow subscribers
// whose buffer is full miss the event.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[ev.HouseholdID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket buffer full, dropping event",
				zap.String("household_id", ev.HouseholdID), zap.String("type", ev.Type))
		}
	}
}

// Subscribers reports how many connections follow householdID.
func (h *Hub) Subscribers(householdID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[householdID])
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.householdID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.householdID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.householdID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.householdID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// close stops the write pump, which then closes the connection.
func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// readPump discards client messages and watches for disconnects.
func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
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
