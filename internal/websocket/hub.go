package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Message types
const (
	MessageTypeScore   = "score"
	MessageTypeEndGame = "end_game"
	MessageTypeAwarded = "awarded"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"
	MessageTypeError   = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active clients and routes nudges to the
// sessions of a player
type Hub struct {
	// Connected clients by player ID
	clients map[string]map[*Client]bool

	// Number of connected clients
	total int

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Players whose views should be recomputed now
	nudge chan string

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		nudge:      make(chan string, 256),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			playerID := client.player.ID
			if _, ok := h.clients[playerID]; !ok {
				h.clients[playerID] = make(map[*Client]bool)
			}
			h.clients[playerID][client] = true
			h.total++
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id, "player_id", playerID)

		case client := <-h.unregister:
			h.mu.Lock()
			playerID := client.player.ID
			if clients, ok := h.clients[playerID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.clients, playerID)
					}
					h.total--
					close(client.send)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id, "player_id", playerID)

		case playerID := <-h.nudge:
			h.mu.RLock()
			for client := range h.clients[playerID] {
				client.session.Nudge()
			}
			h.mu.RUnlock()
		}
	}
}

// Stop stops the hub and closes every connection
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for client := range clients {
			client.conn.Close()
		}
	}
}

// Nudge asks every session of the player to recompute its view now
func (h *Hub) Nudge(playerID string) {
	select {
	case h.nudge <- playerID:
	default:
		h.logger.Warn("nudge channel full, dropping", "player_id", playerID)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// GetPlayerConnections returns the number of connections of a player
func (h *Hub) GetPlayerConnections(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[playerID])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}
