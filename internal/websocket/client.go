package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
	"github.com/leaderboard-live/internal/session"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var errSendBufferFull = errors.New("client send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Service is what a connection needs from the leaderboard
type Service interface {
	session.ViewSource
	Register(ctx context.Context, identity domain.Identity) (domain.Player, bool, error)
	AwardScore(ctx context.Context, award domain.ScoreAward) (int64, error)
}

// Identifier resolves the identity of an upgrade request
type Identifier interface {
	Identify(r *http.Request) (domain.Identity, error)
}

// Client represents a WebSocket client connection
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	player  domain.Player
	service Service
	session *session.Session
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *slog.Logger
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type   string `json:"type"`
	Amount *int64 `json:"amount,omitempty"`
	GameID string `json:"game_id,omitempty"`
}

// NewClient creates a new WebSocket client for a registered player
func NewClient(hub *Hub, conn *websocket.Conn, player domain.Player, svc Service, cfg *config.SessionConfig, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:      uuid.New().String(),
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		player:  player,
		service: svc,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.logger = logger.With("client_id", c.id, "player_id", player.ID)
	c.session = session.New(player.ID, svc, c, cfg.PollInterval, c.logger)
	return c
}

// Push queues a view for delivery
func (c *Client) Push(view domain.View) error {
	msg := Message{
		Type:      MessageTypeScore,
		Data:      view,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// runSession runs the polling loop until the connection goes away
func (c *Client) runSession() {
	defer close(c.done)
	if err := c.session.Run(c.ctx); err != nil {
		c.logger.Error("session failed, closing connection", "error", err)
		c.conn.Close()
	}
}

// readPump pumps messages from the WebSocket connection to the service
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		<-c.done
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.logger.Warn("invalid message format", "error", err)
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// handleMessage processes incoming client messages
func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeEndGame:
		amount := int64(1)
		if msg.Amount != nil {
			amount = *msg.Amount
		}
		score, err := c.service.AwardScore(c.ctx, domain.ScoreAward{
			PlayerID:  c.player.ID,
			Amount:    amount,
			GameID:    msg.GameID,
			Source:    domain.AwardSourceSession,
			Timestamp: time.Now(),
		})
		if err != nil {
			c.logger.Error("failed to award score", "amount", amount, "error", err)
			if errors.Is(err, domain.ErrInvalidScore) {
				c.sendError(err.Error())
			} else {
				c.sendError("score could not be awarded")
			}
			return
		}
		c.session.Nudge()
		c.sendMessage(MessageTypeAwarded, map[string]int64{"money": score})

	case MessageTypePing:
		c.sendMessage(MessageTypePong, nil)

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
	}
}

// writePump pumps queued messages to the WebSocket connection
func (c *Client) writePump() {
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Views are full snapshots, so every message is its own frame.
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

// sendMessage queues a control message, dropping it if the buffer is full
func (c *Client) sendMessage(msgType string, data interface{}) {
	msg := Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
	payload, _ := json.Marshal(msg)
	select {
	case c.send <- payload:
	default:
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(errMsg string) {
	c.sendMessage(MessageTypeError, map[string]string{"error": errMsg})
}

// ServeWs identifies and registers the player, then upgrades the
// connection and starts its session
func ServeWs(hub *Hub, svc Service, ident Identifier, cfg *config.SessionConfig, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	identity, err := ident.Identify(r)
	if err != nil {
		logger.Warn("rejected websocket connection", "error", err)
		http.Error(w, domain.ErrInvalidIdentity.Error(), http.StatusUnauthorized)
		return
	}

	player, _, err := svc.Register(r.Context(), identity)
	if err != nil {
		logger.Error("failed to register player", "player_id", identity.ID, "error", err)
		http.Error(w, domain.ErrInternalError.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, player, svc, cfg, logger)
	hub.Register(client)

	go client.writePump()
	go client.runSession()
	go client.readPump()

	client.logger.Debug("new websocket connection")
}
