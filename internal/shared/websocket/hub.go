package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/cristianortiz/liveAuction/internal/shared/pubsub"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	sendBuffer    = 16
	inboundBuffer = 256
)

// Hub keeps the registry of connected clients grouped by topic. Event fan-out is done by
// each client's subscription; the hub only tracks who is connected and shuts them down.
type Hub struct {
	clients map[string]map[*Client]struct{}
	total   int

	register   chan *Client
	unregister chan *Client

	// InboundMessages is consumed by module handlers (e.g. the auction handler).
	InboundMessages chan *ClientMessage

	// overflow answers a message that InboundMessages had no room for.
	overflow func(c *Client, data []byte)
}

// Client is one websocket connection subscribed to one topic.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	// Buffered channel of direct replies to this client.
	Send chan []byte
	// Sub delivers the topic's broadcast messages, rendered by Render before writing.
	Sub    *pubsub.Subscription
	Render func(pubsub.Message) []byte
	Topic  string
	ID     string
	// UserID is the identity the connection was opened with, uuid.Nil when anonymous.
	UserID uuid.UUID

	done      chan struct{}
	closeOnce sync.Once
}

// ClientMessage wraps a client and the raw message it sent.
type ClientMessage struct {
	Client *Client
	Data   []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		InboundMessages: make(chan *ClientMessage, inboundBuffer),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, id, topic string, sub *pubsub.Subscription, render func(pubsub.Message) []byte) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		Sub:    sub,
		Render: render,
		Topic:  topic,
		ID:     id,
		done:   make(chan struct{}),
	}
}

// SetOverflowHandler sets the reply to messages refused because InboundMessages is full.
// It must be called before clients connect.
func (h *Hub) SetOverflowHandler(fn func(c *Client, data []byte)) {
	h.overflow = fn
}

// Run owns the registry until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	log.Info("Websocket Hub started")
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.clients {
				for client := range clients {
					client.close()
				}
			}
			log.Info("WebSocket Hub shutting down, clients disconnected", zap.Int("total_clients", h.total))
			h.clients = make(map[string]map[*Client]struct{})
			h.total = 0
			return

		case client := <-h.register:
			if _, ok := h.clients[client.Topic]; !ok {
				h.clients[client.Topic] = make(map[*Client]struct{})
			}
			h.clients[client.Topic][client] = struct{}{}
			h.total++
			log.Info("Client registered",
				zap.String("clientID", client.ID),
				zap.String("topic", client.Topic),
				zap.Int("total_clients", h.total),
			)

		case client := <-h.unregister:
			clients, ok := h.clients[client.Topic]
			if !ok {
				continue
			}
			if _, ok := clients[client]; !ok {
				continue
			}
			delete(clients, client)
			h.total--
			client.close()
			log.Info("Client unregistered",
				zap.String("clientID", client.ID),
				zap.String("topic", client.Topic),
				zap.Int("total_clients", h.total),
			)
			if len(clients) == 0 {
				delete(h.clients, client.Topic)
			}
		}
	}
}

// RegisterClient blocks until the hub accepts the client or ctx is done.
func (h *Hub) RegisterClient(ctx context.Context, client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		client.close()
		return false
	}
}

// UnregisterClient removes a client; the client is closed even when the hub is gone.
func (h *Hub) UnregisterClient(ctx context.Context, client *Client) {
	select {
	case h.unregister <- client:
	case <-ctx.Done():
		client.close()
	}
}

// Deliver queues a direct reply. It never blocks and reports whether the reply was queued.
func (c *Client) Deliver(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		log.Warn("Client send buffer full, reply dropped",
			zap.String("clientID", c.ID),
			zap.String("topic", c.Topic),
		)
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Sub.Close()
	})
}

// ReadPump forwards the client's messages to the hub's InboundMessages channel. It must
// run in the connection handler's goroutine: the connection is released when it returns.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.UnregisterClient(ctx, c)
		log.Info("ReadPump stopped for client",
			zap.String("clientID", c.ID),
			zap.String("topic", c.Topic),
		)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("WebSocket read error",
					zap.String("clientID", c.ID),
					zap.String("topic", c.Topic),
					zap.Error(err),
				)
			} else {
				log.Info("WebSocket connection closed",
					zap.String("clientID", c.ID),
					zap.String("topic", c.Topic),
					zap.Error(err),
				)
			}
			return
		}

		select {
		case c.Hub.InboundMessages <- &ClientMessage{Client: c, Data: message}:
		case <-ctx.Done():
			return
		default:
			log.Warn("Hub InboundMessages channel is full, message refused",
				zap.String("clientID", c.ID),
				zap.String("topic", c.Topic),
			)
			if c.Hub.overflow != nil {
				c.Hub.overflow(c, message)
			}
		}
	}
}

// WritePump is the connection's only writer: direct replies, topic messages and pings.
// It closes the connection when it returns, which also ends ReadPump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
		log.Info("WritePump stopped for client",
			zap.String("clientID", c.ID),
			zap.String("topic", c.Topic),
		)
	}()

	for {
		select {
		case <-c.done:
			c.writeClose(websocket.CloseNormalClosure, "")
			return

		case message := <-c.Send:
			if err := c.write(message); err != nil {
				return
			}

		case msg, ok := <-c.Sub.C():
			if !ok {
				// dropped for falling behind or the topic was closed; the client resumes from its last sequence
				c.writeClose(websocket.CloseTryAgainLater, "subscription ended, reconnect")
				return
			}
			if err := c.write(c.Render(msg)); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("Failed to write ping message to client",
					zap.String("clientID", c.ID),
					zap.Error(err),
				)
				return
			}
		}
	}
}

func (c *Client) write(data []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug("Failed to write message to client",
			zap.String("clientID", c.ID),
			zap.String("topic", c.Topic),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (c *Client) writeClose(code int, text string) {
	err := c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	if err != nil {
		log.Debug("Failed to send close control message",
			zap.String("clientID", c.ID),
			zap.Error(err),
		)
	}
}
