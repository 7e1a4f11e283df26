package websocket

import (
	"context"
	"time"

	"novelsync-be/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // full section text rides along with patches
)

// Peer is the view of a connection the collaboration services work with.
type Peer interface {
	ConnectionID() string
	UserID() string
	UserName() string
	Email() string
	ProjectID() string
	Bind(projectID string)
}

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID   string
	UserName string
	Email    string
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	connID   string
	identity Identity
	logger   logger.ILogger

	// guarded by Hub.mu
	projectID string
}

func NewClient(hub *Hub, conn *websocket.Conn, identity Identity) *Client {
	connID := uuid.NewString()
	return &Client{
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		connID:   connID,
		identity: identity,
		logger:   hub.logger.With(map[string]interface{}{"connection_id": connID, "user_id": identity.UserID}),
	}
}

func (c *Client) ConnectionID() string { return c.connID }
func (c *Client) UserID() string       { return c.identity.UserID }
func (c *Client) UserName() string     { return c.identity.UserName }
func (c *Client) Email() string        { return c.identity.Email }

func (c *Client) ProjectID() string {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	return c.projectID
}

// Bind moves the client into a project room; an empty ID leaves it.
func (c *Client) Bind(projectID string) {
	c.Hub.bind(c, projectID)
}

// readPump pumps messages from the websocket connection to the handler.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.logger.Info("Client", "readPump exiting", nil)
		if c.Hub.handler != nil {
			c.Hub.handler.HandleDisconnect(ctx, c)
		}
		c.Hub.leave(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Client", "Unexpected close", map[string]interface{}{"error": err.Error()})
			}
			break
		}
		if c.Hub.handler != nil {
			c.Hub.handler.HandleMessage(ctx, c, message)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection. Each
// frame carries exactly one envelope.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Client", "Ping failed", map[string]interface{}{"error": err.Error()})
				return
			}
		}
	}
}
