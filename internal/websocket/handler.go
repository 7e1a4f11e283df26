package websocket

import (
	"context"

	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection and runs its pumps. It returns when the
// peer disconnects.
func ServeWs(ctx context.Context, hub *Hub, c *websocket.Conn, identity Identity) {
	client := NewClient(hub, c, identity)
	if !client.Hub.join(client) {
		c.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump(ctx) // Run readPump in current goroutine (handler)
}
