package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection and blocks until the peer goes away.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID, ownerID string) {
	client := &Client{Hub: hub, Conn: c, SessionID: sessionID, OwnerID: ownerID, Send: make(chan []byte, 256)}
	if !client.Hub.Register(client) {
		c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
