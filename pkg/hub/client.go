package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Connection timing. Dashboard clients never send data, so the read side
// only ever sees pongs and close frames.
const (
	writeTimeout  = 10 * time.Second
	idleTimeout   = 60 * time.Second
	pingInterval  = idleTimeout * 9 / 10
	maxInboundMsg = 4 * 1024
	sendQueueSize = 64
)

// Client is one dashboard websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient registers a connection with hub. If the hub has already
// stopped, the client's queue is closed so Run returns promptly.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendQueueSize),
	}
	select {
	case hub.register <- c:
	case <-hub.done:
		close(c.send)
	}
	return c
}

// Run serves the connection until either side closes it.
func (c *Client) Run() {
	go c.writeLoop()
	c.drain()
}

// drain reads until the peer goes away, extending the idle deadline on
// every pong.
func (c *Client) drain() {
	defer c.leave()

	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	c.conn.SetReadLimit(maxInboundMsg)
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// leave unregisters the client and closes the connection.
func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

// writeLoop owns all writes: queued messages and keepalive pings.
func (c *Client) writeLoop() {
	keepalive := time.NewTicker(pingInterval)
	defer keepalive.Stop()
	defer c.conn.Close()

	for {
		var err error
		select {
		case msg, open := <-c.send:
			if !open {
				c.write(websocket.CloseMessage, nil)
				return
			}
			err = c.write(msg.frameType(), msg.Data)
		case <-keepalive.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(frameType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(frameType, data)
}

// frameType maps a message to its websocket frame type.
func (m Message) frameType() int {
	if m.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
