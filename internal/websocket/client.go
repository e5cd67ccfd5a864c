package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	// maxDropped is how many messages a client may miss before it is
	// disconnected and left to reconnect and refetch.
	maxDropped = 32
)

// Client is one dashboard or citizen-app connection.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	send    chan []byte
	rooms   []string
	dropped atomic.Int32
	kick    sync.Once
}

func NewClient(hub *Hub, conn *ws.Conn, rooms []string) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		rooms: rooms,
	}
}

// Run serves the connection until the peer goes away or ctx ends. Clients
// only listen, so incoming frames are discarded.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx = c.conn.CloseRead(ctx)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
		return err
	}
	c.dropped.Store(0)
	return nil
}

// missed records a message the client had no room for and reports whether
// the client has now fallen too far behind.
func (c *Client) missed() bool {
	return c.dropped.Add(1) >= maxDropped
}

// disconnect closes a lagging client once. Close blocks on the handshake, so
// it runs off the publisher's goroutine.
func (c *Client) disconnect() {
	c.kick.Do(func() {
		go c.conn.Close(ws.StatusPolicyViolation, "client too slow")
	})
}
