package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"
)

type ClientConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	RateLimit      int // inbound events per second
	SendQueueSize  int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 2 * c.PingInterval
	}
	if c.WriteDeadline <= 0 {
		c.WriteDeadline = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	return c
}

// Client represents a single websocket connection of an authenticated user.
type Client struct {
	id      string
	userID  string
	ws      *websocket.Conn
	hub     *Hub
	cfg     ClientConfig
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(id, userID string, conn *websocket.Conn, hub *Hub, cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		id:      id,
		userID:  userID,
		ws:      conn,
		hub:     hub,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		send:    make(chan []byte, cfg.SendQueueSize),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// enqueue queues data without blocking. It returns false when the queue is
// full; a closed client silently drops data.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

type dispatcher interface {
	Dispatch(ctx context.Context, c *Client, data []byte)
}

// readPump reads frames and hands them to d one at a time, in arrival order.
func (c *Client) readPump(ctx context.Context, d dispatcher) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		if !c.limiter.Allow() {
			c.sendError("Rate limit exceeded")
			continue
		}
		d.Dispatch(ctx, c, data)
	}
}

// writePump writes queued frames and pings the peer. Presence is refreshed
// on every ping.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteDeadline))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteDeadline))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.hub.Touch(c)
		}
	}
}
