package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/pixeldraw/pixelhub/internal/collab"
	"github.com/pixeldraw/pixelhub/internal/metrics"
	"github.com/pixeldraw/pixelhub/internal/policy"
	"github.com/pixeldraw/pixelhub/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

const (
	defaultMaxMessageSize = 4096
	defaultSendBuffer     = 256
)

// Hub is the part of collab.Hub a client talks to.
type Hub interface {
	Dispatch(id string, msg *protocol.Message) error
	Reject(id string, err error) error
	Unregister(id string)
}

// Options tunes one client connection.
type Options struct {
	MaxMessageSize int64
	SendBuffer     int
	Policy         collab.PolicySource
	Metrics        *metrics.Metrics
}

// Client is a WebSocket connection registered with the hub. It implements
// collab.Peer.
type Client struct {
	hub     Hub
	conn    *websocket.Conn
	id      string
	send    chan []byte
	policy  collab.PolicySource
	metrics *metrics.Metrics
	limiter *rate.Limiter

	maxMessageSize int64
	closeOnce      sync.Once
}

// NewClient creates a client for conn with the connection id.
func NewClient(hub Hub, conn *websocket.Conn, id string, opts Options) *Client {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Policy == nil {
		opts.Policy = policy.NewStore(nil)
	}

	pol := opts.Policy.Current()
	return &Client{
		hub:            hub,
		conn:           conn,
		id:             id,
		send:           make(chan []byte, opts.SendBuffer),
		policy:         opts.Policy,
		metrics:        opts.Metrics,
		limiter:        rate.NewLimiter(rate.Limit(pol.Rate.EventsPerSecond), pol.Rate.Burst),
		maxMessageSize: opts.MaxMessageSize,
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send queues data for the write pump. It never blocks.
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadPump reads frames until the connection fails, then unregisters the
// client. Frames are handed to the hub in arrival order.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "conn_id", c.id, "error", err)
			}
			return
		}

		if ctx.Err() != nil {
			return
		}

		if err := c.handleMessage(message); err != nil {
			if !errors.Is(err, collab.ErrHubClosed) {
				slog.Error("failed to hand frame to hub", "conn_id", c.id, "error", err)
			}
			return
		}
	}
}

// WritePump writes queued frames and keepalive pings.
func (c *Client) WritePump() {
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

func (c *Client) handleMessage(data []byte) error {
	if !c.allow() {
		c.metrics.Dropped(metrics.DropRateLimited)
		slog.Debug("rate limited, dropping frame", "conn_id", c.id)
		return nil
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		c.metrics.Dropped(metrics.DropInvalid)
		slog.Debug("invalid frame", "conn_id", c.id, "error", err)
		return c.hub.Reject(c.id, err)
	}

	return c.hub.Dispatch(c.id, msg)
}

// allow applies the current policy's rate limit, picking up reloads.
func (c *Client) allow() bool {
	r := c.policy.Current().Rate
	if lim := rate.Limit(r.EventsPerSecond); c.limiter.Limit() != lim {
		c.limiter.SetLimit(lim)
	}
	if c.limiter.Burst() != r.Burst {
		c.limiter.SetBurst(r.Burst)
	}
	return c.limiter.Allow()
}
