// Package signaling is the client side of the relay's websocket control
// plane.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/roommesh/internal/dns"
	"github.com/BioHazard786/roommesh/internal/mesh"
	"github.com/BioHazard786/roommesh/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	// ErrClosed is returned by Send once the connection is gone.
	ErrClosed = errors.New("signaling connection closed")
	// ErrBackpressure is returned by Send when the write queue is full.
	ErrBackpressure = errors.New("signaling send queue full")
)

var _ mesh.ControlPlane = (*Dialer)(nil)

// Dialer opens relay connections. It implements mesh.ControlPlane.
type Dialer struct {
	// URL is the relay's websocket endpoint, e.g. wss://relay.example/ws.
	URL              string
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Dial connects to the relay and starts the connection's pumps.
func (d *Dialer) Dial(ctx context.Context) (mesh.ControlConn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Proxy:            websocket.DefaultDialer.Proxy,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			resolved, err := dns.ResolveHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("dns lookup failed: %w", err)
			}
			var nd net.Dialer
			return nd.DialContext(ctx, network, resolved)
		},
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := newClient(conn, logger.With("component", "signaling", "relay", u.Host))
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Client is one websocket connection to the relay.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	incoming chan *protocol.Message
	outgoing chan *protocol.Message
	done     chan struct{}
	written  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		conn:     conn,
		logger:   logger,
		incoming: make(chan *protocol.Message, sendBuffer),
		outgoing: make(chan *protocol.Message, sendBuffer),
		done:     make(chan struct{}),
		written:  make(chan struct{}),
	}
}

// Send queues msg without blocking.
func (c *Client) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.outgoing <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

// Incoming delivers relay messages in order. It is closed when the
// connection drops or is closed.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close flushes queued messages, sends a close frame and tears the
// connection down. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	select {
	case <-c.written:
	case <-time.After(writeWait):
		c.conn.Close()
	}
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("relay read failed", "error", err)
			}
			return
		}
		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.written)
	}()

	for {
		select {
		case msg := <-c.outgoing:
			if err := c.write(msg); err != nil {
				c.logger.Warn("relay write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			for {
				select {
				case msg := <-c.outgoing:
					if err := c.write(msg); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(msg *protocol.Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
