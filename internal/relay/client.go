package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/roommesh/internal/protocol"
)

// ClientOptions tunes one websocket connection.
type ClientOptions struct {
	// WriteWait is the time allowed to write a message to the peer.
	WriteWait time.Duration
	// PongWait is the time allowed to read the next pong message from the peer.
	PongWait time.Duration
	// PingPeriod must be less than PongWait.
	PingPeriod time.Duration
	// ReadLimit is the maximum message size allowed from the peer.
	ReadLimit int64
	// SendBuffer is the number of outbound messages queued before the
	// connection is considered too slow and dropped.
	SendBuffer int
}

// DefaultClientOptions returns the production connection settings.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
		ReadLimit:  64 * 1024, // enough for SDP bodies
		SendBuffer: 256,
	}
}

// Client wraps a single websocket connection (one participant).
type Client struct {
	conn   *websocket.Conn
	fwd    *Forwarder
	opts   ClientOptions
	logger *slog.Logger

	// send is drained by WritePump. It is closed exactly once, by close.
	send   chan *protocol.Message
	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn. Start ReadPump and WritePump to run it.
func NewClient(conn *websocket.Conn, fwd *Forwarder, opts ClientOptions, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultClientOptions().SendBuffer
	}
	return &Client{
		conn:   conn,
		fwd:    fwd,
		opts:   opts,
		logger: logger.With("component", "relay.client", "remote", conn.RemoteAddr().String()),
		send:   make(chan *protocol.Message, opts.SendBuffer),
	}
}

// Send queues msg for WritePump. A client whose buffer is full is closed:
// the relay never blocks a room on one slow reader.
func (c *Client) Send(msg *protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("send buffer full, dropping connection")
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) String() string {
	return c.conn.RemoteAddr().String()
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump pumps messages from the websocket connection to the forwarder.
// There is at most one reader per connection. When it returns the client's
// membership is released as an implicit leave.
func (c *Client) ReadPump() {
	defer func() {
		c.fwd.Disconnect(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}
		c.fwd.Handle(c, &msg)
	}
}

// WritePump pumps queued messages to the websocket connection and keeps it
// alive with pings. There is at most one writer per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
