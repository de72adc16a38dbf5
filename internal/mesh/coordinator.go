// Package mesh is the client half of roommesh: it joins a room through the
// relay, negotiates a direct connection with every other member and carries
// named application actions over those connections, falling back to the
// relay while a direct path is unavailable.
//
// All session state is owned by a single loop goroutine. Public operations,
// transport callbacks and timers hand closures to that loop through an
// unbounded queue, so none of them ever block on each other.
package mesh

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BioHazard786/roommesh/internal/protocol"
)

// Defaults for Options.
const (
	DefaultNegotiationTimeout     = 30 * time.Second
	DefaultMaxNegotiationAttempts = 3
	DefaultReconnectAttempts      = 3
	DefaultReconnectBackoff       = time.Second
	DefaultTombstoneSize          = 256
)

const dataChannelLabel = "roommesh"

// Options configures a Coordinator. Control and Peers are required.
type Options struct {
	// PeerID is the initial local peer id. Random when empty; Reset always
	// picks a new random one.
	PeerID string
	Name   string

	Control ControlPlane
	Peers   PeerConnector
	Clock   clock.Clock

	NegotiationTimeout     time.Duration
	MaxNegotiationAttempts int
	// ReconnectAttempts bounds redials after the relay connection fails.
	// Zero means DefaultReconnectAttempts, negative disables redialing.
	ReconnectAttempts int
	// ReconnectBackoff is multiplied by the attempt number.
	ReconnectBackoff time.Duration
	TombstoneSize    int

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.PeerID == "" {
		o.PeerID = uuid.NewString()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.NegotiationTimeout <= 0 {
		o.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if o.MaxNegotiationAttempts <= 0 {
		o.MaxNegotiationAttempts = DefaultMaxNegotiationAttempts
	}
	if o.ReconnectAttempts == 0 {
		o.ReconnectAttempts = DefaultReconnectAttempts
	} else if o.ReconnectAttempts < 0 {
		o.ReconnectAttempts = 0
	}
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = DefaultReconnectBackoff
	}
	if o.TombstoneSize <= 0 {
		o.TombstoneSize = DefaultTombstoneSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Coordinator runs one participant's membership of at most one room.
type Coordinator struct {
	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	loop     *queue
	dispatch *queue
	stopped  chan struct{}

	closeOnce sync.Once

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	current atomic.Pointer[Snapshot]
	updates chan Snapshot

	// Everything below is owned by the loop goroutine.
	closing  bool
	status   Status
	peerID   string
	roomCode string
	lastErr  string
	active   bool
	waiters  []chan error

	control     ControlConn
	gen         uint64
	joinID      string
	joined      bool
	attempts    int
	redialTimer *clock.Timer
	pending     map[string]string

	// roster is the relay's view of the room, kept apart from sessions so
	// peers without a direct connection still receive broadcasts.
	roster     map[string]string
	sessions   map[string]*session
	nextID     uint64
	tombstones *lru.Cache[string, struct{}]
}

// New starts a coordinator in the idle state.
func New(opts Options) (*Coordinator, error) {
	if opts.Control == nil {
		return nil, WrapError("new coordinator", ErrMissingOption, "Control")
	}
	if opts.Peers == nil {
		return nil, WrapError("new coordinator", ErrMissingOption, "Peers")
	}
	opts.setDefaults()

	tombstones, err := lru.New[string, struct{}](opts.TombstoneSize)
	if err != nil {
		return nil, NewError("new coordinator", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		opts:       opts,
		logger:     opts.Logger.With("component", "mesh"),
		ctx:        ctx,
		cancel:     cancel,
		loop:       newQueue(),
		dispatch:   newQueue(),
		stopped:    make(chan struct{}),
		handlers:   make(map[string]Handler),
		updates:    make(chan Snapshot, 1),
		status:     StatusIdle,
		peerID:     opts.PeerID,
		pending:    make(map[string]string),
		roster:     make(map[string]string),
		sessions:   make(map[string]*session),
		tombstones: tombstones,
	}
	c.publish()

	go c.run()
	go c.dispatchLoop()
	return c, nil
}

// Snapshot returns the latest published state.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.current.Load()
}

// Updates delivers the latest snapshot whenever it changes. Slow readers
// only ever see the newest value.
func (c *Coordinator) Updates() <-chan Snapshot {
	return c.updates
}

// PeerID is the local peer id.
func (c *Coordinator) PeerID() string {
	return c.Snapshot().PeerID
}

// Join enters roomCode and returns once the relay has acknowledged the
// membership. Direct connections to the other members are negotiated in
// the background. Joining the room already joined is a no-op.
func (c *Coordinator) Join(ctx context.Context, roomCode string) error {
	if roomCode == "" {
		return WrapError("join", ErrNotJoined, "empty room code")
	}
	reply := make(chan error, 1)
	if err := c.do(func() { c.join(roomCode, reply) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrClosed
	}
}

// Leave exits the current room and closes every session. Leaving twice, or
// without a room, is harmless.
func (c *Coordinator) Leave() error {
	return c.do(c.leave)
}

// Reset tears everything down and returns to idle with a fresh peer id.
func (c *Coordinator) Reset() error {
	return c.do(c.reset)
}

// Close resets the coordinator and stops its goroutines.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		_ = c.do(func() {
			c.reset()
			c.closing = true
		})
		<-c.stopped
		c.dispatch.close()
		c.cancel()
	})
	return nil
}

// do runs fn on the loop and waits for it.
func (c *Coordinator) do(fn func()) error {
	done := make(chan struct{})
	if !c.loop.push(func() {
		fn()
		close(done)
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrClosed
	}
}

// post hands fn to the loop without waiting.
func (c *Coordinator) post(fn func()) {
	c.loop.push(fn)
}

func (c *Coordinator) run() {
	defer close(c.stopped)
	for range c.loop.notify {
		items, _ := c.loop.drain()
		for _, fn := range items {
			fn()
			if c.closing {
				c.loop.close()
				return
			}
		}
	}
}

func (c *Coordinator) join(roomCode string, reply chan error) {
	if c.active {
		switch {
		case roomCode != c.roomCode:
			reply <- WrapError("join "+roomCode, ErrAlreadyJoined, c.roomCode)
		case c.status == StatusConnected:
			reply <- nil
		default:
			c.waiters = append(c.waiters, reply)
		}
		return
	}

	c.active = true
	c.roomCode = roomCode
	c.lastErr = ""
	c.attempts = 0
	c.status = StatusConnecting
	c.waiters = append(c.waiters, reply)
	c.publish()

	if c.control != nil {
		c.sendJoin()
		return
	}
	c.dial()
}

func (c *Coordinator) leave() {
	if !c.active && c.control == nil && len(c.sessions) == 0 {
		return
	}
	if c.control != nil && c.joined {
		msg := protocol.MustNew(protocol.TypeLeave, uuid.NewString(), protocol.LeaveRequest{
			RoomCode: c.roomCode,
			PeerID:   c.peerID,
		})
		if err := c.control.Send(msg); err != nil {
			c.logger.Debug("failed to send leave", "error", err)
		}
	}
	c.teardown(ErrLeft)
	if c.status != StatusIdle {
		c.status = StatusDisconnected
	}
	c.logger.Info("left room", "room", c.roomCode)
	c.publish()
}

func (c *Coordinator) reset() {
	c.teardown(ErrLeft)
	c.status = StatusIdle
	c.roomCode = ""
	c.lastErr = ""
	c.peerID = uuid.NewString()
	c.tombstones.Purge()
	c.publish()
}

// teardown closes every session and the relay connection. Pending joins
// fail with cause.
func (c *Coordinator) teardown(cause error) {
	for _, s := range c.sortedSessions() {
		c.removeSession(s)
	}
	if c.redialTimer != nil {
		c.redialTimer.Stop()
		c.redialTimer = nil
	}
	if c.control != nil {
		if err := c.control.Close(); err != nil {
			c.logger.Debug("close relay connection", "error", err)
		}
		c.control = nil
	}
	// Late events from the old connection carry the old generation.
	c.gen++
	c.active = false
	c.joined = false
	c.joinID = ""
	c.attempts = 0
	c.pending = make(map[string]string)
	c.roster = make(map[string]string)
	c.failWaiters(NewError("join", cause))
}

func (c *Coordinator) failWaiters(err error) {
	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}

// dial opens a relay connection in the background.
func (c *Coordinator) dial() {
	c.gen++
	gen := c.gen
	ctx := c.ctx
	go func() {
		conn, err := c.opts.Control.Dial(ctx)
		c.post(func() { c.dialed(gen, conn, err) })
	}()
}

func (c *Coordinator) dialed(gen uint64, conn ControlConn, err error) {
	if gen != c.gen || !c.active {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn("failed to reach relay", "error", err, "attempt", c.attempts+1)
		c.redial(err)
		return
	}

	c.control = conn
	go func() {
		for msg := range conn.Incoming() {
			c.post(func() { c.handleControl(gen, msg) })
		}
		c.post(func() { c.controlClosed(gen) })
	}()
	c.sendJoin()
}

// redial schedules another dial, or gives up once the attempts are spent.
func (c *Coordinator) redial(cause error) {
	c.status = StatusDisconnected
	c.attempts++
	if c.attempts > c.opts.ReconnectAttempts {
		err := WrapError("join "+c.roomCode, ErrRelayUnavailable, cause.Error())
		c.logger.Error("giving up on relay", "error", err)
		c.lastErr = err.Error()
		c.active = false
		c.attempts = 0
		c.failWaiters(err)
		c.publish()
		return
	}

	gen := c.gen
	delay := c.opts.ReconnectBackoff * time.Duration(c.attempts)
	c.redialTimer = c.opts.Clock.AfterFunc(delay, func() {
		c.post(func() {
			if gen != c.gen || !c.active {
				return
			}
			c.redialTimer = nil
			c.dial()
		})
	})
	c.publish()
}

func (c *Coordinator) sendJoin() {
	c.joinID = uuid.NewString()
	c.status = StatusConnecting
	msg := protocol.MustNew(protocol.TypeJoin, c.joinID, protocol.JoinRequest{
		RoomCode: c.roomCode,
		PeerID:   c.peerID,
		Name:     c.opts.Name,
	})
	if err := c.control.Send(msg); err != nil {
		c.logger.Warn("failed to send join", "error", err)
		c.control.Close()
		c.controlClosed(c.gen)
		return
	}
	c.publish()
}

// controlClosed handles the relay connection going away underneath us.
func (c *Coordinator) controlClosed(gen uint64) {
	if gen != c.gen || c.control == nil {
		return
	}
	c.logger.Warn("relay connection lost", "room", c.roomCode)
	c.control = nil
	c.gen++
	c.joined = false
	c.joinID = ""
	c.pending = make(map[string]string)
	c.roster = make(map[string]string)

	// The relay treats a dropped connection as a leave, so every other
	// member has already forgotten us.
	for _, s := range c.sortedSessions() {
		c.removeSession(s)
	}

	if !c.active {
		c.status = StatusDisconnected
		c.publish()
		return
	}
	c.lastErr = "relay connection lost"
	c.redial(ErrRelayUnavailable)
}

func (c *Coordinator) handleControl(gen uint64, msg *protocol.Message) {
	if gen != c.gen {
		return
	}
	switch msg.Type {
	case protocol.TypeAck:
		c.handleAck(msg)

	case protocol.TypePeerJoined:
		var ev protocol.PeerEvent
		if err := msg.Decode(&ev); err != nil || ev.PeerID == "" {
			c.logger.Debug("dropping malformed peer-joined", "error", err)
			return
		}
		c.peerJoined(ev.PeerID, ev.Name)

	case protocol.TypePeerLeft:
		var ev protocol.PeerEvent
		if err := msg.Decode(&ev); err != nil || ev.PeerID == "" {
			c.logger.Debug("dropping malformed peer-left", "error", err)
			return
		}
		c.peerLeft(ev.PeerID)

	case protocol.TypeSignal:
		var ev protocol.SignalEvent
		if err := msg.Decode(&ev); err != nil || ev.FromPeerID == "" {
			c.logger.Debug("dropping malformed signal", "error", err)
			return
		}
		c.handleSignal(ev.FromPeerID, ev.Signal)

	case protocol.TypeMessage:
		var ev protocol.MessageEvent
		if err := msg.Decode(&ev); err != nil {
			c.logger.Debug("dropping malformed message", "error", err)
			return
		}
		c.deliver(ev.FromPeerID, ev.Data, Relayed)

	case protocol.TypeError:
		var ev protocol.ErrorPayload
		_ = msg.Decode(&ev)
		c.logger.Warn("relay error", "error", ev.Error)
		c.lastErr = ev.Error
		c.publish()

	default:
		c.logger.Debug("dropping unknown control message", "type", msg.Type)
	}
}

func (c *Coordinator) handleAck(msg *protocol.Message) {
	var ack protocol.Ack
	if err := msg.Decode(&ack); err != nil {
		c.logger.Debug("dropping malformed ack", "error", err)
		return
	}

	if msg.ID != "" && msg.ID == c.joinID {
		c.joinID = ""
		if !ack.Success {
			err := WrapError("join "+c.roomCode, ErrJoinRejected, ack.Error)
			c.logger.Error("join rejected", "error", err)
			c.lastErr = err.Error()
			c.teardown(err)
			c.status = StatusDisconnected
			c.publish()
			return
		}
		c.joinAcked(ack.Members)
		return
	}

	target, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	if ok && !ack.Success {
		c.logger.Debug("relay could not deliver", "target", target, "error", ack.Error)
	}
}

// joinAcked makes us a member. We hold the member list, so we offer to
// every existing member.
func (c *Coordinator) joinAcked(members []protocol.Member) {
	c.joined = true
	c.status = StatusConnected
	c.attempts = 0
	c.lastErr = ""
	c.logger.Info("joined room", "room", c.roomCode, "peer", c.peerID, "members", len(members))

	c.roster = make(map[string]string, len(members))
	for _, m := range members {
		if m.PeerID == c.peerID {
			continue
		}
		c.roster[m.PeerID] = m.Name
		c.tombstones.Remove(m.PeerID)
		if _, ok := c.sessions[m.PeerID]; ok {
			continue
		}
		c.startInitiator(m.PeerID, m.Name, 0)
	}

	for _, w := range c.waiters {
		w <- nil
	}
	c.waiters = nil
	c.publish()
}

// peerJoined tracks a newcomer. The newcomer offers; we answer. The
// negotiation timeout starts with the offer, not here.
func (c *Coordinator) peerJoined(peerID, name string) {
	if peerID == c.peerID {
		return
	}
	c.roster[peerID] = name
	c.tombstones.Remove(peerID)
	if s, ok := c.sessions[peerID]; ok {
		s.name = name
		c.publish()
		return
	}
	c.newSession(peerID, name, false)
	c.logger.Info("peer joined", "remote", peerID, "name", name)
	c.publish()
}

func (c *Coordinator) peerLeft(peerID string) {
	delete(c.roster, peerID)
	c.tombstones.Add(peerID, struct{}{})
	if s, ok := c.sessions[peerID]; ok {
		c.removeSession(s)
	}
	c.logger.Info("peer left", "remote", peerID)
	c.publish()
}

func (c *Coordinator) sendSignal(target string, sig protocol.Signal) {
	if c.control == nil || !c.joined {
		c.logger.Debug("dropping signal, not connected", "target", target, "type", sig.Type)
		return
	}
	id := uuid.NewString()
	c.pending[id] = target
	msg := protocol.MustNew(protocol.TypeSignal, id, protocol.SignalRequest{
		RoomCode:     c.roomCode,
		TargetPeerID: target,
		Signal:       sig,
	})
	if err := c.control.Send(msg); err != nil {
		delete(c.pending, id)
		c.logger.Warn("failed to send signal", "target", target, "type", sig.Type, "error", err)
	}
}

// members returns every known remote peer id, with or without a session,
// in order.
func (c *Coordinator) members() []string {
	out := make([]string, 0, len(c.roster))
	for id := range c.roster {
		out = append(out, id)
	}
	for id := range c.sessions {
		if _, ok := c.roster[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// sortedSessions returns sessions ordered by peer id.
func (c *Coordinator) sortedSessions() []*session {
	out := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].peerID < out[j].peerID })
	return out
}
