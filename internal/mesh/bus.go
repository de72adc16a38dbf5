package mesh

import (
	"github.com/google/uuid"

	"github.com/BioHazard786/roommesh/internal/protocol"
)

// Handler receives inbound messages for one action. Handlers run on the
// coordinator's dispatcher goroutine, one at a time, and may call senders.
type Handler func(msg Message)

// Sender sends payload under its action to the given peers, or to every
// tracked peer when none is given. Each peer gets the message over its
// direct channel when open, relayed otherwise. It returns once the message
// has been handed to a transport; delivery is not confirmed.
type Sender func(payload any, targets ...string) error

// Register installs h for action, replacing any previous handler, and
// returns the action's sender. A nil handler only unregisters.
func (c *Coordinator) Register(action string, h Handler) Sender {
	c.handlersMu.Lock()
	if h == nil {
		delete(c.handlers, action)
	} else {
		c.handlers[action] = h
	}
	c.handlersMu.Unlock()

	return func(payload any, targets ...string) error {
		frame, err := EncodeFrame(action, payload)
		if err != nil {
			return err
		}
		var routeErr error
		if err := c.do(func() { routeErr = c.route(action, frame, targets) }); err != nil {
			return err
		}
		return routeErr
	}
}

// route picks a path per target. A broadcast goes to every room member and
// is not atomic: each one is sent directly or relayed independently.
func (c *Coordinator) route(action string, frame []byte, targets []string) error {
	if !c.active && !c.joined {
		return NewError("send "+action, ErrNotJoined)
	}
	if len(targets) == 0 {
		for _, id := range c.members() {
			c.sendTo(id, frame)
		}
		return nil
	}
	for _, t := range targets {
		if t == c.peerID {
			continue
		}
		c.sendTo(t, frame)
	}
	return nil
}

func (c *Coordinator) sendTo(peerID string, frame []byte) Path {
	if s, ok := c.sessions[peerID]; ok && s.channel == ChannelOpen && s.dc != nil {
		err := s.dc.Send(frame)
		if err == nil {
			return Direct
		}
		s.logger.Debug("direct send failed, relaying", "error", err)
	}
	c.relay(peerID, frame)
	return Relayed
}

func (c *Coordinator) relay(peerID string, frame []byte) {
	if c.control == nil || !c.joined {
		c.logger.Debug("dropping message, relay unavailable", "target", peerID)
		return
	}
	id := uuid.NewString()
	c.pending[id] = peerID
	msg := protocol.MustNew(protocol.TypeMessage, id, protocol.MessageRequest{
		RoomCode:     c.roomCode,
		TargetPeerID: peerID,
		Data:         frame,
	})
	if err := c.control.Send(msg); err != nil {
		delete(c.pending, id)
		c.logger.Warn("failed to relay message", "target", peerID, "error", err)
	}
}

// deliver decodes an inbound frame and queues it for its handler. It runs
// on the loop for relayed frames and on transport goroutines for direct
// ones. Malformed frames and unknown actions are dropped.
func (c *Coordinator) deliver(from string, frame []byte, via Path) {
	env, err := DecodeFrame(frame)
	if err != nil {
		c.logger.Debug("dropping frame", "from", from, "via", via, "error", err)
		return
	}

	c.handlersMu.RLock()
	h := c.handlers[env.Action]
	c.handlersMu.RUnlock()
	if h == nil {
		c.logger.Debug("dropping unknown action", "from", from, "action", env.Action)
		return
	}

	msg := Message{From: from, Action: env.Action, Data: env.Data, Via: via}
	c.dispatch.push(func() { h(msg) })
}

func (c *Coordinator) dispatchLoop() {
	for range c.dispatch.notify {
		items, closed := c.dispatch.drain()
		for _, fn := range items {
			c.safeCall(fn)
		}
		if closed {
			return
		}
	}
}

func (c *Coordinator) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", "panic", r)
		}
	}()
	fn()
}
