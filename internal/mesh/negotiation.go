package mesh

import (
	"time"

	"github.com/BioHazard786/roommesh/internal/protocol"
)

func (c *Coordinator) newSession(peerID, name string, initiator bool) *session {
	c.nextID++
	s := newSession(c.nextID, peerID, name, initiator, c.logger)
	c.sessions[peerID] = s
	return s
}

// live returns the session for peerID only if it is still the instance
// identified by id. Events for replaced or removed sessions are dropped.
func (c *Coordinator) live(peerID string, id uint64) *session {
	s, ok := c.sessions[peerID]
	if !ok || s.id != id {
		return nil
	}
	return s
}

// startInitiator opens a connection to peerID and sends our offer.
func (c *Coordinator) startInitiator(peerID, name string, attempt int) {
	s := c.newSession(peerID, name, true)
	s.attempt = attempt

	conn, err := c.opts.Peers.NewConnection(peerID)
	if err != nil {
		c.failSession(s, NewPeerError("create connection", peerID, err))
		return
	}
	c.attach(s, conn)

	dc, err := conn.CreateDataChannel(dataChannelLabel)
	if err != nil {
		c.failSession(s, NewPeerError("create data channel", peerID, err))
		return
	}
	c.attachChannel(s, dc)

	sdp, err := conn.CreateOffer()
	if err != nil {
		c.failSession(s, NewPeerError("create offer", peerID, err))
		return
	}
	s.transition(StateNegotiating)
	c.armTimeout(s)
	s.logger.Debug("sending offer", "attempt", attempt+1)
	c.sendSignal(peerID, protocol.Signal{Type: protocol.SignalOffer, SDP: sdp})
}

// attach wires transport callbacks into the loop, tagged with the session
// instance so late callbacks cannot touch a successor.
func (c *Coordinator) attach(s *session, conn PeerConnection) {
	s.conn = conn
	peerID, id := s.peerID, s.id

	conn.OnCandidate(func(cand protocol.Candidate) {
		c.post(func() {
			if c.live(peerID, id) == nil {
				return
			}
			c.sendSignal(peerID, protocol.Signal{Type: protocol.SignalCandidate, Candidate: &cand})
		})
	})
	conn.OnStateChange(func(state TransportState) {
		c.post(func() {
			if s := c.live(peerID, id); s != nil {
				c.transportState(s, state)
			}
		})
	})
	conn.OnDataChannel(func(dc DataChannel) {
		c.post(func() {
			s := c.live(peerID, id)
			if s == nil || s.dc != nil {
				dc.Close()
				return
			}
			c.attachChannel(s, dc)
		})
	})
}

func (c *Coordinator) attachChannel(s *session, dc DataChannel) {
	s.dc = dc
	s.channel = ChannelOpening
	peerID, id := s.peerID, s.id

	dc.OnOpen(func() {
		c.post(func() {
			s := c.live(peerID, id)
			if s == nil || s.dc != dc {
				return
			}
			s.channel = ChannelOpen
			s.stopTimer()
			s.transition(StateConnected)
			s.logger.Info("direct channel open")
			c.publish()
		})
	})
	dc.OnClose(func() {
		c.post(func() {
			s := c.live(peerID, id)
			if s == nil || s.dc != dc || s.channel == ChannelClosed {
				return
			}
			s.channel = ChannelClosed
			s.logger.Info("direct channel closed, relaying")
			c.publish()
		})
	})
	dc.OnMessage(func(frame []byte) {
		c.deliver(peerID, frame, Direct)
	})
}

func (c *Coordinator) transportState(s *session, state TransportState) {
	switch state {
	case TransportConnected:
		if s.transition(StateConnected) {
			s.stopTimer()
			c.publish()
		}
	case TransportDisconnected:
		// ICE may recover on its own; failure is reported separately.
		s.logger.Debug("transport disconnected")
	case TransportFailed:
		c.failSession(s, NewPeerError("connect", s.peerID, ErrConnectionFailed))
	case TransportClosed:
		if !s.state.Terminal() {
			s.logger.Info("transport closed")
			c.removeSession(s)
			c.publish()
		}
	}
}

func (c *Coordinator) handleSignal(from string, sig protocol.Signal) {
	if c.tombstones.Contains(from) {
		c.logger.Debug("dropping signal from departed peer", "remote", from, "type", sig.Type)
		return
	}
	switch sig.Type {
	case protocol.SignalOffer:
		c.handleOffer(from, sig.SDP)
	case protocol.SignalAnswer:
		c.handleAnswer(from, sig.SDP)
	case protocol.SignalCandidate:
		s, ok := c.sessions[from]
		if !ok || sig.Candidate == nil {
			c.logger.Debug("dropping candidate", "remote", from)
			return
		}
		s.addRemoteCandidate(*sig.Candidate)
	default:
		c.logger.Debug("dropping unknown signal", "remote", from, "type", sig.Type)
	}
}

// handleOffer answers an offer, creating the session if the peer is new.
func (c *Coordinator) handleOffer(from, sdp string) {
	name := c.roster[from]
	s, ok := c.sessions[from]
	if ok {
		name = s.name
		switch {
		case s.initiator && !s.state.Terminal() && c.peerID < from:
			// Both sides offered. The lower peer id keeps the initiator
			// role; the other side yields and answers.
			s.logger.Debug("ignoring competing offer")
			return
		case s.conn != nil || s.initiator:
			// A fresh offer replaces whatever attempt was in progress.
			c.removeSession(s)
			ok = false
		}
	}

	if !ok {
		s = c.newSession(from, name, false)
	}

	conn, err := c.opts.Peers.NewConnection(from)
	if err != nil {
		c.failSession(s, NewPeerError("create connection", from, err))
		return
	}
	c.attach(s, conn)

	answer, err := conn.AcceptOffer(sdp)
	if err != nil {
		c.failSession(s, NewPeerError("accept offer", from, err))
		return
	}
	s.remoteDescriptionSet()
	s.transition(StateNegotiating)
	c.armTimeout(s)
	s.logger.Debug("sending answer")
	c.sendSignal(from, protocol.Signal{Type: protocol.SignalAnswer, SDP: answer})
	c.publish()
}

func (c *Coordinator) handleAnswer(from, sdp string) {
	s, ok := c.sessions[from]
	if !ok || !s.initiator || s.conn == nil || s.remoteSet {
		c.logger.Debug("dropping unexpected answer", "remote", from)
		return
	}
	if err := s.conn.AcceptAnswer(sdp); err != nil {
		c.failSession(s, NewPeerError("accept answer", from, err))
		return
	}
	s.remoteDescriptionSet()
}

// armTimeout fails the session if it is not connected in time.
func (c *Coordinator) armTimeout(s *session) {
	s.stopTimer()
	peerID, id := s.peerID, s.id
	s.timer = c.opts.Clock.AfterFunc(c.opts.NegotiationTimeout, func() {
		c.post(func() {
			s := c.live(peerID, id)
			if s == nil || s.state == StateConnected {
				return
			}
			c.failSession(s, NewPeerError("negotiate", peerID, ErrTimeout))
		})
	})
}

// failSession removes s. The initiator schedules a fresh attempt while
// attempts remain; the responder waits for the next offer.
func (c *Coordinator) failSession(s *session, err error) {
	s.logger.Warn("session failed", "error", err, "attempt", s.attempt+1)
	s.transition(StateFailed)
	c.removeSession(s)
	defer c.publish()

	if !s.initiator || s.attempt+1 >= c.opts.MaxNegotiationAttempts {
		return
	}

	peerID, name, next, gen := s.peerID, s.name, s.attempt+1, c.gen
	c.opts.Clock.AfterFunc(c.opts.ReconnectBackoff*time.Duration(next), func() {
		c.post(func() {
			if gen != c.gen || !c.joined || c.tombstones.Contains(peerID) {
				return
			}
			if _, exists := c.sessions[peerID]; exists {
				return
			}
			c.startInitiator(peerID, name, next)
			c.publish()
		})
	})
}

func (c *Coordinator) removeSession(s *session) {
	s.close()
	if cur, ok := c.sessions[s.peerID]; ok && cur == s {
		delete(c.sessions, s.peerID)
	}
}
