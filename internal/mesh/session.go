package mesh

import (
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/BioHazard786/roommesh/internal/protocol"
)

// SessionState is the negotiation state of one peer session.
type SessionState int

const (
	StateNew SessionState = iota
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether no further transition except to closed exists.
func (s SessionState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// ChannelState tracks the session's direct data channel.
type ChannelState int

const (
	ChannelAbsent ChannelState = iota
	ChannelOpening
	ChannelOpen
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelAbsent:
		return "absent"
	case ChannelOpening:
		return "opening"
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "closed"
	}
	return "unknown"
}

var transitions = map[SessionState][]SessionState{
	StateNew:         {StateNegotiating, StateConnected, StateFailed, StateClosed},
	StateNegotiating: {StateConnected, StateFailed, StateClosed},
	StateConnected:   {StateFailed, StateClosed},
	StateFailed:      {StateClosed},
}

// session is one direct-connection attempt to one remote peer. It is owned
// by the coordinator loop and never touched from other goroutines.
type session struct {
	id        uint64
	peerID    string
	name      string
	initiator bool
	attempt   int

	state   SessionState
	channel ChannelState
	conn    PeerConnection
	dc      DataChannel

	// Remote candidates wait here until the remote description is applied.
	remoteSet bool
	pending   []protocol.Candidate

	timer  *clock.Timer
	logger *slog.Logger
}

func newSession(id uint64, peerID, name string, initiator bool, logger *slog.Logger) *session {
	role := "responder"
	if initiator {
		role = "initiator"
	}
	return &session{
		id:        id,
		peerID:    peerID,
		name:      name,
		initiator: initiator,
		logger:    logger.With("remote", peerID, "role", role, "session", id),
	}
}

// transition moves to next if the FSM allows it.
func (s *session) transition(next SessionState) bool {
	if s.state == next {
		return true
	}
	for _, allowed := range transitions[s.state] {
		if allowed == next {
			s.logger.Debug("session state", "from", s.state, "to", next)
			s.state = next
			return true
		}
	}
	s.logger.Debug("ignored session transition", "from", s.state, "to", next)
	return false
}

// addRemoteCandidate applies c, or buffers it until the remote description
// is set. Failures to apply a candidate are logged and tolerated.
func (s *session) addRemoteCandidate(c protocol.Candidate) {
	if s.conn == nil || !s.remoteSet {
		s.pending = append(s.pending, c)
		return
	}
	if err := s.conn.AddCandidate(c); err != nil {
		s.logger.Warn("failed to add remote candidate", "error", err)
	}
}

// remoteDescriptionSet flushes buffered candidates in arrival order.
func (s *session) remoteDescriptionSet() {
	s.remoteSet = true
	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		s.addRemoteCandidate(c)
	}
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// close releases the channel and connection. Safe to call twice.
func (s *session) close() {
	s.stopTimer()
	if s.dc != nil {
		if err := s.dc.Close(); err != nil {
			s.logger.Debug("close data channel", "error", err)
		}
		s.dc = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("close connection", "error", err)
		}
		s.conn = nil
	}
	if s.channel != ChannelAbsent {
		s.channel = ChannelClosed
	}
	s.transition(StateClosed)
}

func (s *session) String() string {
	return fmt.Sprintf("%s[%d %s/%s]", s.peerID, s.id, s.state, s.channel)
}
