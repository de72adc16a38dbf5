package relay

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/BioHazard786/roommesh/internal/protocol"
)

// DefaultMaxNameLength bounds display names carried in join requests.
const DefaultMaxNameLength = 64

// Options configures a Forwarder.
type Options struct {
	Logger        *slog.Logger
	Metrics       *Metrics
	MaxNameLength int
}

type binding struct {
	room   string
	peerID string
}

// Forwarder is the relay's signal forwarder. It mutates the Registry on
// join/leave/disconnect and routes signal and message events between
// members without interpreting them.
//
// Delivery is at most once: a forward to a missing or saturated target is
// reported to the caller and never retried.
type Forwarder struct {
	registry *Registry
	validate *validator.Validate
	metrics  *Metrics
	logger   *slog.Logger
	maxName  int

	// bindings indexes connections to the membership they hold. It is not
	// room state and is only touched with no room lock held, or after it.
	mu       sync.Mutex
	bindings map[Conn]binding
}

// NewForwarder creates a forwarder over registry.
func NewForwarder(registry *Registry, opts Options) *Forwarder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxName := opts.MaxNameLength
	if maxName <= 0 {
		maxName = DefaultMaxNameLength
	}
	return &Forwarder{
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  opts.Metrics,
		logger:   logger.With("component", "relay"),
		maxName:  maxName,
		bindings: make(map[Conn]binding),
	}
}

// Registry returns the registry the forwarder mutates.
func (f *Forwarder) Registry() *Registry {
	return f.registry
}

// Handle processes one inbound control-plane message from c.
func (f *Forwarder) Handle(c Conn, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeJoin:
		var req protocol.JoinRequest
		if !f.decode(c, msg, &req) {
			return
		}
		f.join(req.RoomCode, req.PeerID, req.Name, c, func(members []protocol.Member) {
			f.ack(c, msg.ID, protocol.Ack{Success: true, Members: members})
		})

	case protocol.TypeLeave:
		var req protocol.LeaveRequest
		if !f.decode(c, msg, &req) {
			return
		}
		if b, ok := f.bindingOf(c); !ok || b.room != req.RoomCode || b.peerID != req.PeerID {
			f.ack(c, msg.ID, protocol.Ack{Success: false, Error: "not a member of this room"})
			return
		}
		removed := f.leave(req.RoomCode, req.PeerID, c)
		f.ack(c, msg.ID, protocol.Ack{Success: removed})

	case protocol.TypeSignal:
		var req protocol.SignalRequest
		if !f.decode(c, msg, &req) {
			return
		}
		from, ok := f.sender(c, req.RoomCode)
		if !ok {
			f.ack(c, msg.ID, protocol.Ack{Success: false, Error: "not a member of this room"})
			return
		}
		delivered := f.ForwardSignal(req.RoomCode, from, req.TargetPeerID, req.Signal)
		f.ack(c, msg.ID, deliveryAck(delivered))

	case protocol.TypeMessage:
		var req protocol.MessageRequest
		if !f.decode(c, msg, &req) {
			return
		}
		from, ok := f.sender(c, req.RoomCode)
		if !ok {
			f.ack(c, msg.ID, protocol.Ack{Success: false, Error: "not a member of this room"})
			return
		}
		delivered := f.ForwardMessage(req.RoomCode, from, req.TargetPeerID, req.Data)
		f.ack(c, msg.ID, deliveryAck(delivered))

	default:
		f.logger.Warn("unknown message type", "type", msg.Type, "conn", c.String())
		c.Send(protocol.MustNew(protocol.TypeError, msg.ID, protocol.ErrorPayload{Error: "unknown message type"}))
	}
}

// Join adds a member and returns the members that were already present.
// Every existing member is told about the newcomer.
func (f *Forwarder) Join(roomCode, peerID, name string, c Conn) []protocol.Member {
	return f.join(roomCode, peerID, name, c, nil)
}

func (f *Forwarder) join(roomCode, peerID, name string, c Conn, acked func([]protocol.Member)) []protocol.Member {
	name = truncateName(name, f.maxName)

	// A connection holds at most one membership.
	if b, ok := f.bindingOf(c); ok && (b.room != roomCode || b.peerID != peerID) {
		f.leave(b.room, b.peerID, c)
	}

	member := &Member{PeerID: peerID, Name: name, Conn: c}
	joined := protocol.PeerEvent{PeerID: peerID, Name: name}
	var existing []protocol.Member
	var replaced *Member

	f.registry.Join(roomCode, member, func(res JoinResult) {
		existing = make([]protocol.Member, 0, len(res.Existing))
		for _, m := range res.Existing {
			existing = append(existing, m.Public())
		}

		if res.Rejoined {
			if acked != nil {
				acked(existing)
			}
			return
		}

		if res.Replaced != nil {
			replaced = res.Replaced
			left := protocol.MustNew(protocol.TypePeerLeft, "", protocol.PeerEvent{PeerID: replaced.PeerID, Name: replaced.Name})
			for _, m := range res.Existing {
				m.Conn.Send(left)
			}
			replaced.Conn.Send(protocol.MustNew(protocol.TypeError, "", protocol.ErrorPayload{Error: "replaced by a newer connection"}))
		}

		notice := protocol.MustNew(protocol.TypePeerJoined, "", joined)
		for _, m := range res.Existing {
			m.Conn.Send(notice)
		}
		if acked != nil {
			acked(existing)
		}

		if res.Created {
			f.metrics.roomCreated()
		}
		if res.Replaced == nil {
			f.metrics.memberAdded()
		}
	})

	f.mu.Lock()
	if replaced != nil {
		if b, ok := f.bindings[replaced.Conn]; ok && b.room == roomCode && b.peerID == peerID {
			delete(f.bindings, replaced.Conn)
		}
	}
	f.bindings[c] = binding{room: roomCode, peerID: peerID}
	f.mu.Unlock()

	f.logger.Info("peer joined", "room", roomCode, "peer", peerID, "existing", len(existing), "replaced", replaced != nil)
	return existing
}

// Leave removes peerID from roomCode and notifies the remaining members.
// Leaving twice is harmless: the second call reports false and notifies nobody.
func (f *Forwarder) Leave(roomCode, peerID string) bool {
	return f.leave(roomCode, peerID, nil)
}

func (f *Forwarder) leave(roomCode, peerID string, c Conn) bool {
	var holder Conn
	removed := f.registry.Leave(roomCode, peerID, c, func(left *Member, remaining []*Member) {
		holder = left.Conn
		notice := protocol.MustNew(protocol.TypePeerLeft, "", protocol.PeerEvent{PeerID: left.PeerID, Name: left.Name})
		for _, m := range remaining {
			m.Conn.Send(notice)
		}
		f.metrics.memberRemoved()
		if len(remaining) == 0 {
			f.metrics.roomDeleted()
		}
	})
	if !removed {
		return false
	}

	f.mu.Lock()
	if b, ok := f.bindings[holder]; ok && b.room == roomCode && b.peerID == peerID {
		delete(f.bindings, holder)
	}
	f.mu.Unlock()

	f.logger.Info("peer left", "room", roomCode, "peer", peerID)
	return true
}

// ForwardSignal delivers signal from fromPeerID to targetPeerID. It reports
// false when either peer is not in the room or the target cannot accept it.
func (f *Forwarder) ForwardSignal(roomCode, fromPeerID, targetPeerID string, signal protocol.Signal) bool {
	delivered := false
	f.registry.Room(roomCode, func(room *Room) {
		if _, ok := room.Member(fromPeerID); !ok {
			return
		}
		target, ok := room.Member(targetPeerID)
		if !ok || targetPeerID == fromPeerID {
			return
		}
		delivered = target.Conn.Send(protocol.MustNew(protocol.TypeSignal, "", protocol.SignalEvent{
			FromPeerID: fromPeerID,
			Signal:     signal,
		}))
	})

	f.metrics.forward("signal", delivered)
	if !delivered {
		f.logger.Debug("signal not delivered", "room", roomCode, "from", fromPeerID, "to", targetPeerID)
	}
	return delivered
}

// ForwardMessage delivers an opaque application frame. An empty
// targetPeerID broadcasts to every other member; a broadcast succeeds as
// long as the sender is a member.
func (f *Forwarder) ForwardMessage(roomCode, fromPeerID, targetPeerID string, data []byte) bool {
	delivered := false
	f.registry.Room(roomCode, func(room *Room) {
		if _, ok := room.Member(fromPeerID); !ok {
			return
		}
		msg := protocol.MustNew(protocol.TypeMessage, "", protocol.MessageEvent{FromPeerID: fromPeerID, Data: data})

		if targetPeerID == "" {
			for _, m := range room.Others(fromPeerID) {
				m.Conn.Send(msg)
			}
			delivered = true
			return
		}

		target, ok := room.Member(targetPeerID)
		if !ok || targetPeerID == fromPeerID {
			return
		}
		delivered = target.Conn.Send(msg)
	})

	f.metrics.forward("message", delivered)
	if !delivered {
		f.logger.Debug("message not delivered", "room", roomCode, "from", fromPeerID, "to", targetPeerID)
	}
	return delivered
}

// Disconnect is an implicit leave for whatever membership c holds.
func (f *Forwarder) Disconnect(c Conn) {
	b, ok := f.bindingOf(c)
	if !ok {
		return
	}
	f.leave(b.room, b.peerID, c)

	f.mu.Lock()
	delete(f.bindings, c)
	f.mu.Unlock()
}

func (f *Forwarder) bindingOf(c Conn) (binding, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bindings[c]
	return b, ok
}

// sender resolves the peer id c speaks for in roomCode. Peers cannot forge
// the origin of what they send.
func (f *Forwarder) sender(c Conn, roomCode string) (string, bool) {
	b, ok := f.bindingOf(c)
	if !ok || b.room != roomCode {
		return "", false
	}
	return b.peerID, true
}

func (f *Forwarder) decode(c Conn, msg *protocol.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		f.logger.Warn("bad payload", "type", msg.Type, "conn", c.String(), "error", err)
		f.reject(c, msg.ID, "bad_payload")
		return false
	}
	if err := f.validate.Struct(v); err != nil {
		f.logger.Warn("invalid payload", "type", msg.Type, "conn", c.String(), "error", err)
		f.reject(c, msg.ID, err.Error())
		return false
	}
	return true
}

func (f *Forwarder) reject(c Conn, id, reason string) {
	if id != "" {
		f.ack(c, id, protocol.Ack{Success: false, Error: reason})
		return
	}
	c.Send(protocol.MustNew(protocol.TypeError, "", protocol.ErrorPayload{Error: reason}))
}

func (f *Forwarder) ack(c Conn, id string, ack protocol.Ack) {
	if id == "" {
		return
	}
	c.Send(protocol.MustNew(protocol.TypeAck, id, ack))
}

func deliveryAck(delivered bool) protocol.Ack {
	if delivered {
		return protocol.Ack{Success: true}
	}
	return protocol.Ack{Success: false, Error: "target not found"}
}

// truncateName cuts name to at most max bytes without splitting a rune.
func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	n := max
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return name[:n]
}
