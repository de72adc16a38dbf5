package relay

import (
	"sort"
	"sync"

	"github.com/BioHazard786/roommesh/internal/protocol"
)

// Conn is the relay's handle on one participant's control-plane connection.
type Conn interface {
	// Send queues msg without blocking. It reports false when the
	// connection is closed or cannot keep up.
	Send(msg *protocol.Message) bool
	String() string
}

// Member is one participant of a room. Members are immutable once created.
type Member struct {
	PeerID string
	Name   string
	Conn   Conn

	seq uint64
}

// Public strips the transport handle.
func (m *Member) Public() protocol.Member {
	return protocol.Member{PeerID: m.PeerID, Name: m.Name}
}

// Room is a set of members addressed by peer id. All access goes through
// the Registry, which holds the room lock while callbacks run.
type Room struct {
	Code string

	mu      sync.Mutex
	members map[string]*Member
	nextSeq uint64
	deleted bool
}

// Member returns the member with peerID.
func (r *Room) Member(peerID string) (*Member, bool) {
	m, ok := r.members[peerID]
	return m, ok
}

// Others returns every member except peerID in join order.
func (r *Room) Others(peerID string) []*Member {
	out := make([]*Member, 0, len(r.members))
	for id, m := range r.members {
		if id != peerID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the member count.
func (r *Room) Len() int {
	return len(r.members)
}

// JoinResult describes what a join did to the room.
type JoinResult struct {
	// Existing holds the members present before the join, excluding the joiner.
	Existing []*Member
	// Replaced is the previous entry for the same peer id, held by another connection.
	Replaced *Member
	// Rejoined is set when the same connection joined again under the same peer id.
	Rejoined bool
	// Created is set when the join brought the room into existence.
	Created bool
}

// RoomStats is the public, identity-free view of a room.
type RoomStats struct {
	Code    string `json:"code"`
	Members int    `json:"members"`
}

// Registry maps room codes to rooms. A room exists iff it has at least one
// member: it is created by the first join and deleted by the last leave.
//
// Lock order is registry, then room. Callbacks run with only the room lock
// held and must not call back into the Registry.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Join adds m to the room code, creating the room if it is absent. fn runs
// while the room is locked so that notifications for one room are totally
// ordered.
func (r *Registry) Join(code string, m *Member, fn func(JoinResult)) {
	r.mu.Lock()
	room, ok := r.rooms[code]
	if !ok {
		room = &Room{Code: code, members: make(map[string]*Member)}
		r.rooms[code] = room
	}
	room.mu.Lock()
	r.mu.Unlock()
	defer room.mu.Unlock()

	res := JoinResult{Created: !ok}
	if prev, exists := room.members[m.PeerID]; exists {
		if prev.Conn == m.Conn {
			res.Rejoined = true
			res.Existing = room.Others(m.PeerID)
			if fn != nil {
				fn(res)
			}
			return
		}
		res.Replaced = prev
	}

	res.Existing = room.Others(m.PeerID)
	room.nextSeq++
	m.seq = room.nextSeq
	room.members[m.PeerID] = m

	if fn != nil {
		fn(res)
	}
}

// Leave removes peerID from the room code. When conn is not nil the entry is
// only removed if it belongs to that connection, so that a stale connection
// cannot evict the entry that replaced it. The room is deleted when it
// becomes empty. fn receives the removed member and the remaining ones and
// runs while the room is locked. Leave reports whether a member was removed.
func (r *Registry) Leave(code, peerID string, conn Conn, fn func(left *Member, remaining []*Member)) bool {
	r.mu.Lock()
	room, ok := r.rooms[code]
	if !ok {
		r.mu.Unlock()
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	m, ok := room.members[peerID]
	if !ok || (conn != nil && m.Conn != conn) {
		r.mu.Unlock()
		return false
	}
	delete(room.members, peerID)
	if len(room.members) == 0 {
		room.deleted = true
		delete(r.rooms, code)
	}
	r.mu.Unlock()

	if fn != nil {
		fn(m, room.Others(peerID))
	}
	return true
}

// Room runs fn with the room locked. It reports false if the room does not exist.
func (r *Registry) Room(code string, fn func(*Room)) bool {
	r.mu.RLock()
	room, ok := r.rooms[code]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.deleted {
		return false
	}
	fn(room)
	return true
}

// Members returns the public member list of a room in join order.
func (r *Registry) Members(code string) []protocol.Member {
	var out []protocol.Member
	r.Room(code, func(room *Room) {
		for _, m := range room.Others("") {
			out = append(out, m.Public())
		}
	})
	return out
}

// Exists reports whether a room with code currently has members.
func (r *Registry) Exists(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[code]
	return ok
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Stats lists live rooms sorted by code.
func (r *Registry) Stats() []RoomStats {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	out := make([]RoomStats, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		if !room.deleted {
			out = append(out, RoomStats{Code: room.Code, Members: len(room.members)})
		}
		room.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
