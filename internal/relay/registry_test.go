package relay

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreatesRoomOnFirstJoinAndDeletesWhenEmpty(t *testing.T) {
	reg := NewRegistry()
	c1, c2 := newFakeConn("c1"), newFakeConn("c2")

	var res JoinResult
	reg.Join("ABCD", &Member{PeerID: "p1", Conn: c1}, func(r JoinResult) { res = r })
	assert.True(t, res.Created)
	assert.Empty(t, res.Existing)
	assert.True(t, reg.Exists("ABCD"))

	reg.Join("ABCD", &Member{PeerID: "p2", Conn: c2}, func(r JoinResult) { res = r })
	assert.False(t, res.Created)
	require.Len(t, res.Existing, 1)
	assert.Equal(t, "p1", res.Existing[0].PeerID)

	assert.True(t, reg.Leave("ABCD", "p1", nil, nil))
	assert.True(t, reg.Exists("ABCD"))
	assert.True(t, reg.Leave("ABCD", "p2", nil, nil))
	assert.False(t, reg.Exists("ABCD"))
	assert.Equal(t, 0, reg.Len())

	assert.False(t, reg.Leave("ABCD", "p2", nil, nil))
}

func TestRegistryMembershipMatchesJoinLeaveHistory(t *testing.T) {
	reg := NewRegistry()
	rng := rand.New(rand.NewSource(42))
	model := map[string]bool{}
	peers := []string{"a", "b", "c", "d", "e", "f"}
	conns := map[string]*fakeConn{}
	for _, p := range peers {
		conns[p] = newFakeConn(p)
	}

	for i := 0; i < 500; i++ {
		p := peers[rng.Intn(len(peers))]
		if rng.Intn(2) == 0 {
			reg.Join("room", &Member{PeerID: p, Conn: conns[p]}, nil)
			model[p] = true
		} else {
			removed := reg.Leave("room", p, conns[p], nil)
			assert.Equal(t, model[p], removed, "step %d leave %s", i, p)
			delete(model, p)
		}

		want := make([]string, 0, len(model))
		for p := range model {
			want = append(want, p)
		}
		got := peerIDs(reg.Members("room"))
		sort.Strings(want)
		sort.Strings(got)
		assert.Equal(t, want, got, "step %d", i)
		assert.Equal(t, len(model) > 0, reg.Exists("room"), "step %d", i)
	}
}

func TestRegistryDuplicateJoin(t *testing.T) {
	reg := NewRegistry()
	c1, c1b, c2 := newFakeConn("c1"), newFakeConn("c1b"), newFakeConn("c2")
	reg.Join("room", &Member{PeerID: "p1", Conn: c1}, nil)
	reg.Join("room", &Member{PeerID: "p2", Conn: c2}, nil)

	var res JoinResult
	reg.Join("room", &Member{PeerID: "p1", Conn: c1}, func(r JoinResult) { res = r })
	assert.True(t, res.Rejoined)
	assert.Nil(t, res.Replaced)

	reg.Join("room", &Member{PeerID: "p1", Conn: c1b}, func(r JoinResult) { res = r })
	assert.False(t, res.Rejoined)
	require.NotNil(t, res.Replaced)
	assert.Same(t, c1, res.Replaced.Conn)
	assert.Equal(t, []string{"p2"}, peerIDs(toPublic(res.Existing)))

	// The stale connection cannot evict its replacement.
	assert.False(t, reg.Leave("room", "p1", c1, nil))
	assert.ElementsMatch(t, []string{"p1", "p2"}, peerIDs(reg.Members("room")))
	assert.True(t, reg.Leave("room", "p1", c1b, nil))
}

func TestRegistryMembersInJoinOrder(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("p%d", i)
		reg.Join("room", &Member{PeerID: id, Conn: newFakeConn(id)}, nil)
	}
	assert.Equal(t, []string{"p0", "p1", "p2", "p3", "p4"}, peerIDs(reg.Members("room")))
}

func TestRegistryStats(t *testing.T) {
	reg := NewRegistry()
	reg.Join("b", &Member{PeerID: "p1", Conn: newFakeConn("1")}, nil)
	reg.Join("a", &Member{PeerID: "p2", Conn: newFakeConn("2")}, nil)
	reg.Join("a", &Member{PeerID: "p3", Conn: newFakeConn("3")}, nil)

	assert.Equal(t, []RoomStats{{Code: "a", Members: 2}, {Code: "b", Members: 1}}, reg.Stats())
}

func TestRegistryRoomOnMissingCode(t *testing.T) {
	reg := NewRegistry()
	called := false
	assert.False(t, reg.Room("nope", func(*Room) { called = true }))
	assert.False(t, called)
}
