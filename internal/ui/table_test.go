package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BioHazard786/roommesh/internal/mesh"
)

func TestPeerTableView(t *testing.T) {
	view := PeerTableView(mesh.Snapshot{Peers: map[string]mesh.PeerInfo{
		"b-2": {ID: "b-2", Name: "bob", State: "connected", Direct: true},
		"a-1": {ID: "a-1", Name: "alice", State: "negotiating"},
	}})
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "bob")
	assert.Contains(t, view, "direct")
	assert.Contains(t, view, "relay")
	assert.Less(t, indexOf(view, "alice"), indexOf(view, "bob"))
}

func TestRoomsTableView(t *testing.T) {
	view := RoomsTableView([]RoomRow{{Code: "amber-fox-lake", Members: 2}, {Code: "ABCD", Members: 3}})
	assert.Contains(t, view, "amber-fox-lake")
	assert.Contains(t, view, "2 rooms")
	assert.Contains(t, view, "5")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "3f2a9c1e", shortID("3f2a9c1e-aaaa-bbbb"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
