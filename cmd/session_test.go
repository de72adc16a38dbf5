package cmd

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/roommesh/internal/config"
	"github.com/BioHazard786/roommesh/internal/mesh"
	"github.com/BioHazard786/roommesh/internal/protocol"
	"github.com/BioHazard786/roommesh/internal/relay"
	"github.com/BioHazard786/roommesh/internal/roomcode"
	"github.com/BioHazard786/roommesh/internal/server"
)

type nopConn struct{}

func (nopConn) Send(*protocol.Message) bool { return true }
func (nopConn) String() string               { return "nop" }

func TestRelayClient(t *testing.T) {
	fwd := relay.NewForwarder(relay.NewRegistry(), relay.Options{})
	srv := httptest.NewServer(server.NewRouter(fwd, server.Options{Mode: "test"}))
	defer srv.Close()

	cfg, err := config.Load(config.Options{Domain: strings.TrimPrefix(srv.URL, "http://")})
	require.NoError(t, err)
	client := newRelayClient(cfg)
	ctx := context.Background()

	code, err := client.allocateRoom(ctx)
	require.NoError(t, err)
	assert.True(t, roomcode.Valid(code))

	rooms, err := client.listRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	fwd.Join(code, "P1", "alice", nopConn{})
	rooms, err = client.listRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, code, rooms[0].Code)
	assert.Equal(t, 1, rooms[0].Members)
}

func TestReconnectAttempts(t *testing.T) {
	assert.Equal(t, -1, reconnectAttempts(0))
	assert.Equal(t, 5, reconnectAttempts(5))
}

func TestSenderName(t *testing.T) {
	snap := mesh.Snapshot{Peers: map[string]mesh.PeerInfo{"P1": {ID: "P1", Name: "alice"}}}
	assert.Equal(t, "alice", senderName(snap, "P1"))
	assert.Equal(t, "0123abcd", senderName(snap, "0123abcd-ffff"))
	assert.Equal(t, "P2", senderName(snap, "P2"))
}
