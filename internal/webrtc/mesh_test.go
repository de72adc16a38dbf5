package webrtc

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/roommesh/internal/mesh"
	"github.com/BioHazard786/roommesh/internal/relay"
	"github.com/BioHazard786/roommesh/internal/server"
	"github.com/BioHazard786/roommesh/internal/signaling"
)

// TestMeshOverLoopback runs two coordinators against a real relay and real
// pion connections on the loopback interface.
func TestMeshOverLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("starts ICE agents")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fwd := relay.NewForwarder(relay.NewRegistry(), relay.Options{Logger: logger})
	srv := httptest.NewServer(server.NewRouter(fwd, server.Options{Mode: "test", Client: relay.DefaultClientOptions(), Logger: logger}))
	defer srv.Close()
	dialer := &signaling.Dialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", Logger: logger}

	newNode := func(id string) *mesh.Coordinator {
		c, err := mesh.New(mesh.Options{
			PeerID:  id,
			Name:    id,
			Control: dialer,
			Peers:   NewConnector(Options{IncludeLoopback: true, Logger: logger}),
			Logger:  logger,
		})
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	}

	a, b := newNode("A"), newNode("B")
	got := make(chan mesh.Message, 1)
	a.Register("chat", func(msg mesh.Message) { got <- msg })
	send := b.Register("chat", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Join(ctx, "loop"))
	require.NoError(t, b.Join(ctx, "loop"))

	require.Eventually(t, func() bool {
		pa, pb := a.Snapshot().Peers["B"], b.Snapshot().Peers["A"]
		return pa.Direct && pb.Direct
	}, 20*time.Second, 20*time.Millisecond)

	require.NoError(t, send("over the wire", "A"))
	select {
	case msg := <-got:
		assert.Equal(t, mesh.Direct, msg.Via)
		var text string
		require.NoError(t, msg.Decode(&text))
		assert.Equal(t, "over the wire", text)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}
