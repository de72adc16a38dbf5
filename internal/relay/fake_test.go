package relay

import (
	"sync"

	"github.com/BioHazard786/roommesh/internal/protocol"
)

type fakeConn struct {
	name string

	mu   sync.Mutex
	msgs []*protocol.Message
	full bool
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{name: name}
}

func (c *fakeConn) Send(msg *protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeConn) String() string { return c.name }

func (c *fakeConn) setFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

// take returns and clears everything received so far.
func (c *fakeConn) take() []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.msgs
	c.msgs = nil
	return out
}

func (c *fakeConn) ofType(msgType string) []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.Message
	for _, m := range c.msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func peerIDs(members []protocol.Member) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.PeerID)
	}
	return out
}

func toPublic(members []*Member) []protocol.Member {
	out := make([]protocol.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m.Public())
	}
	return out
}
