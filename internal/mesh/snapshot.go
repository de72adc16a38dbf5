package mesh

// Status is the coordinator's room lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// PeerInfo describes one tracked remote peer.
type PeerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	State  string `json:"state"`
	Direct bool   `json:"direct"`
}

// Snapshot is an immutable view of the coordinator. PeerCount always equals
// len(Peers).
type Snapshot struct {
	Status    Status              `json:"status"`
	PeerID    string              `json:"peerId"`
	RoomCode  string              `json:"roomCode"`
	PeerCount int                 `json:"peerCount"`
	Peers     map[string]PeerInfo `json:"peers"`
	Error     string              `json:"error,omitempty"`
}

// snapshot builds a Snapshot from loop-owned state.
func (c *Coordinator) snapshot() *Snapshot {
	peers := make(map[string]PeerInfo, len(c.sessions))
	for id, s := range c.sessions {
		peers[id] = PeerInfo{
			ID:     id,
			Name:   s.name,
			State:  s.state.String(),
			Direct: s.channel == ChannelOpen,
		}
	}
	return &Snapshot{
		Status:    c.status,
		PeerID:    c.peerID,
		RoomCode:  c.roomCode,
		PeerCount: len(peers),
		Peers:     peers,
		Error:     c.lastErr,
	}
}

// publish stores the current state and offers it to Updates. Only the loop
// publishes, so the latest-value send below never blocks.
func (c *Coordinator) publish() {
	snap := c.snapshot()
	c.current.Store(snap)

	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- *snap:
	default:
	}
}
