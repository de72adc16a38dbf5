package mesh

import (
	"context"

	"github.com/BioHazard786/roommesh/internal/protocol"
)

// ControlPlane opens connections to the relay.
type ControlPlane interface {
	Dial(ctx context.Context) (ControlConn, error)
}

// ControlConn is one live relay connection. Incoming is closed when the
// connection drops. Send must not block.
type ControlConn interface {
	Send(msg *protocol.Message) error
	Incoming() <-chan *protocol.Message
	Close() error
}

// TransportState is the coarse connectivity state of a PeerConnection.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// PeerConnector creates direct connections to remote peers.
type PeerConnector interface {
	NewConnection(peerID string) (PeerConnection, error)
}

// PeerConnection is a single direct connection attempt. Callbacks may fire
// on any goroutine, including from inside the methods below.
type PeerConnection interface {
	CreateDataChannel(label string) (DataChannel, error)
	// CreateOffer creates and applies the local offer.
	CreateOffer() (string, error)
	// AcceptOffer applies a remote offer and returns the applied local answer.
	AcceptOffer(sdp string) (string, error)
	AcceptAnswer(sdp string) error
	AddCandidate(c protocol.Candidate) error

	OnCandidate(func(protocol.Candidate))
	OnDataChannel(func(DataChannel))
	OnStateChange(func(TransportState))

	Close() error
}

// DataChannel is a reliable, ordered message channel. OnOpen fires
// immediately if the channel is already open.
type DataChannel interface {
	Label() string
	OnOpen(func())
	OnClose(func())
	OnMessage(func([]byte))
	Send(data []byte) error
	Close() error
}
