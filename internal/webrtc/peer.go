package webrtc

import (
	"log/slog"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/roommesh/internal/mesh"
	"github.com/BioHazard786/roommesh/internal/protocol"
)

type peerConnection struct {
	pc     *pion.PeerConnection
	peerID string
	logger *slog.Logger
}

func (p *peerConnection) CreateDataChannel(label string) (mesh.DataChannel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, mesh.NewPeerError("create data channel", p.peerID, err)
	}
	return &dataChannel{dc: dc}, nil
}

func (p *peerConnection) CreateOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", mesh.NewPeerError("create offer", p.peerID, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", mesh.NewPeerError("set local description", p.peerID, err)
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *peerConnection) AcceptOffer(sdp string) (string, error) {
	offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", mesh.NewPeerError("set remote description", p.peerID, err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", mesh.NewPeerError("create answer", p.peerID, err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", mesh.NewPeerError("set local description", p.peerID, err)
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *peerConnection) AcceptAnswer(sdp string) error {
	answer := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return mesh.NewPeerError("set remote description", p.peerID, err)
	}
	return nil
}

func (p *peerConnection) AddCandidate(c protocol.Candidate) error {
	if err := p.pc.AddICECandidate(candidateInit(c)); err != nil {
		return mesh.NewPeerError("add ICE candidate", p.peerID, err)
	}
	return nil
}

func (p *peerConnection) OnCandidate(fn func(protocol.Candidate)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil {
			return
		}
		fn(fromCandidateInit(c.ToJSON()))
	})
}

func (p *peerConnection) OnDataChannel(fn func(mesh.DataChannel)) {
	p.pc.OnDataChannel(func(dc *pion.DataChannel) {
		fn(&dataChannel{dc: dc})
	})
}

func (p *peerConnection) OnStateChange(fn func(mesh.TransportState)) {
	p.pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.logger.Debug("ICE state", "state", state.String())
		if ts, ok := transportState(state); ok {
			fn(ts)
		}
	})
}

func (p *peerConnection) Close() error {
	return p.pc.Close()
}

// transportState maps ICE connection states. Completed counts as
// connected; unknown states are not reported.
func transportState(state pion.ICEConnectionState) (mesh.TransportState, bool) {
	switch state {
	case pion.ICEConnectionStateNew:
		return mesh.TransportNew, true
	case pion.ICEConnectionStateChecking:
		return mesh.TransportConnecting, true
	case pion.ICEConnectionStateConnected, pion.ICEConnectionStateCompleted:
		return mesh.TransportConnected, true
	case pion.ICEConnectionStateDisconnected:
		return mesh.TransportDisconnected, true
	case pion.ICEConnectionStateFailed:
		return mesh.TransportFailed, true
	case pion.ICEConnectionStateClosed:
		return mesh.TransportClosed, true
	}
	return mesh.TransportNew, false
}

func candidateInit(c protocol.Candidate) pion.ICECandidateInit {
	return pion.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromCandidateInit(c pion.ICECandidateInit) protocol.Candidate {
	return protocol.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

type dataChannel struct {
	dc *pion.DataChannel
}

func (d *dataChannel) Label() string { return d.dc.Label() }

// OnOpen fires immediately when the channel is already open.
func (d *dataChannel) OnOpen(fn func()) { d.dc.OnOpen(fn) }

func (d *dataChannel) OnClose(fn func()) { d.dc.OnClose(fn) }

func (d *dataChannel) OnMessage(fn func([]byte)) {
	d.dc.OnMessage(func(msg pion.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (d *dataChannel) Send(data []byte) error { return d.dc.Send(data) }

func (d *dataChannel) Close() error { return d.dc.Close() }
