package protocol

import "encoding/json"

// Message is the envelope for every control-plane frame exchanged between
// a mesh client and the relay, in both directions.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	// Client to relay.
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeSignal  = "signal"
	TypeMessage = "message"

	// Relay to client. "signal" and "message" are reused for the forwarded events.
	TypeAck        = "ack"
	TypePeerJoined = "peer-joined"
	TypePeerLeft   = "peer-left"
	TypeError      = "error"
)

// Signal types carried inside a SignalRequest / SignalEvent.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// JoinRequest asks the relay to add the sender to a room.
type JoinRequest struct {
	RoomCode string `json:"roomCode" validate:"required,max=128"`
	PeerID   string `json:"peerId" validate:"required,max=128"`
	Name     string `json:"name"`
}

// LeaveRequest removes the sender from a room.
type LeaveRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	PeerID   string `json:"peerId" validate:"required"`
}

// SignalRequest carries one negotiation step to a specific peer.
type SignalRequest struct {
	RoomCode     string `json:"roomCode" validate:"required"`
	TargetPeerID string `json:"targetPeerId" validate:"required"`
	Signal       Signal `json:"signal"`
}

// MessageRequest carries an opaque application frame. An empty
// TargetPeerID broadcasts to every other member of the room.
type MessageRequest struct {
	RoomCode     string `json:"roomCode" validate:"required"`
	TargetPeerID string `json:"targetPeerId,omitempty"`
	Data         []byte `json:"data" validate:"required"`
}

// Member is the public view of a room member. The relay never exposes
// transport details.
type Member struct {
	PeerID string `json:"peerId"`
	Name   string `json:"name"`
}

// Ack answers a request that carried an ID.
type Ack struct {
	Success bool     `json:"success"`
	Members []Member `json:"members,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PeerEvent is the payload of peer-joined and peer-left.
type PeerEvent struct {
	PeerID string `json:"peerId"`
	Name   string `json:"name"`
}

// SignalEvent is a forwarded negotiation step.
type SignalEvent struct {
	FromPeerID string `json:"fromPeerId"`
	Signal     Signal `json:"signal"`
}

// MessageEvent is a forwarded application frame.
type MessageEvent struct {
	FromPeerID string `json:"fromPeerId"`
	Data       []byte `json:"data"`
}

// ErrorPayload reports a request the relay could not interpret.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Signal is an SDP description or an ICE candidate. The relay forwards it
// verbatim and never looks inside.
type Signal struct {
	Type      string     `json:"type"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

// Candidate mirrors the browser RTCIceCandidateInit dictionary.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// New builds an envelope, marshalling payload when it is not nil.
func New(msgType, id string, payload any) (*Message, error) {
	msg := &Message{Type: msgType, ID: id}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = raw
	return msg, nil
}

// MustNew is New for payload types that cannot fail to marshal.
func MustNew(msgType, id string, payload any) *Message {
	msg, err := New(msgType, id, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(m.Payload, v)
}
