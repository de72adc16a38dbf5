package mesh

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope is the data-plane frame. The same bytes travel over a direct
// channel or inside a relayed message, so the relay never decodes them.
type Envelope struct {
	Action string             `msgpack:"action"`
	Data   msgpack.RawMessage `msgpack:"data"`
}

// EncodeFrame packs payload under action.
func EncodeFrame(action string, payload any) ([]byte, error) {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, WrapError("encode "+action, ErrEncode, err.Error())
	}
	b, err := msgpack.Marshal(Envelope{Action: action, Data: data})
	if err != nil {
		return nil, WrapError("encode "+action, ErrEncode, err.Error())
	}
	return b, nil
}

// DecodeFrame unpacks a frame. Frames without an action are malformed.
func DecodeFrame(b []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return Envelope{}, WrapError("decode frame", ErrMalformedFrame, err.Error())
	}
	if env.Action == "" {
		return Envelope{}, WrapError("decode frame", ErrMalformedFrame, "missing action")
	}
	return env, nil
}

// Path tells how a message reached this peer.
type Path int

const (
	Direct Path = iota
	Relayed
)

func (p Path) String() string {
	if p == Direct {
		return "direct"
	}
	return "relayed"
}

// Message is an inbound application message.
type Message struct {
	From   string
	Action string
	Data   msgpack.RawMessage
	Via    Path
}

// Decode decodes the payload into v.
func (m Message) Decode(v any) error {
	return msgpack.Unmarshal(m.Data, v)
}
