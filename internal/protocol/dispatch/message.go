package dispatch

import (
	"github.com/danmuck/resonant/internal/protocol/vframe"
)

// Header is the per-frame routing metadata shared by every message variant.
type Header struct {
	Version   uint8
	Flags     vframe.Flags
	StreamID  uint32
	Seq       uint64
	SpaceHash uint32
	Modality  vframe.Modality
}

// HeaderOf copies the routing metadata out of f.
func HeaderOf(f vframe.Frame) Header {
	return Header{
		Version:   f.Version,
		Flags:     f.Flags,
		StreamID:  f.StreamID,
		Seq:       f.Seq,
		SpaceHash: f.SpaceHash,
		Modality:  f.Modality,
	}
}

// Next returns h advanced to the following frame of the same stream.
func (h Header) Next() Header {
	h.Seq++
	return h
}

func (h Header) frame(t vframe.MsgType, slices []vframe.Slice) vframe.Frame {
	version := h.Version
	if version == 0 {
		version = vframe.Version
	}
	return vframe.Frame{
		Version:   version,
		Type:      t,
		Flags:     h.Flags,
		StreamID:  h.StreamID,
		Seq:       h.Seq,
		SpaceHash: h.SpaceHash,
		Modality:  h.Modality,
		Slices:    slices,
	}
}

// Message is the typed view of a decoded frame. The set of variants is closed.
type Message interface {
	Type() vframe.MsgType
	Meta() Header
	message()
}

// Handshake is a Sync frame carrying one JSON object.
type Handshake struct {
	Header
	Fields map[string]any
	Raw    []byte
}

// Thought is a Think frame: one or more latent slices in order.
type Thought struct {
	Header
	Slices []vframe.Slice
}

// Critique pairs a dense divergence vector with a JSON explanation.
// Slices past the first two are kept in Extra.
type Critique struct {
	Header
	Divergence  vframe.Slice
	Explanation map[string]any
	Extra       []vframe.Slice
}

// Passthrough carries Cache and Ask frames without interpretation.
type Passthrough struct {
	Header
	Kind   vframe.MsgType
	Slices []vframe.Slice
}

// Unknown carries a frame whose msg_type has no defined meaning.
type Unknown struct {
	Frame vframe.Frame
}

func (Handshake) Type() vframe.MsgType { return vframe.MsgSync }
func (Thought) Type() vframe.MsgType { return vframe.MsgThink }
func (Critique) Type() vframe.MsgType { return vframe.MsgCritique }
func (p Passthrough) Type() vframe.MsgType { return p.Kind }
func (u Unknown) Type() vframe.MsgType { return u.Frame.Type }

func (h Handshake) Meta() Header { return h.Header }
func (t Thought) Meta() Header { return t.Header }
func (c Critique) Meta() Header { return c.Header }
func (p Passthrough) Meta() Header { return p.Header }
func (u Unknown) Meta() Header { return HeaderOf(u.Frame) }

func (Handshake) message() {}
func (Thought) message() {}
func (Critique) message() {}
func (Passthrough) message() {}
func (Unknown) message() {}

// Method returns the handshake's "method" field, or "" when absent or not a string.
func (h Handshake) Method() string {
	m, _ := h.Fields["method"].(string)
	return m
}
