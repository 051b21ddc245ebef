package vframe

import "fmt"

// Version is the wire version written by current producers.
const Version uint8 = 0x01

// HeaderSize is the fixed prefix before the slice-length table.
const HeaderSize = 1 + 1 + 2 + 4 + 8 + 8

// trailerSize covers space_hash32 and modality, written after the length table.
const trailerSize = 4 + 1

// ChecksumSize is the width of the trailing CRC-32.
const ChecksumSize = 4

// MsgType identifies how a frame's slices are interpreted.
type MsgType uint8

const (
	MsgThink    MsgType = 0
	MsgCache    MsgType = 1
	MsgAsk      MsgType = 2
	MsgSync     MsgType = 3
	MsgCritique MsgType = 4
)

// Known reports whether t is one of the defined message types.
func (t MsgType) Known() bool {
	return t <= MsgCritique
}

func (t MsgType) String() string {
	switch t {
	case MsgThink:
		return "think"
	case MsgCache:
		return "cache"
	case MsgAsk:
		return "ask"
	case MsgSync:
		return "sync"
	case MsgCritique:
		return "critique"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Flags is carried opaquely; the named bits are hints for other layers.
type Flags uint16

const (
	FlagCompressed Flags = 1 << 0
	FlagEncrypted  Flags = 1 << 1
	FlagStrongTail Flags = 1 << 2
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

func (f Flags) With(flag Flags) Flags {
	return f | flag
}

func (f Flags) Without(flag Flags) Flags {
	return f &^ flag
}

// Modality is a coarse content-type tag for a frame.
type Modality uint8

const (
	ModalityText  Modality = 0
	ModalityImage Modality = 1
	ModalityAudio Modality = 2
	ModalityGraph Modality = 3
	ModalityMixed Modality = 4
)

func (m Modality) Known() bool {
	return m <= ModalityMixed
}

func (m Modality) String() string {
	switch m {
	case ModalityText:
		return "text"
	case ModalityImage:
		return "image"
	case ModalityAudio:
		return "audio"
	case ModalityGraph:
		return "graph"
	case ModalityMixed:
		return "mixed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseModality maps a configuration name to a Modality.
func ParseModality(name string) (Modality, error) {
	switch name {
	case "text", "":
		return ModalityText, nil
	case "image":
		return ModalityImage, nil
	case "audio":
		return ModalityAudio, nil
	case "graph":
		return ModalityGraph, nil
	case "mixed":
		return ModalityMixed, nil
	default:
		return 0, fmt.Errorf("vframe: unknown modality %q", name)
	}
}

// Frame is one complete V-Frame. Slice order is significant.
//
// CRC32 is filled in by Decode; Encode ignores it.
type Frame struct {
	Version   uint8
	Type      MsgType
	Flags     Flags
	StreamID  uint32
	Seq       uint64
	SpaceHash uint32
	Modality  Modality
	Slices    []Slice
	CRC32     uint32
}

// Size returns the encoded length of f without encoding it.
func (f Frame) Size() int {
	n := HeaderSize + 4*len(f.Slices) + trailerSize + ChecksumSize
	for _, s := range f.Slices {
		n += s.encodedSize()
	}
	return n
}
