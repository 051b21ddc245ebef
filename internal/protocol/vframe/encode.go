package vframe

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/resonant/internal/protocol"
)

// Encode serializes f and appends its CRC-32. The slice-length table is
// derived from the payloads; f.CRC32 is ignored.
func Encode(f Frame) ([]byte, error) {
	for i, s := range f.Slices {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%w: slices[%d]: %w", protocol.ErrInvalidFrame, i, err)
		}
	}
	return AppendFrame(make([]byte, 0, f.Size()), f), nil
}

// AppendFrame appends the encoding of f to dst without validating slices.
// Callers must have validated f; Encode is the checked entry point.
func AppendFrame(dst []byte, f Frame) []byte {
	start := len(dst)
	dst = appendHeader(dst, f)
	for _, s := range f.Slices {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s.Payload)))
	}
	dst = binary.LittleEndian.AppendUint32(dst, f.SpaceHash)
	dst = append(dst, byte(f.Modality))
	for _, s := range f.Slices {
		dst = appendSlice(dst, s)
	}
	return binary.LittleEndian.AppendUint32(dst, Checksum(dst[start:]))
}

func appendHeader(dst []byte, f Frame) []byte {
	dst = append(dst, f.Version, byte(f.Type))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(f.Flags))
	dst = binary.LittleEndian.AppendUint32(dst, f.StreamID)
	dst = binary.LittleEndian.AppendUint64(dst, f.Seq)
	return binary.LittleEndian.AppendUint64(dst, uint64(len(f.Slices)))
}
