package vframe

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/resonant/internal/protocol"
)

// Decode parses one complete frame occupying all of b.
func Decode(b []byte) (Frame, error) {
	return DecodeWithLimits(b, Limits{})
}

// DecodeWithLimits parses one complete frame occupying all of b.
//
// Structure is parsed first with bounds-checked reads, then the CRC is
// recomputed over the same range. If b's trailing four bytes do not verify as
// a checksum of the rest, any structural failure other than truncation is
// reported as ErrIntegrity.
func DecodeWithLimits(b []byte, limits Limits) (Frame, error) {
	if limits.MaxFrameBytes > 0 && len(b) > limits.MaxFrameBytes {
		return Frame{}, fmt.Errorf("%w: %d bytes, max %d", protocol.ErrFrameTooLarge, len(b), limits.MaxFrameBytes)
	}

	f, end, err := decodeBody(b, limits)
	if err == nil {
		err = checkTrailer(b, end, &f)
	}
	if err != nil {
		if !errors.Is(err, protocol.ErrTruncatedInput) && !errors.Is(err, protocol.ErrIntegrity) && !trailerVerifies(b) {
			return Frame{}, &DecodeError{
				Field:  "crc32",
				Offset: len(b) - ChecksumSize,
				Err:    fmt.Errorf("%w: frame fails checksum (%v)", protocol.ErrIntegrity, err),
			}
		}
		return Frame{}, err
	}
	return f, nil
}

func decodeBody(b []byte, limits Limits) (Frame, int, error) {
	r := &reader{buf: b}
	var f Frame
	var err error

	if f.Version, err = r.u8("version"); err != nil {
		return Frame{}, 0, err
	}
	msgType, err := r.u8("msg_type")
	if err != nil {
		return Frame{}, 0, err
	}
	f.Type = MsgType(msgType)
	flags, err := r.u16("flags")
	if err != nil {
		return Frame{}, 0, err
	}
	f.Flags = Flags(flags)
	if f.StreamID, err = r.u32("stream_id"); err != nil {
		return Frame{}, 0, err
	}
	if f.Seq, err = r.u64("frame_seq"); err != nil {
		return Frame{}, 0, err
	}
	count, err := r.u64("num_slices")
	if err != nil {
		return Frame{}, 0, err
	}

	// Every slice owns a four-byte table entry, which bounds count by the
	// bytes actually present before anything is allocated.
	if count > uint64(r.remaining()/4) {
		return Frame{}, 0, r.fail("slice_len", fmt.Errorf("%w: %d slices declared, %d bytes remain",
			protocol.ErrTruncatedInput, count, r.remaining()))
	}
	if limits.MaxSlices > 0 && count > limits.MaxSlices {
		return Frame{}, 0, r.fail("num_slices", fmt.Errorf("%w: %d slices, max %d",
			protocol.ErrFrameTooLarge, count, limits.MaxSlices))
	}

	lengths := make([]uint32, count)
	for i := range lengths {
		if lengths[i], err = r.u32("slice_len"); err != nil {
			return Frame{}, 0, err
		}
	}

	if f.SpaceHash, err = r.u32("space_hash32"); err != nil {
		return Frame{}, 0, err
	}
	modality, err := r.u8("modality")
	if err != nil {
		return Frame{}, 0, err
	}
	f.Modality = Modality(modality)

	if count > 0 {
		f.Slices = make([]Slice, count)
		for i, declared := range lengths {
			if f.Slices[i], err = decodeSlice(r, i, declared); err != nil {
				return Frame{}, 0, err
			}
		}
	}
	return f, r.off, nil
}

// checkTrailer requires exactly one CRC after the body and verifies it.
func checkTrailer(b []byte, end int, f *Frame) error {
	r := &reader{buf: b, off: end}
	stored, err := r.u32("crc32")
	if err != nil {
		return err
	}
	if r.remaining() > 0 {
		return r.fail("crc32", fmt.Errorf("%w: %d trailing bytes after checksum", protocol.ErrSizeMismatch, r.remaining()))
	}
	if computed := Checksum(b[:end]); computed != stored {
		return &DecodeError{
			Field:  "crc32",
			Offset: end,
			Err:    fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", protocol.ErrIntegrity, stored, computed),
		}
	}
	f.CRC32 = stored
	return nil
}

func trailerVerifies(b []byte) bool {
	if len(b) < ChecksumSize {
		return false
	}
	n := len(b) - ChecksumSize
	return Checksum(b[:n]) == binary.LittleEndian.Uint32(b[n:])
}
