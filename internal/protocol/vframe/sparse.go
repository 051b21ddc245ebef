package vframe

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/resonant/internal/protocol"
)

// SparseCOO payload layout:
//
//	nnz u32 | nnz*rank u32 coordinates | nnz f16 values
//
// Coordinates are stored entry by entry; values are raw f16 bit patterns.
const (
	sparseCountSize = 4
	sparseValueSize = 2
)

func sparseSize(rank int, nnz uint32) uint64 {
	return sparseCountSize + uint64(nnz)*(4*uint64(rank)+sparseValueSize)
}

// SparseCOO is the coordinate-list view of a sparse slice.
type SparseCOO struct {
	Indices [][]uint32
	Values  []uint16
}

// NNZ returns the number of stored entries.
func (c SparseCOO) NNZ() int {
	return len(c.Values)
}

// ParseSparseCOO unpacks a SparseCOO slice and checks every coordinate
// against the slice shape.
func ParseSparseCOO(s Slice) (SparseCOO, error) {
	if s.DType != DTypeSparseCOO {
		return SparseCOO{}, fmt.Errorf("%w: %s is not sparse", protocol.ErrUnsupportedDtype, s.DType)
	}
	want, err := s.PayloadSize()
	if err != nil {
		return SparseCOO{}, err
	}
	if want != uint64(len(s.Payload)) {
		return SparseCOO{}, fmt.Errorf("%w: sparse payload expects %d bytes, got %d", protocol.ErrSizeMismatch, want, len(s.Payload))
	}

	rank := len(s.Shape)
	nnz := int(binary.LittleEndian.Uint32(s.Payload))
	off := sparseCountSize
	coo := SparseCOO{
		Indices: make([][]uint32, nnz),
		Values:  make([]uint16, nnz),
	}
	for i := 0; i < nnz; i++ {
		idx := make([]uint32, rank)
		for d := 0; d < rank; d++ {
			idx[d] = binary.LittleEndian.Uint32(s.Payload[off:])
			off += 4
			if idx[d] >= s.Shape[d] {
				return SparseCOO{}, fmt.Errorf("%w: entry %d coordinate %d is %d, dim is %d",
					protocol.ErrMalformedPayload, i, d, idx[d], s.Shape[d])
			}
		}
		coo.Indices[i] = idx
	}
	for i := 0; i < nnz; i++ {
		coo.Values[i] = binary.LittleEndian.Uint16(s.Payload[off:])
		off += sparseValueSize
	}
	return coo, nil
}

// EncodeSparseCOO packs coo into a SparseCOO slice of the given shape.
func EncodeSparseCOO(shape []uint32, coo SparseCOO) (Slice, error) {
	if len(coo.Indices) != len(coo.Values) {
		return Slice{}, fmt.Errorf("%w: %d coordinates for %d values", protocol.ErrInvalidFrame, len(coo.Indices), len(coo.Values))
	}
	if uint64(len(coo.Values)) > math.MaxUint32 {
		return Slice{}, fmt.Errorf("%w: too many sparse entries", protocol.ErrInvalidFrame)
	}
	rank := len(shape)
	payload := make([]byte, 0, sparseSize(rank, uint32(len(coo.Values))))
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(coo.Values)))
	for i, idx := range coo.Indices {
		if len(idx) != rank {
			return Slice{}, fmt.Errorf("%w: entry %d has %d coordinates, rank is %d", protocol.ErrInvalidFrame, i, len(idx), rank)
		}
		for d, v := range idx {
			if v >= shape[d] {
				return Slice{}, fmt.Errorf("%w: entry %d coordinate %d out of range", protocol.ErrInvalidFrame, i, d)
			}
			payload = binary.LittleEndian.AppendUint32(payload, v)
		}
	}
	for _, v := range coo.Values {
		payload = binary.LittleEndian.AppendUint16(payload, v)
	}
	shapeCopy := append([]uint32(nil), shape...)
	return Slice{DType: DTypeSparseCOO, Shape: shapeCopy, Payload: payload}, nil
}
