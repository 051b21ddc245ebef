package vframe

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/resonant/internal/protocol"
)

// MaxShapeDims is bounded by the one-byte shape_len field.
const MaxShapeDims = math.MaxUint8

// Slice is one tensor unit within a frame.
type Slice struct {
	DType   DType
	Shape   []uint32
	Payload []byte
}

// PayloadSize derives the payload length from dtype and shape. SparseCOO reads
// its entry count from the payload prefix.
func (s Slice) PayloadSize() (uint64, error) {
	switch {
	case s.DType.Dense():
		return DenseSize(s.DType, s.Shape)
	case s.DType == DTypeSparseCOO:
		if len(s.Payload) < sparseCountSize {
			return 0, fmt.Errorf("%w: sparse payload shorter than entry count", protocol.ErrSizeMismatch)
		}
		return sparseSize(len(s.Shape), binary.LittleEndian.Uint32(s.Payload)), nil
	default:
		return 0, fmt.Errorf("%w: %s", protocol.ErrUnsupportedDtype, s.DType)
	}
}

// Validate checks that s can be encoded and will decode back unchanged.
func (s Slice) Validate() error {
	if _, err := ParseDType(byte(s.DType)); err != nil {
		return err
	}
	if len(s.Shape) > MaxShapeDims {
		return fmt.Errorf("%w: shape has %d dims, max %d", protocol.ErrInvalidFrame, len(s.Shape), MaxShapeDims)
	}
	if uint64(len(s.Payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: payload of %d bytes exceeds length table range", protocol.ErrInvalidFrame, len(s.Payload))
	}
	want, err := s.PayloadSize()
	if err != nil {
		return err
	}
	if want != uint64(len(s.Payload)) {
		return fmt.Errorf("%w: %s shape %v expects %d bytes, got %d",
			protocol.ErrSizeMismatch, s.DType, s.Shape, want, len(s.Payload))
	}
	return nil
}

func (s Slice) encodedSize() int {
	return 2 + 4*len(s.Shape) + len(s.Payload)
}

func appendSlice(dst []byte, s Slice) []byte {
	dst = append(dst, byte(s.DType), byte(len(s.Shape)))
	for _, dim := range s.Shape {
		dst = binary.LittleEndian.AppendUint32(dst, dim)
	}
	return append(dst, s.Payload...)
}

// decodeSlice reads one slice and cross-checks the derived payload size
// against the length-table entry for it.
func decodeSlice(r *reader, idx int, declared uint32) (Slice, error) {
	field := func(name string) string {
		return fmt.Sprintf("slices[%d].%s", idx, name)
	}

	raw, err := r.u8(field("dtype"))
	if err != nil {
		return Slice{}, err
	}
	dtype, err := ParseDType(raw)
	if err != nil {
		return Slice{}, r.fail(field("dtype"), err)
	}

	rank, err := r.u8(field("shape_len"))
	if err != nil {
		return Slice{}, err
	}
	if err := r.need(field("shape"), 4*int(rank)); err != nil {
		return Slice{}, err
	}
	var shape []uint32
	if rank > 0 {
		shape = make([]uint32, rank)
		for i := range shape {
			shape[i], _ = r.u32(field("shape"))
		}
	}

	var want uint64
	if dtype == DTypeSparseCOO {
		nnz, err := r.peekU32(field("nnz"))
		if err != nil {
			return Slice{}, err
		}
		want = sparseSize(len(shape), nnz)
	} else {
		want, err = DenseSize(dtype, shape)
		if err != nil {
			return Slice{}, r.fail(field("shape"), err)
		}
	}
	if want != uint64(declared) {
		return Slice{}, r.fail(field("payload"), fmt.Errorf("%w: %s shape %v derives %d bytes, table declares %d",
			protocol.ErrSizeMismatch, dtype, shape, want, declared))
	}

	payload, err := r.bytes(field("payload"), want)
	if err != nil {
		return Slice{}, err
	}
	return Slice{DType: dtype, Shape: shape, Payload: payload}, nil
}
