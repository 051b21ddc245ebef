package vframe

import (
	"fmt"
	"math/bits"

	"github.com/danmuck/resonant/internal/protocol"
)

// DType is the element type of a slice payload.
type DType uint8

const (
	DTypeF16       DType = 0x01
	DTypeI8        DType = 0x02
	DTypeQ4        DType = 0x03
	DTypeSparseCOO DType = 0x10
)

// ParseDType rejects any byte outside the defined dtype set.
func ParseDType(b byte) (DType, error) {
	switch d := DType(b); d {
	case DTypeF16, DTypeI8, DTypeQ4, DTypeSparseCOO:
		return d, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02x", protocol.ErrUnsupportedDtype, b)
	}
}

// Dense reports whether the payload size is a fixed function of the element count.
func (d DType) Dense() bool {
	switch d {
	case DTypeF16, DTypeI8, DTypeQ4:
		return true
	default:
		return false
	}
}

func (d DType) String() string {
	switch d {
	case DTypeF16:
		return "f16"
	case DTypeI8:
		return "i8"
	case DTypeQ4:
		return "q4"
	case DTypeSparseCOO:
		return "sparse_coo"
	default:
		return fmt.Sprintf("dtype(0x%02x)", uint8(d))
	}
}

// ElementCount is the product of shape; an empty shape is a scalar.
func ElementCount(shape []uint32) (uint64, error) {
	n := uint64(1)
	for _, dim := range shape {
		hi, lo := bits.Mul64(n, uint64(dim))
		if hi != 0 {
			return 0, fmt.Errorf("%w: element count overflows shape %v", protocol.ErrSizeMismatch, shape)
		}
		n = lo
	}
	return n, nil
}

// DenseSize derives the payload size of a dense slice.
// Q4 packs two elements per byte, low nibble first, rounding up.
func DenseSize(d DType, shape []uint32) (uint64, error) {
	n, err := ElementCount(shape)
	if err != nil {
		return 0, err
	}
	switch d {
	case DTypeF16:
		if n > (1<<63)-1 {
			return 0, fmt.Errorf("%w: f16 payload overflows shape %v", protocol.ErrSizeMismatch, shape)
		}
		return n * 2, nil
	case DTypeI8:
		return n, nil
	case DTypeQ4:
		return n/2 + n%2, nil
	default:
		return 0, fmt.Errorf("%w: %s has no dense size", protocol.ErrUnsupportedDtype, d)
	}
}
