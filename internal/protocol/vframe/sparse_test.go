package vframe

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/resonant/internal/protocol"
	"github.com/danmuck/resonant/internal/testutil/testlog"
)

func TestSparseCOORoundTrip(t *testing.T) {
	testlog.Start(t)
	shape := []uint32{2, 3, 4}
	in := SparseCOO{
		Indices: [][]uint32{{0, 0, 0}, {1, 2, 3}, {1, 0, 2}},
		Values:  []uint16{0x3c00, 0x4000, 0xc000},
	}
	s, err := EncodeSparseCOO(shape, in)
	if err != nil {
		t.Fatalf("encode sparse: %v", err)
	}
	if got, want := len(s.Payload), 4+3*(4*3+2); got != want {
		t.Fatalf("payload len=%d want %d", got, want)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	out, err := ParseSparseCOO(s)
	if err != nil {
		t.Fatalf("parse sparse: %v", err)
	}
	if out.NNZ() != 3 || !reflect.DeepEqual(out, in) {
		t.Fatalf("sparse mismatch: %+v", out)
	}
}

func TestSparseCOOEmpty(t *testing.T) {
	testlog.Start(t)
	s, err := EncodeSparseCOO([]uint32{8}, SparseCOO{})
	if err != nil {
		t.Fatalf("encode empty: %v", err)
	}
	if len(s.Payload) != sparseCountSize {
		t.Fatalf("empty sparse payload len=%d", len(s.Payload))
	}
	out, err := ParseSparseCOO(s)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if out.NNZ() != 0 {
		t.Fatalf("nnz=%d", out.NNZ())
	}
}

func TestSparseCOORejectsOutOfRangeCoordinates(t *testing.T) {
	testlog.Start(t)
	if _, err := EncodeSparseCOO([]uint32{2, 2}, SparseCOO{
		Indices: [][]uint32{{2, 0}},
		Values:  []uint16{1},
	}); !errors.Is(err, protocol.ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}

	s, err := EncodeSparseCOO([]uint32{2, 2}, SparseCOO{
		Indices: [][]uint32{{1, 1}},
		Values:  []uint16{1},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Second coordinate of the first entry.
	binary.LittleEndian.PutUint32(s.Payload[sparseCountSize+4:], 5)
	if _, err := ParseSparseCOO(s); !errors.Is(err, protocol.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestSparseCOORejectsMismatchedEntries(t *testing.T) {
	testlog.Start(t)
	_, err := EncodeSparseCOO([]uint32{4}, SparseCOO{
		Indices: [][]uint32{{1}, {2}},
		Values:  []uint16{1},
	})
	if !errors.Is(err, protocol.ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
	_, err = EncodeSparseCOO([]uint32{4, 4}, SparseCOO{
		Indices: [][]uint32{{1}},
		Values:  []uint16{1},
	})
	if !errors.Is(err, protocol.ErrInvalidFrame) {
		t.Fatalf("rank mismatch: expected ErrInvalidFrame, got %v", err)
	}
}

func TestParseSparseCOORejectsDenseSlice(t *testing.T) {
	testlog.Start(t)
	_, err := ParseSparseCOO(Slice{DType: DTypeF16, Shape: []uint32{1}, Payload: []byte{0, 0}})
	if !errors.Is(err, protocol.ErrUnsupportedDtype) {
		t.Fatalf("expected ErrUnsupportedDtype, got %v", err)
	}
}

func TestDecodeSparseSliceInFrame(t *testing.T) {
	testlog.Start(t)
	s, err := EncodeSparseCOO([]uint32{16}, SparseCOO{
		Indices: [][]uint32{{3}, {15}},
		Values:  []uint16{0x3c00, 0x3800},
	})
	if err != nil {
		t.Fatalf("encode sparse: %v", err)
	}
	encoded := mustEncode(t, Frame{Version: Version, Type: MsgThink, Slices: []Slice{s}})

	// nnz sits after dtype, shape_len and one shape dim.
	nnzOff := HeaderSize + 4 + trailerSize + 2 + 4
	binary.LittleEndian.PutUint32(encoded[nnzOff:], 3)
	refreshChecksum(encoded)
	if _, err := Decode(encoded); !errors.Is(err, protocol.ErrSizeMismatch) {
		t.Fatalf("tampered nnz: expected ErrSizeMismatch, got %v", err)
	}
}
