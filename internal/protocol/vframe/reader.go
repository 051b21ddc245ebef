package vframe

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/resonant/internal/protocol"
)

// DecodeError locates a decode failure within the input buffer.
type DecodeError struct {
	Field  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("vframe: %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// reader is a bounds-checked little-endian cursor. Every read checks the
// remaining length first and never indexes past the end of buf.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) fail(field string, err error) error {
	return &DecodeError{Field: field, Offset: r.off, Err: err}
}

func (r *reader) need(field string, n int) error {
	if n < 0 || r.remaining() < n {
		return r.fail(field, fmt.Errorf("%w: need %d bytes, have %d", protocol.ErrTruncatedInput, n, r.remaining()))
	}
	return nil
}

func (r *reader) u8(field string) (uint8, error) {
	if err := r.need(field, 1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16(field string) (uint16, error) {
	if err := r.need(field, 2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32(field string) (uint32, error) {
	if err := r.need(field, 4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64(field string) (uint64, error) {
	if err := r.need(field, 8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// bytes copies n bytes out of the buffer so decoded frames own their memory.
func (r *reader) bytes(field string, n uint64) ([]byte, error) {
	if n > uint64(r.remaining()) {
		return nil, r.fail(field, fmt.Errorf("%w: need %d bytes, have %d", protocol.ErrTruncatedInput, n, r.remaining()))
	}
	end := r.off + int(n)
	out := append([]byte(nil), r.buf[r.off:end]...)
	r.off = end
	return out, nil
}

// peekU32 reads without advancing.
func (r *reader) peekU32(field string) (uint32, error) {
	if err := r.need(field, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[r.off:]), nil
}
