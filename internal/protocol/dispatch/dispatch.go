package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/danmuck/resonant/internal/protocol"
	"github.com/danmuck/resonant/internal/protocol/vframe"
	"github.com/rs/zerolog/log"
)

// DispatchError reports why a frame could not be interpreted as its msg_type.
type DispatchError struct {
	Type   vframe.MsgType
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch: msg_type=%s: %s: %v", e.Type, e.Reason, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// slot bounds the slice count of a message type. max 0 is unbounded.
type slot struct {
	min int
	max int
}

var requirements = map[vframe.MsgType]slot{
	vframe.MsgSync:     {min: 1, max: 1},
	vframe.MsgThink:    {min: 1},
	vframe.MsgCritique: {min: 2},
}

func checkSlices(t vframe.MsgType, n int) error {
	req, ok := requirements[t]
	if !ok {
		return nil
	}
	if n < req.min {
		return &DispatchError{
			Type:   t,
			Reason: fmt.Sprintf("need at least %d slices, got %d", req.min, n),
			Err:    protocol.ErrDecodeIncomplete,
		}
	}
	if req.max > 0 && n > req.max {
		return &DispatchError{
			Type:   t,
			Reason: fmt.Sprintf("expected at most %d slices, got %d", req.max, n),
			Err:    protocol.ErrMalformedPayload,
		}
	}
	return nil
}

// Dispatch interprets a decoded frame according to its msg_type.
// Unknown message types yield an Unknown message, not an error.
func Dispatch(f vframe.Frame) (Message, error) {
	log.Debug().
		Stringer("msg_type", f.Type).
		Uint32("stream_id", f.StreamID).
		Uint64("seq", f.Seq).
		Int("slices", len(f.Slices)).
		Msg("dispatch")

	if err := checkSlices(f.Type, len(f.Slices)); err != nil {
		return nil, err
	}
	h := HeaderOf(f)

	switch f.Type {
	case vframe.MsgSync:
		fields, err := decodeObject(f.Slices[0].Payload)
		if err != nil {
			return nil, &DispatchError{Type: f.Type, Reason: "slice 0: " + err.Error(), Err: protocol.ErrMalformedPayload}
		}
		return Handshake{Header: h, Fields: fields, Raw: f.Slices[0].Payload}, nil

	case vframe.MsgThink:
		return Thought{Header: h, Slices: f.Slices}, nil

	case vframe.MsgCritique:
		div := f.Slices[0]
		if !div.DType.Dense() {
			return nil, &DispatchError{
				Type:   f.Type,
				Reason: fmt.Sprintf("divergence must be dense, got %s", div.DType),
				Err:    protocol.ErrUnsupportedDtype,
			}
		}
		explanation, err := decodeObject(f.Slices[1].Payload)
		if err != nil {
			return nil, &DispatchError{Type: f.Type, Reason: "slice 1: " + err.Error(), Err: protocol.ErrMalformedPayload}
		}
		var extra []vframe.Slice
		if len(f.Slices) > 2 {
			extra = f.Slices[2:]
		}
		return Critique{Header: h, Divergence: div, Explanation: explanation, Extra: extra}, nil

	case vframe.MsgCache, vframe.MsgAsk:
		return Passthrough{Header: h, Kind: f.Type, Slices: f.Slices}, nil

	default:
		log.Debug().Stringer("msg_type", f.Type).Msg("dispatch unknown msg_type")
		return Unknown{Frame: f}, nil
	}
}

// decodeObject parses b as exactly one UTF-8 JSON object. Numbers are kept
// as json.Number so integer fields survive without float rounding.
func decodeObject(b []byte) (map[string]any, error) {
	if !utf8.Valid(b) {
		return nil, errors.New("payload is not valid UTF-8")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("payload is not JSON: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("payload is not a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	return obj, nil
}
