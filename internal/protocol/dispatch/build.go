package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/resonant/internal/protocol"
	"github.com/danmuck/resonant/internal/protocol/vframe"
)

// TextSlice wraps a UTF-8 document as an I8 slice of shape [len].
func TextSlice(b []byte) vframe.Slice {
	return vframe.Slice{
		DType:   vframe.DTypeI8,
		Shape:   []uint32{uint32(len(b))},
		Payload: b,
	}
}

func jsonSlice(doc any) (vframe.Slice, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return vframe.Slice{}, fmt.Errorf("%w: %w", protocol.ErrInvalidFrame, err)
	}
	if _, err := decodeObject(b); err != nil {
		return vframe.Slice{}, fmt.Errorf("%w: %s", protocol.ErrInvalidFrame, err)
	}
	return TextSlice(b), nil
}

// NewSync builds a Sync frame whose single slice is doc marshaled as a JSON object.
func NewSync(h Header, doc any) (vframe.Frame, error) {
	s, err := jsonSlice(doc)
	if err != nil {
		return vframe.Frame{}, err
	}
	return h.frame(vframe.MsgSync, []vframe.Slice{s}), nil
}

// NewThink builds a Think frame from one or more latent slices.
func NewThink(h Header, slices ...vframe.Slice) (vframe.Frame, error) {
	if len(slices) == 0 {
		return vframe.Frame{}, fmt.Errorf("%w: think needs at least one slice", protocol.ErrInvalidFrame)
	}
	for i, s := range slices {
		if err := s.Validate(); err != nil {
			return vframe.Frame{}, fmt.Errorf("%w: slices[%d]: %w", protocol.ErrInvalidFrame, i, err)
		}
	}
	return h.frame(vframe.MsgThink, slices), nil
}

// NewCritique builds a Critique frame from a dense divergence vector and an
// explanation marshaled as a JSON object.
func NewCritique(h Header, divergence vframe.Slice, explanation any, extra ...vframe.Slice) (vframe.Frame, error) {
	if !divergence.DType.Dense() {
		return vframe.Frame{}, fmt.Errorf("%w: divergence dtype %s is not dense", protocol.ErrInvalidFrame, divergence.DType)
	}
	if err := divergence.Validate(); err != nil {
		return vframe.Frame{}, fmt.Errorf("%w: divergence: %w", protocol.ErrInvalidFrame, err)
	}
	expl, err := jsonSlice(explanation)
	if err != nil {
		return vframe.Frame{}, err
	}
	slices := make([]vframe.Slice, 0, 2+len(extra))
	slices = append(slices, divergence, expl)
	slices = append(slices, extra...)
	return h.frame(vframe.MsgCritique, slices), nil
}
