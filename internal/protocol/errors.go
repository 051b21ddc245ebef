package protocol

import "errors"

// Decode taxonomy shared by the frame codec and the dispatcher.
var (
	ErrTruncatedInput   = errors.New("protocol: truncated input")
	ErrSizeMismatch     = errors.New("protocol: size mismatch")
	ErrIntegrity        = errors.New("protocol: integrity check failed")
	ErrUnsupportedDtype = errors.New("protocol: unsupported dtype")
	ErrDecodeIncomplete = errors.New("protocol: decode incomplete")
	ErrMalformedPayload = errors.New("protocol: malformed payload")
	ErrFrameTooLarge    = errors.New("protocol: frame too large")
	ErrInvalidFrame     = errors.New("protocol: invalid frame")
)

// Kind names the taxonomy entry err belongs to, for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTruncatedInput):
		return "truncated_input"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrSizeMismatch):
		return "size_mismatch"
	case errors.Is(err, ErrUnsupportedDtype):
		return "unsupported_dtype"
	case errors.Is(err, ErrDecodeIncomplete):
		return "decode_incomplete"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(err, ErrInvalidFrame):
		return "invalid_frame"
	default:
		return "other"
	}
}
