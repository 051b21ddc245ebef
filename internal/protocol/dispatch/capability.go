package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/danmuck/resonant/internal/protocol"
	"github.com/danmuck/resonant/internal/protocol/vframe"
)

const (
	MethodPing       = "ping"
	MethodCapability = "capability"
)

// ProtoVersion is the handshake protocol revision advertised in capabilities.
const ProtoVersion = 1

// Capability is the JSON document a peer answers a ping with.
type Capability struct {
	Method           string         `json:"method"`
	V                uint32         `json:"v"`
	AgreedProto      uint32         `json:"agreed_proto"`
	DModel           uint32         `json:"d_model"`
	EmbeddingSpaceID string         `json:"embedding_space_id"`
	SpaceHash32      uint32         `json:"space_hash32"`
	Compress         []string       `json:"compress"`
	Crypto           []string       `json:"crypto"`
	Supports         map[string]any `json:"supports,omitempty"`
}

// NewCapability describes what this codec can accept. Compress and Crypto are
// empty since no transform is applied to payloads.
func NewCapability(dModel uint32, embeddingSpaceID string, spaceHash uint32) Capability {
	return Capability{
		Method:           MethodCapability,
		V:                ProtoVersion,
		AgreedProto:      ProtoVersion,
		DModel:           dModel,
		EmbeddingSpaceID: embeddingSpaceID,
		SpaceHash32:      spaceHash,
		Compress:         []string{},
		Crypto:           []string{},
		Supports: map[string]any{
			"critique": true,
			"dtype":    []string{"f16", "i8", "q4", "sparse"},
		},
	}
}

// Capability decodes the handshake as a capability document.
func (h Handshake) Capability() (Capability, error) {
	if h.Method() != MethodCapability {
		return Capability{}, &DispatchError{
			Type:   vframe.MsgSync,
			Reason: fmt.Sprintf("method %q is not %q", h.Method(), MethodCapability),
			Err:    protocol.ErrMalformedPayload,
		}
	}
	var c Capability
	if err := json.Unmarshal(h.Raw, &c); err != nil {
		return Capability{}, &DispatchError{Type: vframe.MsgSync, Reason: "capability: " + err.Error(), Err: protocol.ErrMalformedPayload}
	}
	return c, nil
}

// Ping builds the Sync frame that opens a handshake.
func Ping(h Header, ts time.Time) (vframe.Frame, error) {
	return NewSync(h, map[string]any{
		"method": MethodPing,
		"ts":     ts.Unix(),
	})
}
