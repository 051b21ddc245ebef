package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/resonant/internal/config"
	"github.com/danmuck/resonant/internal/observability"
	"github.com/danmuck/resonant/internal/protocol"
	"github.com/danmuck/resonant/internal/protocol/dispatch"
	"github.com/danmuck/resonant/internal/protocol/vframe"
	"github.com/danmuck/resonant/internal/server"
	"github.com/danmuck/resonant/internal/transport/udp"
	"github.com/rs/zerolog/log"
)

const dropSpaceHash = "space_hash"

// Receiver listens for frames, dispatches them, and answers pings with a
// capability handshake.
type Receiver struct {
	cfg      config.AgentConfig
	modality vframe.Modality
	tally    *server.Tally
	admin    *server.Admin

	mu       sync.Mutex
	conn     *udp.Conn
	observer func(dispatch.Message)
}

func NewReceiver(cfg config.AgentConfig) (*Receiver, error) {
	if err := config.ValidateAgentConfig(cfg); err != nil {
		return nil, err
	}
	modality, err := cfg.ModalityValue()
	if err != nil {
		return nil, err
	}
	tally := server.NewTally()
	return &Receiver{
		cfg:      cfg,
		modality: modality,
		tally:    tally,
		admin:    server.NewAdmin(cfg.Name, cfg.CorsOrigins, tally),
	}, nil
}

func (r *Receiver) Admin() *server.Admin {
	return r.admin
}

// Observe registers fn to see every dispatched message.
func (r *Receiver) Observe(fn func(dispatch.Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// Addr returns the bound UDP address once Run has started listening.
func (r *Receiver) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return ""
	}
	return r.conn.LocalAddr().String()
}

// Run binds the UDP listener and, when configured, the admin server, and
// serves until ctx ends.
func (r *Receiver) Run(ctx context.Context) error {
	conn, err := udp.Listen(ctx, r.cfg.Listen, udp.Options{
		Node:   r.cfg.Name,
		Limits: r.cfg.DecodeLimits(),
		OnReject: func(fe *udp.FrameError) {
			r.tally.Rejected(protocol.Kind(fe.Err))
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.admin.SetReady(true)
	defer r.admin.SetReady(false)

	log.Info().
		Str("node", r.cfg.Name).
		Str("listen", conn.LocalAddr().String()).
		Uint32("space_hash32", r.cfg.SpaceHash).
		Str("embedding_space_id", r.cfg.EmbeddingSpaceID).
		Msg("receiver ready")

	adminErr := make(chan error, 1)
	if strings.TrimSpace(r.cfg.AdminAddr) != "" {
		go func() {
			adminErr <- r.admin.Run(ctx, strings.TrimSpace(r.cfg.AdminAddr))
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- conn.Serve(ctx, r.Handle)
	}()

	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			_ = conn.Close()
			<-serveErr
			return fmt.Errorf("admin server: %w", err)
		}
		return <-serveErr
	}
}

// Admits reports whether a frame's space hash is acceptable. Zero on either
// side means unconstrained.
func (r *Receiver) Admits(spaceHash uint32) bool {
	return r.cfg.SpaceHash == 0 || spaceHash == 0 || spaceHash == r.cfg.SpaceHash
}

// Handle processes one decoded datagram.
func (r *Receiver) Handle(ctx context.Context, c *udp.Conn, d udp.Datagram) error {
	f := d.Frame
	if !r.Admits(f.SpaceHash) {
		r.tally.Dropped(dropSpaceHash)
		observability.RecordFrameDropped(r.cfg.Name, dropSpaceHash)
		log.Warn().
			Str("node", r.cfg.Name).
			Str("from", d.From.String()).
			Uint32("space_hash32", f.SpaceHash).
			Uint32("want", r.cfg.SpaceHash).
			Msg("frame dropped: embedding space mismatch")
		return nil
	}

	msg, err := dispatch.Dispatch(f)
	if err != nil {
		kind := protocol.Kind(err)
		r.tally.Rejected(kind)
		observability.RecordDecodeError(r.cfg.Name, "dispatch", kind)
		return err
	}
	r.tally.Received(msg.Type().String())
	r.logMessage(d, msg)

	r.mu.Lock()
	observer := r.observer
	r.mu.Unlock()
	if observer != nil {
		observer(msg)
	}

	if hs, ok := msg.(dispatch.Handshake); ok && hs.Method() == dispatch.MethodPing {
		return r.replyCapability(ctx, c, d, hs)
	}
	return nil
}

func (r *Receiver) replyCapability(ctx context.Context, c *udp.Conn, d udp.Datagram, ping dispatch.Handshake) error {
	h := dispatch.Header{
		Version:   ping.Version,
		StreamID:  ping.StreamID,
		Seq:       ping.Seq,
		SpaceHash: r.cfg.SpaceHash,
		Modality:  r.modality,
	}
	reply, err := dispatch.NewSync(h, dispatch.NewCapability(r.cfg.DModel, r.cfg.EmbeddingSpaceID, r.cfg.SpaceHash))
	if err != nil {
		return err
	}
	if err := c.Send(ctx, d.From, reply); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("capability reply: %w", err)
	}
	r.tally.Replied()
	log.Info().Str("node", r.cfg.Name).Str("to", d.From.String()).Uint32("stream_id", h.StreamID).Msg("capability sent")
	return nil
}

func (r *Receiver) logMessage(d udp.Datagram, msg dispatch.Message) {
	h := msg.Meta()
	event := log.Info().
		Str("node", r.cfg.Name).
		Str("from", d.From.String()).
		Stringer("msg_type", msg.Type()).
		Uint32("stream_id", h.StreamID).
		Uint64("seq", h.Seq).
		Stringer("modality", h.Modality).
		Uint16("flags", uint16(h.Flags)).
		Int("bytes", d.Size)

	switch m := msg.(type) {
	case dispatch.Handshake:
		event.Str("method", m.Method()).Msg("handshake")
	case dispatch.Thought:
		for i, s := range m.Slices {
			log.Debug().Int("slice", i).Stringer("dtype", s.DType).Interface("shape", s.Shape).Int("bytes", len(s.Payload)).Msg("latent slice")
		}
		event.Int("slices", len(m.Slices)).Msg("think")
	case dispatch.Critique:
		event.
			Stringer("divergence_dtype", m.Divergence.DType).
			Interface("divergence_shape", m.Divergence.Shape).
			Interface("explanation", m.Explanation).
			Int("extra", len(m.Extra)).
			Msg("critique")
	case dispatch.Passthrough:
		event.Int("slices", len(m.Slices)).Msg("passthrough")
	case dispatch.Unknown:
		event.Int("slices", len(m.Frame.Slices)).Msg("unknown msg_type")
	}
}
