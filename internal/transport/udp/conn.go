package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/resonant/internal/observability"
	"github.com/danmuck/resonant/internal/protocol"
	"github.com/danmuck/resonant/internal/protocol/vframe"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("udp: address required")
	ErrClosed          = errors.New("udp: conn closed")
)

// maxDatagram is the largest UDP payload over IPv4 or IPv6 without jumbograms.
const maxDatagram = 64 * 1024

// Options tune one Conn. Zero durations disable the matching deadline.
type Options struct {
	Node         string
	Limits       vframe.Limits
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// OnReject, when set, sees every datagram Serve skips.
	OnReject func(*FrameError)
}

func DefaultOptions() Options {
	return Options{
		Node:         "resonant",
		Limits:       vframe.DefaultLimits(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// WithDefaults fills the node label and limits when unset.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if strings.TrimSpace(o.Node) == "" {
		o.Node = d.Node
	}
	if o.Limits == (vframe.Limits{}) {
		o.Limits = d.Limits
	}
	return o
}

// Datagram is one decoded frame and its sender.
type Datagram struct {
	From  net.Addr
	Size  int
	Frame vframe.Frame
}

// FrameError is a datagram that arrived but did not decode. The socket is
// still usable.
type FrameError struct {
	From net.Addr
	Size int
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("udp: frame from %s (%d bytes): %v", e.From, e.Size, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Handler is called once per decoded datagram. A returned error is logged
// and does not stop Serve.
type Handler func(ctx context.Context, c *Conn, d Datagram) error

// Conn sends and receives whole V-Frames, one per datagram.
type Conn struct {
	pc        net.PacketConn
	opts      Options
	closeOnce sync.Once
	closeErr  error
}

// Listen binds a UDP socket on addr; ":0" picks a free port.
func Listen(ctx context.Context, addr string, opts Options) (*Conn, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddressRequired
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %s: %w", addr, err)
	}
	c := &Conn{pc: pc, opts: opts.WithDefaults()}
	log.Info().Str("node", c.opts.Node).Str("addr", pc.LocalAddr().String()).Msg("udp listening")
	return c, nil
}

func (c *Conn) LocalAddr() net.Addr {
	return c.pc.LocalAddr()
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.pc.Close()
	})
	return c.closeErr
}

// Send encodes f and writes it to addr as a single datagram.
func (c *Conn) Send(ctx context.Context, addr net.Addr, f vframe.Frame) error {
	if addr == nil {
		return ErrAddressRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := vframe.Encode(f)
	if err != nil {
		return err
	}
	if limit := c.sendLimit(); len(b) > limit {
		return fmt.Errorf("%w: %d bytes, max %d", protocol.ErrFrameTooLarge, len(b), limit)
	}
	if err := c.pc.SetWriteDeadline(c.deadline(ctx, c.opts.WriteTimeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	if _, err := c.pc.WriteTo(b, addr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("udp: send to %s: %w", addr, err)
	}
	observability.RecordFrameSent(c.opts.Node, f.Type.String(), len(b))
	log.Debug().
		Str("node", c.opts.Node).
		Str("to", addr.String()).
		Stringer("msg_type", f.Type).
		Uint32("stream_id", f.StreamID).
		Uint64("seq", f.Seq).
		Int("bytes", len(b)).
		Msg("udp frame sent")
	return nil
}

// SendTo resolves addr and sends f to it.
func (c *Conn) SendTo(ctx context.Context, addr string, f vframe.Frame) error {
	if strings.TrimSpace(addr) == "" {
		return ErrAddressRequired
	}
	to, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("udp: resolve %s: %w", addr, err)
	}
	return c.Send(ctx, to, f)
}

// Receive waits for the next datagram. It returns ctx.Err() when ctx ends and
// a *FrameError when a datagram arrives but fails to decode.
func (c *Conn) Receive(ctx context.Context) (Datagram, error) {
	return c.receive(ctx, c.newBuffer(), c.opts.ReadTimeout)
}

// Serve receives until ctx ends or the conn is closed, passing every decoded
// datagram to h in arrival order. Undecodable datagrams are logged and skipped.
func (c *Conn) Serve(ctx context.Context, h Handler) error {
	buf := c.newBuffer()
	for {
		d, err := c.receive(ctx, buf, 0)
		if err != nil {
			var fe *FrameError
			switch {
			case ctx.Err() != nil, errors.Is(err, ErrClosed):
				return nil
			case errors.As(err, &fe):
				if c.opts.OnReject != nil {
					c.opts.OnReject(fe)
				}
				continue
			default:
				return err
			}
		}
		if err := h(ctx, c, d); err != nil {
			log.Warn().
				Err(err).
				Str("node", c.opts.Node).
				Str("from", d.From.String()).
				Stringer("msg_type", d.Frame.Type).
				Msg("udp handler failed")
		}
	}
}

func (c *Conn) receive(ctx context.Context, buf []byte, idle time.Duration) (Datagram, error) {
	if err := ctx.Err(); err != nil {
		return Datagram{}, err
	}
	if err := c.pc.SetReadDeadline(c.deadline(ctx, idle)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return Datagram{}, ErrClosed
		}
		return Datagram{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.pc.SetReadDeadline(time.Now())
	})
	defer stop()

	n, from, err := c.pc.ReadFrom(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Datagram{}, ctxErr
		}
		if errors.Is(err, net.ErrClosed) {
			return Datagram{}, ErrClosed
		}
		return Datagram{}, fmt.Errorf("udp: receive: %w", err)
	}

	f, err := vframe.DecodeWithLimits(buf[:n], c.opts.Limits)
	if err != nil {
		kind := protocol.Kind(err)
		observability.RecordDecodeError(c.opts.Node, "codec", kind)
		log.Warn().
			Err(err).
			Str("node", c.opts.Node).
			Str("from", from.String()).
			Int("bytes", n).
			Str("kind", kind).
			Msg("udp frame rejected")
		return Datagram{}, &FrameError{From: from, Size: n, Err: err}
	}
	observability.RecordFrameReceived(c.opts.Node, f.Type.String(), n)
	log.Debug().
		Str("node", c.opts.Node).
		Str("from", from.String()).
		Stringer("msg_type", f.Type).
		Uint32("stream_id", f.StreamID).
		Uint64("seq", f.Seq).
		Int("bytes", n).
		Msg("udp frame received")
	return Datagram{From: from, Size: n, Frame: f}, nil
}

// deadline caps timeout by the context deadline. Zero means no deadline.
func (c *Conn) deadline(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline
}

func (c *Conn) sendLimit() int {
	if c.opts.Limits.MaxFrameBytes > 0 && c.opts.Limits.MaxFrameBytes < maxDatagram {
		return c.opts.Limits.MaxFrameBytes
	}
	return maxDatagram
}

// newBuffer leaves one spare byte so an oversized datagram is seen as such
// instead of being silently cut to the limit.
func (c *Conn) newBuffer() []byte {
	return make([]byte, c.sendLimit()+1)
}
