package udp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/resonant/internal/protocol"
	"github.com/danmuck/resonant/internal/protocol/dispatch"
	"github.com/danmuck/resonant/internal/protocol/vframe"
	"github.com/danmuck/resonant/internal/testutil/testlog"
)

func listenLoopback(t *testing.T, opts Options) *Conn {
	t.Helper()
	c, err := Listen(context.Background(), "127.0.0.1:0", opts)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func thinkFrame(t *testing.T, seq uint64) vframe.Frame {
	t.Helper()
	f, err := dispatch.NewThink(dispatch.Header{StreamID: 42, Seq: seq, SpaceHash: 2451163210}, vframe.Slice{
		DType:   vframe.DTypeF16,
		Shape:   []uint32{1, 2048},
		Payload: make([]byte, 4096),
	})
	if err != nil {
		t.Fatalf("build think: %v", err)
	}
	return f
}

func TestSendReceiveLoopback(t *testing.T) {
	testlog.Start(t)
	a := listenLoopback(t, Options{Node: "a"})
	b := listenLoopback(t, Options{Node: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	want := thinkFrame(t, 1)
	if err := a.Send(ctx, b.LocalAddr(), want); err != nil {
		t.Fatalf("send: %v", err)
	}
	d, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if d.Size != want.Size() {
		t.Fatalf("size=%d want %d", d.Size, want.Size())
	}
	if d.Frame.Type != vframe.MsgThink || d.Frame.Seq != 1 || d.Frame.StreamID != 42 {
		t.Fatalf("unexpected frame: %+v", d.Frame)
	}
	if len(d.Frame.Slices) != 1 || len(d.Frame.Slices[0].Payload) != 4096 {
		t.Fatalf("unexpected slices: %+v", d.Frame.Slices)
	}
	if d.From.String() != a.LocalAddr().String() {
		t.Fatalf("from=%s want %s", d.From, a.LocalAddr())
	}
}

func TestReceiveRejectsCorruptDatagram(t *testing.T) {
	testlog.Start(t)
	b := listenLoopback(t, Options{Node: "b"})
	raw, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("raw listen: %v", err)
	}
	defer raw.Close()

	encoded, err := vframe.Encode(thinkFrame(t, 2))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	encoded[40] ^= 0x10
	if _, err := raw.WriteTo(encoded, b.LocalAddr()); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = b.Receive(ctx)
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FrameError, got %v", err)
	}
	if !errors.Is(err, protocol.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestReceiveHonorsContext(t *testing.T) {
	testlog.Start(t)
	c := listenLoopback(t, Options{Node: "idle"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Receive(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	ctx, cancel = context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := c.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestSendRejectsOversizedFrame(t *testing.T) {
	testlog.Start(t)
	c := listenLoopback(t, Options{Node: "small", Limits: vframe.Limits{MaxFrameBytes: 512}})
	err := c.Send(context.Background(), c.LocalAddr(), thinkFrame(t, 0))
	if !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestServeDeliversInOrderAndSkipsGarbage(t *testing.T) {
	testlog.Start(t)
	a := listenLoopback(t, Options{Node: "a"})
	b := listenLoopback(t, Options{Node: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan uint64, 4)
	done := make(chan error, 1)
	go func() {
		done <- b.Serve(ctx, func(_ context.Context, _ *Conn, d Datagram) error {
			got <- d.Frame.Seq
			return nil
		})
	}()

	sendCtx, sendCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer sendCancel()
	if err := a.Send(sendCtx, b.LocalAddr(), thinkFrame(t, 1)); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if _, err := a.pc.WriteTo([]byte{0x01, 0x00}, b.LocalAddr()); err != nil {
		t.Fatalf("send garbage: %v", err)
	}
	if err := a.SendTo(sendCtx, b.LocalAddr().String(), thinkFrame(t, 2)); err != nil {
		t.Fatalf("send 2: %v", err)
	}

	for _, want := range []uint64{1, 2} {
		select {
		case seq := <-got:
			if seq != want {
				t.Fatalf("seq=%d want %d", seq, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for seq %d", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop after cancel")
	}
}

func TestCloseStopsServe(t *testing.T) {
	testlog.Start(t)
	c := listenLoopback(t, Options{})
	done := make(chan error, 1)
	go func() {
		done <- c.Serve(context.Background(), func(context.Context, *Conn, Datagram) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve after close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop after close")
	}
	if err := c.SendTo(context.Background(), "127.0.0.1:9", thinkFrame(t, 0)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestListenRequiresAddress(t *testing.T) {
	testlog.Start(t)
	if _, err := Listen(context.Background(), " ", Options{}); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}
