package agent

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/resonant/internal/config"
	"github.com/danmuck/resonant/internal/protocol/dispatch"
	"github.com/danmuck/resonant/internal/protocol/vframe"
	"github.com/danmuck/resonant/internal/server"
	"github.com/danmuck/resonant/internal/testutil/testlog"
	"github.com/danmuck/resonant/internal/transport/udp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpaceHash = 2451163210

func startReceiver(t *testing.T) (*Receiver, <-chan dispatch.Message) {
	t.Helper()
	cfg := config.AgentConfig{
		Name:             "recv-test",
		Listen:           "127.0.0.1:0",
		SpaceHash:        testSpaceHash,
		EmbeddingSpaceID: "universal-llm-v3",
		DModel:           4096,
		Modality:         "text",
	}
	r, err := NewReceiver(cfg)
	require.NoError(t, err)

	seen := make(chan dispatch.Message, 16)
	r.Observe(func(m dispatch.Message) { seen <- m })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Errorf("receiver did not stop")
		}
	})

	require.Eventually(t, func() bool { return r.Addr() != "" }, 2*time.Second, 5*time.Millisecond)
	return r, seen
}

func dialer(t *testing.T) *udp.Conn {
	t.Helper()
	c, err := udp.Listen(context.Background(), "127.0.0.1:0", udp.Options{Node: "send-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestReceiverAnswersPingWithCapability(t *testing.T) {
	testlog.Start(t)
	r, seen := startReceiver(t)
	client := dialer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ping, err := dispatch.Ping(dispatch.Header{StreamID: 0x1234, SpaceHash: testSpaceHash}, time.Unix(1730616000, 0))
	require.NoError(t, err)
	require.NoError(t, client.SendTo(ctx, r.Addr(), ping))

	d, err := client.Receive(ctx)
	require.NoError(t, err)
	msg, err := dispatch.Dispatch(d.Frame)
	require.NoError(t, err)
	hs, ok := msg.(dispatch.Handshake)
	require.True(t, ok, "expected handshake reply, got %T", msg)

	capability, err := hs.Capability()
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), capability.DModel)
	assert.Equal(t, "universal-llm-v3", capability.EmbeddingSpaceID)
	assert.Equal(t, uint32(testSpaceHash), capability.SpaceHash32)
	assert.Equal(t, uint32(0x1234), d.Frame.StreamID)

	select {
	case m := <-seen:
		assert.Equal(t, vframe.MsgSync, m.Type())
	case <-time.After(time.Second):
		t.Fatalf("ping was not observed")
	}
	require.Eventually(t, func() bool { return r.Admin().Stats().Snapshot().Replies == 1 }, time.Second, 5*time.Millisecond)
}

func TestReceiverDropsForeignEmbeddingSpace(t *testing.T) {
	testlog.Start(t)
	r, seen := startReceiver(t)
	client := dialer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	latent := vframe.Slice{DType: vframe.DTypeF16, Shape: []uint32{1, 8}, Payload: make([]byte, 16)}
	foreign, err := dispatch.NewThink(dispatch.Header{StreamID: 1, SpaceHash: 0xdead}, latent)
	require.NoError(t, err)
	local, err := dispatch.NewThink(dispatch.Header{StreamID: 1, Seq: 1, SpaceHash: testSpaceHash}, latent)
	require.NoError(t, err)

	require.NoError(t, client.SendTo(ctx, r.Addr(), foreign))
	require.NoError(t, client.SendTo(ctx, r.Addr(), local))

	select {
	case m := <-seen:
		thought, ok := m.(dispatch.Thought)
		require.True(t, ok, "expected Thought, got %T", m)
		assert.Equal(t, uint64(1), thought.Seq)
	case <-time.After(time.Second):
		t.Fatalf("local think was not observed")
	}

	stats := r.Admin().Stats().Snapshot()
	assert.Equal(t, uint64(1), stats.Dropped[dropSpaceHash])
	assert.Equal(t, uint64(1), stats.Received["think"])
}

func TestReceiverCountsRejectedFrames(t *testing.T) {
	testlog.Start(t)
	r, _ := startReceiver(t)
	client := dialer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	critique := vframe.Frame{
		Version:   vframe.Version,
		Type:      vframe.MsgCritique,
		SpaceHash: testSpaceHash,
		Slices:    []vframe.Slice{{DType: vframe.DTypeF16, Shape: []uint32{2}, Payload: make([]byte, 4)}},
	}
	require.NoError(t, client.SendTo(ctx, r.Addr(), critique))

	require.Eventually(t, func() bool {
		return r.Admin().Stats().Snapshot().Rejected["decode_incomplete"] == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAdmits(t *testing.T) {
	testlog.Start(t)
	r := &Receiver{cfg: config.AgentConfig{SpaceHash: 7}, tally: server.NewTally()}
	assert.True(t, r.Admits(7))
	assert.True(t, r.Admits(0))
	assert.False(t, r.Admits(8))

	open := &Receiver{cfg: config.AgentConfig{}}
	assert.True(t, open.Admits(8))
}

func TestNewReceiverValidatesConfig(t *testing.T) {
	testlog.Start(t)
	_, err := NewReceiver(config.AgentConfig{Name: "x", Listen: "bad", Modality: "text"})
	require.Error(t, err)
}
