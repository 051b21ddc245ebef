package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/resonant/internal/config"
	"github.com/danmuck/resonant/internal/observability"
	"github.com/danmuck/resonant/internal/protocol/dispatch"
	"github.com/danmuck/resonant/internal/protocol/vframe"
	"github.com/danmuck/resonant/internal/transport/udp"
	"github.com/rs/zerolog/log"
)

func main() {
	planPath := flag.String("plan", "", "send plan TOML (defaults to ping + think)")
	peer := flag.String("peer", "", "override the plan's peer address")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "vframe-send: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("vframe-send")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *planPath, *peer); err != nil {
		log.Error().Err(err).Msg("vframe-send failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, planPath, peer string) error {
	plan := defaultPlan()
	if planPath != "" {
		var err error
		if plan, err = loadPlan(planPath); err != nil {
			return err
		}
	}
	switch {
	case peer != "":
		plan.Peer = peer
	case os.Getenv(config.EnvPeer) != "":
		plan.Peer = os.Getenv(config.EnvPeer)
	}

	frames, err := plan.Build(time.Now())
	if err != nil {
		return err
	}

	conn, err := udp.Listen(ctx, plan.Listen, udp.Options{Node: "vframe-send"})
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info().
		Str("peer", plan.Peer).
		Uint32("stream_id", plan.Header.StreamID).
		Int("frames", len(frames)).
		Msg("sending plan")

	for i, f := range frames {
		if err := conn.SendTo(ctx, plan.Peer, f); err != nil {
			return fmt.Errorf("frame %d (%s): %w", i, f.Type, err)
		}
		log.Info().Stringer("msg_type", f.Type).Uint64("seq", f.Seq).Int("bytes", f.Size()).Msg("sent")

		if f.Type == vframe.MsgSync && plan.AwaitReply > 0 {
			awaitCapability(ctx, conn, plan.AwaitReply)
		}
		if plan.Interval > 0 && i < len(frames)-1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(plan.Interval):
			}
		}
	}
	return nil
}

// awaitCapability logs the peer's capability answer. A missing reply is not fatal.
func awaitCapability(ctx context.Context, conn *udp.Conn, wait time.Duration) {
	replyCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	d, err := conn.Receive(replyCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("wait", wait).Msg("no capability reply")
			return
		}
		log.Warn().Err(err).Msg("capability reply unreadable")
		return
	}
	msg, err := dispatch.Dispatch(d.Frame)
	if err != nil {
		log.Warn().Err(err).Msg("capability reply rejected")
		return
	}
	hs, ok := msg.(dispatch.Handshake)
	if !ok {
		log.Warn().Stringer("msg_type", msg.Type()).Msg("unexpected reply to ping")
		return
	}
	capability, err := hs.Capability()
	if err != nil {
		log.Warn().Err(err).Msg("reply is not a capability")
		return
	}
	log.Info().
		Uint32("d_model", capability.DModel).
		Str("embedding_space_id", capability.EmbeddingSpaceID).
		Uint32("space_hash32", capability.SpaceHash32).
		Uint32("agreed_proto", capability.AgreedProto).
		Msg("capability received")
}
