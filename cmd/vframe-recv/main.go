package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/resonant/internal/agent"
	"github.com/danmuck/resonant/internal/config"
	"github.com/danmuck/resonant/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "agent config TOML (defaults apply when empty)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "vframe-recv: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("vframe-recv")

	cfg := config.DefaultAgentConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAgentConfig(*configPath); err != nil {
			log.Error().Err(err).Msg("vframe-recv config")
			os.Exit(1)
		}
	}

	receiver, err := agent.NewReceiver(cfg)
	if err != nil {
		log.Error().Err(err).Msg("vframe-recv setup")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := receiver.Run(ctx); err != nil {
		log.Error().Err(err).Msg("vframe-recv stopped")
		os.Exit(1)
	}
}
