package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	EnvListen    = "RESONANT_LISTEN"
	EnvPeer      = "RESONANT_PEER"
	EnvAdminAddr = "RESONANT_ADMIN_ADDR"
	EnvSpaceHash = "RESONANT_SPACE_HASH32"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("dotenv load failed (%s): %w", path, err)
		}
		log.Debug().Str("path", path).Msg("dotenv loaded")
	}
	return nil
}

// ApplyEnv overrides addresses and the admitted space hash from the environment.
func ApplyEnv(cfg *AgentConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPeer)); v != "" {
		cfg.Peer = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAdminAddr)); v != "" {
		cfg.AdminAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSpaceHash)); v != "" {
		parsed, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			log.Warn().Str("env", EnvSpaceHash).Str("value", v).Msg("ignoring invalid space hash override")
			return
		}
		cfg.SpaceHash = uint32(parsed)
	}
}
