package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultName             = "resonant"
	DefaultListen           = ":7777"
	DefaultDModel           = 4096
	DefaultEmbeddingSpaceID = "universal-llm-v3"
)

// AgentConfig describes one V-Frame endpoint: where it listens, who it talks
// to, and which embedding space it admits.
type AgentConfig struct {
	Name             string       `toml:"name"`
	Listen           string       `toml:"listen"`
	Peer             string       `toml:"peer"`
	AdminAddr        string       `toml:"admin_addr"`
	CorsOrigins      []string     `toml:"cors_origins"`
	SpaceHash        uint32       `toml:"space_hash32"`
	EmbeddingSpaceID string       `toml:"embedding_space_id"`
	DModel           uint32       `toml:"d_model"`
	Modality         string       `toml:"modality"`
	Limits           LimitsConfig `toml:"limits"`
}

// LimitsConfig bounds decoding. Zero values fall back to the datagram defaults.
type LimitsConfig struct {
	MaxFrameBytes int    `toml:"max_frame_bytes"`
	MaxSlices     uint64 `toml:"max_slices"`
}

func LoadAgentConfig(path string) (AgentConfig, error) {
	var cfg AgentConfig
	if err := loadToml(path, &cfg); err != nil {
		return AgentConfig{}, err
	}
	ApplyEnv(&cfg)
	applyDefaults(&cfg)
	if err := ValidateAgentConfig(cfg); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// DefaultAgentConfig is the config used when no file is given.
func DefaultAgentConfig() AgentConfig {
	var cfg AgentConfig
	ApplyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *AgentConfig) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.DModel == 0 {
		cfg.DModel = DefaultDModel
	}
	if cfg.EmbeddingSpaceID == "" {
		cfg.EmbeddingSpaceID = DefaultEmbeddingSpaceID
	}
	if cfg.Modality == "" {
		cfg.Modality = "text"
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateAgentConfig(cfg AgentConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("agent config missing name")
	}
	if err := validateAddr("listen", cfg.Listen); err != nil {
		return err
	}
	if cfg.Peer != "" {
		if err := validateAddr("peer", cfg.Peer); err != nil {
			return err
		}
	}
	if cfg.AdminAddr != "" {
		if err := validateAddr("admin_addr", cfg.AdminAddr); err != nil {
			return err
		}
	}
	if _, err := cfg.ModalityValue(); err != nil {
		return fmt.Errorf("agent config modality invalid: %w", err)
	}
	if cfg.Limits.MaxFrameBytes < 0 {
		return fmt.Errorf("agent config limits.max_frame_bytes must not be negative")
	}
	return nil
}

func validateAddr(field, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("agent config missing %s", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("agent config %s invalid (%s): %w", field, addr, err)
	}
	return nil
}
