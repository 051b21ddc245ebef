package config

import (
	"github.com/danmuck/resonant/internal/protocol/vframe"
)

// DecodeLimits converts the configured limits, filling unset fields from
// vframe.DefaultLimits.
func (cfg AgentConfig) DecodeLimits() vframe.Limits {
	limits := vframe.DefaultLimits()
	if cfg.Limits.MaxFrameBytes > 0 {
		limits.MaxFrameBytes = cfg.Limits.MaxFrameBytes
	}
	if cfg.Limits.MaxSlices > 0 {
		limits.MaxSlices = cfg.Limits.MaxSlices
	}
	return limits
}

func (cfg AgentConfig) ModalityValue() (vframe.Modality, error) {
	return vframe.ParseModality(cfg.Modality)
}
