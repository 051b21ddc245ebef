package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "agent", "recv":
		return agentTemplate, nil
	case "plan", "send":
		return planTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const agentTemplate = `name = "resonant-recv"
listen = "127.0.0.1:7777"
admin_addr = "127.0.0.1:9090"
cors_origins = ["http://localhost:3000"]
space_hash32 = 2451163210
embedding_space_id = "universal-llm-v3"
d_model = 4096
modality = "text"

[limits]
max_frame_bytes = 65536
max_slices = 4096
`

const planTemplate = `peer = "127.0.0.1:7777"
space_hash32 = 2451163210
modality = "text"
interval_ms = 100
await_reply_ms = 500

[[frames]]
kind = "ping"

[[frames]]
kind = "think"
dtype = "f16"
shape = [1, 2048]
fill = "ramp"

[[frames]]
kind = "critique"
dtype = "f16"
shape = [1, 2048]
fill = "zero"
explanation = '{"reason":"divergence from expected latent","score":0.12}'
`
