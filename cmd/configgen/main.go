package main

import (
	"flag"
	"log"

	"github.com/danmuck/resonant/internal/config"
)

func main() {
	kind := flag.String("kind", "agent", "config kind: agent|plan")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing agent config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "agent" {
			log.Fatalf("validation is only supported for agent configs; send plans are checked by vframe-send")
		}
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		if _, err := config.LoadAgentConfig(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "agent":
		return "cmd/vframe-recv/config.toml"
	case "plan":
		return "cmd/vframe-send/plan.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
