package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/resonant/internal/protocol/dispatch"
	"github.com/danmuck/resonant/internal/protocol/vframe"
	"github.com/google/uuid"
)

// planFile is the on-disk send plan.
type planFile struct {
	Peer         string      `toml:"peer"`
	Listen       string      `toml:"listen"`
	StreamID     uint32      `toml:"stream_id"`
	SpaceHash    uint32      `toml:"space_hash32"`
	Modality     string      `toml:"modality"`
	IntervalMS   int64       `toml:"interval_ms"`
	AwaitReplyMS int64       `toml:"await_reply_ms"`
	Frames       []frameSpec `toml:"frames"`
}

type frameSpec struct {
	Kind        string   `toml:"kind"`
	DType       string   `toml:"dtype"`
	Shape       []uint32 `toml:"shape"`
	Fill        string   `toml:"fill"`
	Explanation string   `toml:"explanation"`
	Flags       []string `toml:"flags"`
}

// Plan is a resolved send plan.
type Plan struct {
	Peer       string
	Listen     string
	Header     dispatch.Header
	Interval   time.Duration
	AwaitReply time.Duration
	Frames     []frameSpec
}

func defaultPlan() Plan {
	return Plan{
		Peer:   "127.0.0.1:7777",
		Listen: "127.0.0.1:0",
		Header: dispatch.Header{
			Version:  vframe.Version,
			StreamID: newStreamID(),
		},
		Interval:   100 * time.Millisecond,
		AwaitReply: 500 * time.Millisecond,
		Frames: []frameSpec{
			{Kind: "ping"},
			{Kind: "think", DType: "f16", Shape: []uint32{1, 2048}, Fill: "ramp"},
		},
	}
}

// newStreamID takes the low 32 bits of a random UUID.
func newStreamID() uint32 {
	id := uuid.New()
	return binary.LittleEndian.Uint32(id[:4])
}

func loadPlan(path string) (Plan, error) {
	plan := defaultPlan()

	var raw planFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Plan{}, fmt.Errorf("load send plan: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Plan{}, fmt.Errorf("load send plan: unknown keys %v", undecoded)
	}

	if meta.IsDefined("peer") {
		plan.Peer = strings.TrimSpace(raw.Peer)
	}
	if meta.IsDefined("listen") {
		plan.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("stream_id") {
		plan.Header.StreamID = raw.StreamID
	}
	if meta.IsDefined("space_hash32") {
		plan.Header.SpaceHash = raw.SpaceHash
	}
	if meta.IsDefined("modality") {
		m, err := vframe.ParseModality(strings.TrimSpace(raw.Modality))
		if err != nil {
			return Plan{}, fmt.Errorf("parse modality: %w", err)
		}
		plan.Header.Modality = m
	}
	if meta.IsDefined("interval_ms") {
		plan.Interval = time.Duration(raw.IntervalMS) * time.Millisecond
	}
	if meta.IsDefined("await_reply_ms") {
		plan.AwaitReply = time.Duration(raw.AwaitReplyMS) * time.Millisecond
	}
	if meta.IsDefined("frames") {
		plan.Frames = raw.Frames
	}

	if plan.Peer == "" {
		return Plan{}, fmt.Errorf("send plan missing peer")
	}
	if len(plan.Frames) == 0 {
		return Plan{}, fmt.Errorf("send plan has no frames")
	}
	return plan, nil
}

// Build turns every frame spec into a frame. Sequence numbers start at the
// plan header's Seq and increase by one per frame.
func (p Plan) Build(now time.Time) ([]vframe.Frame, error) {
	frames := make([]vframe.Frame, 0, len(p.Frames))
	h := p.Header
	for i, spec := range p.Frames {
		flags, err := parseFlags(spec.Flags)
		if err != nil {
			return nil, fmt.Errorf("frames[%d]: %w", i, err)
		}
		fh := h
		fh.Flags = flags

		var f vframe.Frame
		switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
		case "ping":
			f, err = dispatch.Ping(fh, now)
		case "think":
			var s vframe.Slice
			if s, err = spec.slice(); err == nil {
				f, err = dispatch.NewThink(fh, s)
			}
		case "critique":
			var s vframe.Slice
			if s, err = spec.slice(); err == nil {
				f, err = dispatch.NewCritique(fh, s, json.RawMessage(spec.explanation()))
			}
		default:
			err = fmt.Errorf("unknown frame kind %q", spec.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("frames[%d]: %w", i, err)
		}
		frames = append(frames, f)
		h = h.Next()
	}
	return frames, nil
}

func (s frameSpec) explanation() string {
	if strings.TrimSpace(s.Explanation) == "" {
		return `{"reason":"unspecified"}`
	}
	return s.Explanation
}

func (s frameSpec) slice() (vframe.Slice, error) {
	dtype, err := parseDType(s.DType)
	if err != nil {
		return vframe.Slice{}, err
	}
	size, err := vframe.DenseSize(dtype, s.Shape)
	if err != nil {
		return vframe.Slice{}, err
	}
	payload := make([]byte, size)
	switch strings.ToLower(strings.TrimSpace(s.Fill)) {
	case "", "zero":
	case "ramp":
		for i := range payload {
			payload[i] = byte(i)
		}
	case "random":
		for i := range payload {
			payload[i] = byte(rand.Intn(256))
		}
	default:
		return vframe.Slice{}, fmt.Errorf("unknown fill %q", s.Fill)
	}
	return vframe.Slice{DType: dtype, Shape: append([]uint32(nil), s.Shape...), Payload: payload}, nil
}

func parseDType(name string) (vframe.DType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "f16", "":
		return vframe.DTypeF16, nil
	case "i8":
		return vframe.DTypeI8, nil
	case "q4":
		return vframe.DTypeQ4, nil
	default:
		return 0, fmt.Errorf("dtype %q is not a dense dtype", name)
	}
}

func parseFlags(names []string) (vframe.Flags, error) {
	var flags vframe.Flags
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "compressed":
			flags = flags.With(vframe.FlagCompressed)
		case "encrypted":
			flags = flags.With(vframe.FlagEncrypted)
		case "strong_tail":
			flags = flags.With(vframe.FlagStrongTail)
		default:
			return 0, fmt.Errorf("unknown flag %q", name)
		}
	}
	return flags, nil
}
