package server

import (
	"maps"
	"sync"
	"time"
)

// Stats is the /stats document.
type Stats struct {
	Received    map[string]uint64 `json:"received"`
	Rejected    map[string]uint64 `json:"rejected"`
	Dropped     map[string]uint64 `json:"dropped"`
	Replies     uint64            `json:"replies"`
	LastFrameAt *time.Time        `json:"last_frame_at,omitempty"`
}

// Tally counts what the receive loop saw. Safe for concurrent use.
type Tally struct {
	mu          sync.Mutex
	received    map[string]uint64
	rejected    map[string]uint64
	dropped     map[string]uint64
	replies     uint64
	lastFrameAt time.Time
}

func NewTally() *Tally {
	return &Tally{
		received: make(map[string]uint64),
		rejected: make(map[string]uint64),
		dropped:  make(map[string]uint64),
	}
}

// Received counts one dispatched frame by msg_type.
func (t *Tally) Received(msgType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.received[msgType]++
	t.lastFrameAt = time.Now()
}

// Rejected counts one frame that failed decode or dispatch, by error kind.
func (t *Tally) Rejected(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejected[kind]++
}

func (t *Tally) Dropped(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped[reason]++
}

func (t *Tally) Replied() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies++
}

func (t *Tally) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{
		Received: maps.Clone(t.received),
		Rejected: maps.Clone(t.rejected),
		Dropped:  maps.Clone(t.dropped),
		Replies:  t.replies,
	}
	if !t.lastFrameAt.IsZero() {
		last := t.lastFrameAt
		s.LastFrameAt = &last
	}
	return s
}
