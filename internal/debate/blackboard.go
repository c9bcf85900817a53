package debate

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStaleRound is returned when a commit does not advance the round.
var ErrStaleRound = errors.New("round already committed")

// Line is one spoken statement on the blackboard.
type Line struct {
	Round     int    `json:"round"`
	AgentID   int    `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Role      string `json:"role"`
	Phase     string `json:"phase"`
	Content   string `json:"content"`
}

// Blackboard is the shared transcript of one focus group. Lines are only
// ever appended, one round at a time.
type Blackboard struct {
	mu      sync.RWMutex
	lines   []Line
	round   int
	version int
}

// NewBlackboard returns an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{}
}

// Snapshot returns an immutable view of everything committed so far.
func (b *Blackboard) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.lines)
	return Snapshot{
		Version: b.version,
		Round:   b.round,
		lines:   b.lines[:n:n],
	}
}

// Commit appends the lines spoken in round. Rounds must be committed in
// increasing order; a round may commit no lines when every turn failed.
func (b *Blackboard) Commit(round int, lines []Line) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if round <= b.round {
		return fmt.Errorf("%w: round %d (last %d)", ErrStaleRound, round, b.round)
	}
	for _, l := range lines {
		l.Round = round
		b.lines = append(b.lines, l)
	}
	b.round = round
	b.version++
	return nil
}

// Snapshot is a read-only copy of the blackboard at one version.
type Snapshot struct {
	Version int
	Round   int // last committed round

	lines []Line
}

// Len returns the number of lines in the snapshot.
func (s Snapshot) Len() int {
	return len(s.lines)
}

// Lines returns a copy of all lines.
func (s Snapshot) Lines() []Line {
	return append([]Line(nil), s.lines...)
}

// Last returns the most recently committed line.
func (s Snapshot) Last() (Line, bool) {
	if len(s.lines) == 0 {
		return Line{}, false
	}
	return s.lines[len(s.lines)-1], true
}

// Window returns a copy of the newest n lines. n <= 0 returns all lines.
func (s Snapshot) Window(n int) []Line {
	if n <= 0 || n >= len(s.lines) {
		return s.Lines()
	}
	return append([]Line(nil), s.lines[len(s.lines)-n:]...)
}
