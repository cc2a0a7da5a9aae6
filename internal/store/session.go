// apps/go-server/internal/store/session.go
//
// A Session is one independent game served over HTTP. It owns a single
// game.Engine behind a mutex, so each session is processed strictly one event
// at a time even when handlers run concurrently.

package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/caterpillar/apps/go-server/internal/game"
)

// Mode is how the session's random source was seeded.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeDaily  Mode = "daily"
)

// Session holds one game instance and its bookkeeping.
type Session struct {
	ID        string    // Unique session identifier (UUID).
	Mode      Mode      // normal or daily
	Seed      uint64    // seed of the round generator
	CreatedAt time.Time // creation time (UTC)

	mu        sync.Mutex
	engine    *game.Engine
	touchedAt time.Time
	misses    int // incorrect selections before the win; feedback only
}

// NewSession wraps an engine in a fresh session.
func NewSession(e *game.Engine, mode Mode, seed uint64) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		Seed:      seed,
		CreatedAt: now,
		engine:    e,
		touchedAt: now,
	}
}

// Select applies a selection and counts misses.
func (s *Session) Select(value int) (game.Outcome, Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchedAt = time.Now().UTC()
	return s.selectLocked(value), s.snapshotLocked()
}

// Click hit-tests p against the current leaves and selects the leaf it lands
// on. A miss selects nothing and leaves the game untouched.
func (s *Session) Click(p game.Point, radius float64) (leaf game.Candidate, hit bool, out game.Outcome, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchedAt = time.Now().UTC()
	if leaf, hit = game.HitTest(s.engine.Round().Candidates, p, radius); hit {
		out = s.selectLocked(leaf.Value)
	}
	return leaf, hit, out, s.snapshotLocked()
}

// selectLocked applies a selection. Picks after the win are not misses.
func (s *Session) selectLocked(value int) game.Outcome {
	won := s.engine.Terminal()
	out := s.engine.Select(value)
	if out == game.OutcomeIncorrect && !won {
		s.misses++
	}
	return out
}

// Reset restarts the game with n links (0 = configured default) and clears misses.
func (s *Session) Reset(n int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchedAt = time.Now().UTC()
	if err := s.engine.Reset(n); err != nil {
		return Snapshot{}, err
	}
	s.misses = 0
	return s.snapshotLocked(), nil
}

// Snapshot is a consistent view of a session taken under its lock.
type Snapshot struct {
	State  game.State
	Round  game.Round
	Misses int
}

// Snapshot returns the current state, round and miss count together.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{State: s.engine.State(), Round: s.engine.Round(), Misses: s.misses}
}

// TouchedAt reports when the session was last used.
func (s *Session) TouchedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt
}
