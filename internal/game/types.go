// apps/go-server/internal/game/types.go
//
// Core type definitions for the caterpillar game engine.
// Defines:
//   - Point / Rect: play-area geometry.
//   - ChainLink / Candidate: the caterpillar body and the clickable leaves.
//   - Round: the active leaf set for one target number.
//   - State: the progression state owned by an Engine.
//   - Outcome: result of selecting a leaf (correct/incorrect).

package game

import "math"

// Outcome is the result of a selection.
//   - "correct":   the value matched the expected next number.
//   - "incorrect": anything else, including any selection after the win.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

// Heading is the horizontal travel direction used when growing the chain.
type Heading string

const (
	HeadingRight Heading = "right"
	HeadingLeft  Heading = "left"
)

// dx returns the x step sign for the heading.
func (h Heading) dx() float64 {
	if h == HeadingLeft {
		return -1
	}
	return 1
}

// flip reverses the heading.
func (h Heading) flip() Heading {
	if h == HeadingLeft {
		return HeadingRight
	}
	return HeadingLeft
}

// Point is a position in play-area coordinates (y grows downward).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by (dx, dy).
func (p Point) Add(dx, dy float64) Point { return Point{X: p.X + dx, Y: p.Y + dy} }

// Dist is the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Rect is an axis-aligned rectangle; Min is the top-left corner.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// NewRect builds a rectangle anchored at the origin.
func NewRect(width, height float64) Rect {
	return Rect{Max: Point{X: width, Y: height}}
}

func (r Rect) Width() float64  { return r.Max.X - r.Min.X }
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Valid reports whether r has a positive area.
func (r Rect) Valid() bool { return r.Width() > 0 && r.Height() > 0 }

// Contains reports whether p lies inside r (edges included).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Inset shrinks r by m on every side. The result may be invalid.
func (r Rect) Inset(m float64) Rect {
	return Rect{
		Min: Point{X: r.Min.X + m, Y: r.Min.Y + m},
		Max: Point{X: r.Max.X - m, Y: r.Max.Y - m},
	}
}

// ChainLink is one caterpillar body segment. Value never changes after creation.
type ChainLink struct {
	Pos   Point `json:"pos"`
	Value int   `json:"value"`
}

// Candidate is one leaf on the board for the current round.
type Candidate struct {
	Pos   Point `json:"pos"`
	Value int   `json:"value"`
}

// Round is the leaf set for a single target. It is replaced wholesale, never patched.
type Round struct {
	Target     int         // the one correct value
	Candidates []Candidate // correct leaf + distractors, values pairwise distinct
	Separation float64     // separation actually honoured by placement
	Relaxed    bool        // true if placement ran out of retries and lowered Separation
}

// clone deep-copies the round so callers can hold it across later transitions.
func (r Round) clone() Round {
	out := r
	out.Candidates = append([]Candidate(nil), r.Candidates...)
	return out
}

// State is the progression state of one game.
//
// Invariants:
//   - Score == len(Chain)
//   - ExpectedNext == Score+1
//   - Chain[0] is the head (most recently added link).
type State struct {
	Chain        []ChainLink
	Score        int
	ExpectedNext int
	Terminal     bool    // true once Score reached the win threshold
	Heading      Heading // travel direction for the next link
}

func (s State) clone() State {
	out := s
	out.Chain = append([]ChainLink(nil), s.Chain...)
	return out
}

// Status reports a coarse string representation of the state ("playing"/"won").
func (s State) Status() string {
	if s.Terminal {
		return "won"
	}
	return "playing"
}
