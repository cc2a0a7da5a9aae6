// apps/go-server/internal/round/generator.go
//
// Leaf-set generator.
// Responsibilities:
//   - Pick distractor values for a target number (distinct, never the target).
//   - Place every leaf inside the play area without overlap.
//   - Guarantee termination: placement relaxes its separation once the retry
//     budget for a leaf is spent.
//
// The generator holds no state between calls apart from its random source.
package round

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/robalobadob/caterpillar/apps/go-server/internal/game"
)

// minUsableSeparation is the point below which relaxed placement stops
// checking distances at all.
const minUsableSeparation = 1.0

var ErrInvalidConfig = errors.New("invalid round config")

// RNG abstracts the random source for deterministic testing.
// *rand.Rand from math/rand/v2 satisfies it.
type RNG interface {
	// IntN returns a non-negative random int in [0, n).
	IntN(n int) int
	// Float64 returns a random float in [0.0, 1.0).
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// NewRand returns a seeded PCG-backed source.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Config holds generator tuning.
type Config struct {
	Bounds            game.Rect // play area
	Margin            float64   // inward margin for the leaf render radius
	BottomMargin      float64   // margin at the bottom edge, keeps the lower band clear
	MinSeparation     float64   // minimum centre distance between two leaves
	DistractorMin     int       // inclusive
	DistractorMax     int       // inclusive
	ValueSpread       int       // distractors come from [1, target+ValueSpread)
	PlacementAttempts int       // draws per leaf before the separation is halved
}

// DefaultConfig mirrors the classic board: 600x400, 40px leaves, 2–3 distractors.
func DefaultConfig() Config {
	return Config{
		Bounds:            game.NewRect(600, 400),
		Margin:            50,
		BottomMargin:      100,
		MinSeparation:     80,
		DistractorMin:     2,
		DistractorMax:     3,
		ValueSpread:       5,
		PlacementAttempts: 200,
	}
}

// Validate rejects configurations that could never produce a playable round.
func (c Config) Validate() error {
	switch {
	case !c.Bounds.Valid():
		return fmt.Errorf("%w: bounds must have positive area", ErrInvalidConfig)
	case c.Margin < 0 || c.BottomMargin < 0:
		return fmt.Errorf("%w: margins must not be negative", ErrInvalidConfig)
	case !c.Area().Valid():
		return fmt.Errorf("%w: margins %.1f/%.1f leave no room inside bounds", ErrInvalidConfig, c.Margin, c.BottomMargin)
	case c.MinSeparation <= 0:
		return fmt.Errorf("%w: min separation must be positive", ErrInvalidConfig)
	case c.DistractorMin < 0:
		return fmt.Errorf("%w: distractor min must not be negative", ErrInvalidConfig)
	case c.DistractorMin > c.DistractorMax:
		return fmt.Errorf("%w: distractor range [%d,%d] is empty", ErrInvalidConfig, c.DistractorMin, c.DistractorMax)
	case c.ValueSpread < 2:
		return fmt.Errorf("%w: value spread must be at least 2", ErrInvalidConfig)
	case c.DistractorMax > c.ValueSpread-1:
		// Target 1 leaves ValueSpread-1 usable distractor values.
		return fmt.Errorf("%w: distractor max %d exceeds value spread %d", ErrInvalidConfig, c.DistractorMax, c.ValueSpread)
	case c.PlacementAttempts < 1:
		return fmt.Errorf("%w: placement attempts must be positive", ErrInvalidConfig)
	}
	return nil
}

// Area is where leaf centres may land: Bounds shrunk by Margin, with
// BottomMargin replacing it along the bottom edge.
func (c Config) Area() game.Rect {
	a := c.Bounds.Inset(c.Margin)
	a.Max.Y = c.Bounds.Max.Y - c.BottomMargin
	return a
}

// Generator produces Rounds. It satisfies game.RoundSource.
type Generator struct {
	cfg  Config
	area game.Rect
	rng  RNG
}

// New validates cfg and returns a generator drawing from rng.
func New(cfg Config, rng RNG) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil rng", ErrInvalidConfig)
	}
	return &Generator{cfg: cfg, area: cfg.Area(), rng: rng}, nil
}

// Config returns the generator tuning.
func (g *Generator) Config() Config { return g.cfg }

// Generate builds a fresh round for target (target >= 1).
func (g *Generator) Generate(target int) game.Round {
	values := g.values(target)
	g.rng.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })

	r := game.Round{
		Target:     target,
		Candidates: make([]game.Candidate, 0, len(values)),
		Separation: g.cfg.MinSeparation,
	}
	for _, v := range values {
		pos, sep := g.place(r.Candidates, r.Separation)
		if sep < r.Separation {
			r.Separation, r.Relaxed = sep, true
		}
		r.Candidates = append(r.Candidates, game.Candidate{Pos: pos, Value: v})
	}
	return r
}

// values returns the target followed by distinct distractors from [1, target+K).
// Validate guarantees the domain holds at least DistractorMax values.
func (g *Generator) values(target int) []int {
	n := g.cfg.DistractorMin + g.rng.IntN(g.cfg.DistractorMax-g.cfg.DistractorMin+1)
	hi := target + g.cfg.ValueSpread // exclusive

	out := make([]int, 1, n+1)
	out[0] = target
	seen := map[int]struct{}{target: {}}
	for len(out) < n+1 {
		v := 1 + g.rng.IntN(hi-1)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// place draws a point at least sep away from every placed leaf. After
// PlacementAttempts misses sep is halved; below minUsableSeparation it drops
// to zero, where any draw is accepted.
func (g *Generator) place(placed []game.Candidate, sep float64) (game.Point, float64) {
	for {
		for range g.cfg.PlacementAttempts {
			p := g.randomPoint()
			if isClear(placed, p, sep) {
				return p, sep
			}
		}
		sep /= 2
		if sep < minUsableSeparation {
			sep = 0
		}
	}
}

func (g *Generator) randomPoint() game.Point {
	return game.Point{
		X: g.area.Min.X + g.rng.Float64()*g.area.Width(),
		Y: g.area.Min.Y + g.rng.Float64()*g.area.Height(),
	}
}

func isClear(placed []game.Candidate, p game.Point, sep float64) bool {
	for _, c := range placed {
		if c.Pos.Dist(p) < sep {
			return false
		}
	}
	return true
}
