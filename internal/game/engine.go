// apps/go-server/internal/game/engine.go
//
// Progression engine for a single caterpillar game.
// Responsibilities:
//   - Own the chain, score and expected-next counter.
//   - Decide correct/incorrect for every selection.
//   - Grow the chain with the snaking layout rule.
//   - Detect the win and freeze further transitions.
//   - Request a fresh Round from its RoundSource after every correct pick.
//
// Notes:
//   - The engine is not safe for concurrent use; callers serialize access
//     (see store.Session).
//   - State() and Round() return deep copies.
package game

import (
	"errors"
	"fmt"
)

const (
	defaultWinScore      = 10
	defaultInitialLength = 2
	defaultSegmentSize   = 30
)

var (
	ErrInvalidConfig      = errors.New("invalid game config")
	ErrInvalidChainLength = errors.New("invalid initial chain length")
)

// RoundSource produces the leaf set for a target number.
type RoundSource interface {
	Generate(target int) Round
}

// Config holds engine tuning.
type Config struct {
	Bounds        Rect    // chain layout bounds
	SegmentSize   float64 // distance between consecutive links
	Start         Point   // tail position after a reset
	WinScore      int     // terminal threshold
	InitialLength int     // chain length used by Reset(0)
}

// DefaultConfig mirrors the classic 600x400 board.
func DefaultConfig() Config {
	return Config{
		Bounds:        NewRect(600, 400),
		SegmentSize:   defaultSegmentSize,
		Start:         Point{X: 100, Y: 200},
		WinScore:      defaultWinScore,
		InitialLength: defaultInitialLength,
	}
}

// Validate checks the config for programming errors.
func (c Config) Validate() error {
	switch {
	case !c.Bounds.Valid():
		return fmt.Errorf("%w: bounds must have positive area", ErrInvalidConfig)
	case c.SegmentSize <= 0:
		return fmt.Errorf("%w: segment size must be positive", ErrInvalidConfig)
	case !c.Bounds.Inset(c.SegmentSize).Valid():
		return fmt.Errorf("%w: bounds too small for segment size %.1f", ErrInvalidConfig, c.SegmentSize)
	case !c.Bounds.Inset(c.SegmentSize).Contains(c.Start):
		return fmt.Errorf("%w: start %v outside layout area", ErrInvalidConfig, c.Start)
	case c.WinScore < 2:
		return fmt.Errorf("%w: win score must be at least 2", ErrInvalidConfig)
	case c.InitialLength < 1 || c.InitialLength >= c.WinScore:
		return fmt.Errorf("%w: initial length %d not in [1,%d)", ErrInvalidConfig, c.InitialLength, c.WinScore)
	}
	return nil
}

// Engine is the single authority over State transitions.
type Engine struct {
	cfg    Config
	rounds RoundSource
	state  State
	round  Round
}

// NewEngine validates cfg and starts a fresh game of cfg.InitialLength.
func NewEngine(cfg Config, rounds RoundSource) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rounds == nil {
		return nil, fmt.Errorf("%w: nil round source", ErrInvalidConfig)
	}
	e := &Engine{cfg: cfg, rounds: rounds}
	if err := e.Reset(cfg.InitialLength); err != nil {
		return nil, err
	}
	return e, nil
}

// Config returns the engine tuning.
func (e *Engine) Config() Config { return e.cfg }

// State returns a snapshot of the progression state.
func (e *Engine) State() State { return e.state.clone() }

// Round returns a snapshot of the active leaf set. It is empty once the game is won.
func (e *Engine) Round() Round { return e.round.clone() }

// Terminal reports whether the game has been won.
func (e *Engine) Terminal() bool { return e.state.Terminal }

// Reset starts over with a chain of n links valued 1..n.
// n == 0 selects the configured initial length.
func (e *Engine) Reset(n int) error {
	if n == 0 {
		n = e.cfg.InitialLength
	}
	if n < 1 || n >= e.cfg.WinScore {
		return fmt.Errorf("%w: %d not in [1,%d)", ErrInvalidChainLength, n, e.cfg.WinScore)
	}

	// The tail sits on Start; the rest is laid out like regular growth.
	e.state = State{
		Chain:   []ChainLink{{Pos: e.cfg.Start, Value: 1}},
		Score:   1,
		Heading: HeadingRight,
	}
	for e.state.Score < n {
		e.grow()
	}
	e.state.ExpectedNext = e.state.Score + 1
	e.round = e.rounds.Generate(e.state.ExpectedNext)
	return nil
}

// Select applies a leaf selection.
//
// State transitions:
//   - value == ExpectedNext → grow chain, bump counters, win or new round.
//   - anything else → no change at all.
//   - already won → no change, OutcomeIncorrect.
func (e *Engine) Select(value int) Outcome {
	if e.state.Terminal || value != e.state.ExpectedNext {
		return OutcomeIncorrect
	}

	e.grow()
	e.state.ExpectedNext = e.state.Score + 1

	if e.state.Score >= e.cfg.WinScore {
		e.state.Terminal = true
		e.round = Round{}
		return OutcomeCorrect
	}
	e.round = e.rounds.Generate(e.state.ExpectedNext)
	return OutcomeCorrect
}

// grow prepends a new head valued Score+1 and bumps Score.
func (e *Engine) grow() {
	pos, heading := e.nextPosition()
	e.state.Score++
	e.state.Chain = append([]ChainLink{{Pos: pos, Value: e.state.Score}}, e.state.Chain...)
	e.state.Heading = heading
}

// nextPosition extends the chain one segment from the head along the heading.
// When that would leave the layout area it drops a row and turns around;
// dropping below the bottom wraps to the top row.
func (e *Engine) nextPosition() (Point, Heading) {
	area := e.cfg.Bounds.Inset(e.cfg.SegmentSize)
	head := e.state.Chain[0].Pos
	h := e.state.Heading

	next := head.Add(e.cfg.SegmentSize*h.dx(), 0)
	if next.X >= area.Min.X && next.X <= area.Max.X {
		return next, h
	}

	next = head.Add(0, e.cfg.SegmentSize)
	if next.Y > area.Max.Y {
		next.Y = area.Min.Y
	}
	return next, h.flip()
}
