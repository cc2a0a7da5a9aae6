package httpserver

import (
	"github.com/robalobadob/caterpillar/apps/go-server/internal/game"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/store"
)

// pieceView is one drawable chain link or leaf.
type pieceView struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value int     `json:"value"`
}

// stateView is everything a client needs to redraw after a request.
type stateView struct {
	Score        int          `json:"score"`
	ExpectedNext int          `json:"expectedNext"`
	Terminal     bool         `json:"terminal"`
	Status       string       `json:"status"` // "playing" | "won"
	Heading      game.Heading `json:"heading"`
	Chain        []pieceView  `json:"chain"`  // head first
	Leaves       []pieceView  `json:"leaves"` // empty once won
	Relaxed      bool         `json:"relaxed"`
	Misses       int          `json:"misses"`
}

func viewOf(snap store.Snapshot) stateView {
	v := stateView{
		Score:        snap.State.Score,
		ExpectedNext: snap.State.ExpectedNext,
		Terminal:     snap.State.Terminal,
		Status:       snap.State.Status(),
		Heading:      snap.State.Heading,
		Chain:        make([]pieceView, 0, len(snap.State.Chain)),
		Leaves:       make([]pieceView, 0, len(snap.Round.Candidates)),
		Relaxed:      snap.Round.Relaxed,
		Misses:       snap.Misses,
	}
	for _, l := range snap.State.Chain {
		v.Chain = append(v.Chain, pieceView{X: l.Pos.X, Y: l.Pos.Y, Value: l.Value})
	}
	for _, c := range snap.Round.Candidates {
		v.Leaves = append(v.Leaves, pieceView{X: c.Pos.X, Y: c.Pos.Y, Value: c.Value})
	}
	return v
}
