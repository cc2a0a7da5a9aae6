// apps/go-server/internal/httpserver/routes_game.go
//
// Game routes:
//   - POST   /game/new         → create a session, return id + play token + state
//   - GET    /game/{id}        → current state
//   - POST   /game/{id}/select → select a leaf by value
//   - POST   /game/{id}/click  → hit-test a pointer position, select what it lands on
//   - POST   /game/{id}/reset  → restart the session
//   - DELETE /game/{id}        → drop the session
//
// Everything under /game/{id} requires a play token issued for that id.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/caterpillar/apps/go-server/internal/daily"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/game"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/round"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/store"
)

// mountGame registers all /game routes.
func (s *Server) mountGame() {
	s.r.Route("/game", func(r chi.Router) {
		r.Post("/new", s.handleNewGame)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.requirePlayToken)
			r.Get("/", s.handleState)
			r.Delete("/", s.handleEndGame)
			r.Post("/select", s.handleSelect)
			r.Post("/click", s.handleClick)
			r.Post("/reset", s.handleReset)
		})
	})
}

// ------------------------------- new game ----------------------------------

// newGameReq/Res payloads for POST /game/new.
type newGameReq struct {
	Mode          store.Mode `json:"mode"`          // "normal" (default) | "daily"
	Seed          *uint64    `json:"seed"`          // optional fixed seed (normal mode, testing)
	InitialLength int        `json:"initialLength"` // 0 = configured default
}
type newGameRes struct {
	GameID    string     `json:"gameId"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Mode      store.Mode `json:"mode"`
	Seed      uint64     `json:"seed"` // send back as "seed" to replay a normal game
	State     stateView  `json:"state"`
}

// handleNewGame creates a session with its own generator and engine.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if req.Mode == "" {
		req.Mode = store.ModeNormal
	}

	var seed uint64
	switch req.Mode {
	case store.ModeNormal:
		seed = rand.Uint64()
		if req.Seed != nil {
			seed = *req.Seed
		}
	case store.ModeDaily:
		if req.Seed != nil {
			writeError(w, http.StatusBadRequest, "invalid_seed")
			return
		}
		seed = daily.Seed(s.now(), s.cfg.DailySalt)
	default:
		writeError(w, http.StatusBadRequest, "invalid_mode")
		return
	}

	sess, err := s.newSession(req.Mode, seed, req.InitialLength)
	if errors.Is(err, game.ErrInvalidChainLength) {
		writeError(w, http.StatusBadRequest, "invalid_length")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("build session")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}
	if err := s.store.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("save session")
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}

	tok, exp, err := s.tokens.sign(sess.ID)
	if err != nil {
		log.Error().Err(err).Str("gameId", sess.ID).Msg("sign play token")
		writeError(w, http.StatusInternalServerError, "sign_failed")
		return
	}
	s.tokens.setCookie(w, sess.ID, tok, exp)

	snap := sess.Snapshot()
	logRelaxed(sess.ID, snap.Round)
	log.Info().Str("gameId", sess.ID).Str("mode", string(sess.Mode)).Uint64("seed", sess.Seed).
		Time("createdAt", sess.CreatedAt).Int("score", snap.State.Score).Msg("game started")
	writeJSON(w, http.StatusOK, newGameRes{
		GameID:    sess.ID,
		Token:     tok,
		ExpiresAt: exp,
		Mode:      sess.Mode,
		Seed:      sess.Seed,
		State:     viewOf(snap),
	})
}

// newSession wires a seeded generator into a fresh engine.
func (s *Server) newSession(mode store.Mode, seed uint64, initialLength int) (*store.Session, error) {
	gen, err := round.New(s.cfg.RoundConfig(), round.NewRand(seed))
	if err != nil {
		return nil, err
	}
	gc := s.cfg.GameConfig()
	if initialLength != 0 {
		if initialLength < 1 || initialLength >= gc.WinScore {
			return nil, game.ErrInvalidChainLength
		}
		gc.InitialLength = initialLength
	}
	eng, err := game.NewEngine(gc, gen)
	if err != nil {
		return nil, err
	}
	return store.NewSession(eng, mode, seed), nil
}

// ------------------------------ play token ---------------------------------

// ctxSessionKey is the context key type for the authorized *store.Session.
type ctxSessionKey struct{}

// requirePlayToken enforces a valid token for the {id} in the URL and loads the session.
func (s *Server) requirePlayToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerOrCookie(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		id := chi.URLParam(r, "id")
		gid, err := s.tokens.verify(tokenStr)
		if err != nil || gid != id {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		sess, err := s.store.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("gameId", id).Msg("load session")
			writeError(w, http.StatusInternalServerError, "load_failed")
			return
		}
		ctx := context.WithValue(r.Context(), ctxSessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *store.Session {
	sess, _ := r.Context().Value(ctxSessionKey{}).(*store.Session)
	return sess
}

// ------------------------------- play --------------------------------------

type stateRes struct {
	State stateView `json:"state"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateRes{State: viewOf(sessionFrom(r).Snapshot())})
}

// selectReq/Res payloads for POST /game/{id}/select.
type selectReq struct {
	Value *int `json:"value"`
}
type selectRes struct {
	Outcome game.Outcome `json:"outcome"`
	State   stateView    `json:"state"`
}

// handleSelect applies a selection by value. Incorrect picks change nothing.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess := sessionFrom(r)
	out, snap := sess.Select(*req.Value)
	logSelection(sess.ID, *req.Value, out, snap)
	writeJSON(w, http.StatusOK, selectRes{Outcome: out, State: viewOf(snap)})
}

// clickReq/Res payloads for POST /game/{id}/click.
type clickReq struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}
type clickRes struct {
	Hit     bool         `json:"hit"`
	Value   int          `json:"value,omitempty"`
	Outcome game.Outcome `json:"outcome,omitempty"`
	State   stateView    `json:"state"`
}

// handleClick hit-tests a pointer position against the current leaves.
// A miss is not a selection: nothing is counted and nothing changes.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.X == nil || req.Y == nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess := sessionFrom(r)
	leaf, hit, out, snap := sess.Click(game.Point{X: *req.X, Y: *req.Y}, s.cfg.Tuning.Leaves.Radius)
	if !hit {
		writeJSON(w, http.StatusOK, clickRes{State: viewOf(snap)})
		return
	}
	logSelection(sess.ID, leaf.Value, out, snap)
	writeJSON(w, http.StatusOK, clickRes{Hit: true, Value: leaf.Value, Outcome: out, State: viewOf(snap)})
}

// resetReq payload for POST /game/{id}/reset.
type resetReq struct {
	InitialLength int `json:"initialLength"` // 0 = configured default
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetReq
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess := sessionFrom(r)
	snap, err := sess.Reset(req.InitialLength)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_length")
		return
	}
	logRelaxed(sess.ID, snap.Round)
	log.Info().Str("gameId", sess.ID).Int("score", snap.State.Score).Msg("game reset")
	writeJSON(w, http.StatusOK, stateRes{State: viewOf(snap)})
}

func (s *Server) handleEndGame(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := s.store.Delete(r.Context(), sess.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Str("gameId", sess.ID).Msg("delete session")
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// decodeOptional decodes a JSON body; an empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ------------------------------- logging -----------------------------------

func logSelection(gid string, value int, out game.Outcome, snap store.Snapshot) {
	log.Debug().Str("gameId", gid).Int("value", value).Str("outcome", string(out)).
		Int("score", snap.State.Score).Msg("selection")
	if out == game.OutcomeCorrect && snap.State.Terminal {
		log.Info().Str("gameId", gid).Int("score", snap.State.Score).Int("misses", snap.Misses).Msg("game won")
		return
	}
	logRelaxed(gid, snap.Round)
}

// logRelaxed notes rounds whose placement had to lower the leaf separation.
func logRelaxed(gid string, rd game.Round) {
	if rd.Relaxed {
		log.Debug().Str("gameId", gid).Int("target", rd.Target).
			Float64("separation", rd.Separation).Msg("leaf placement relaxed")
	}
}
