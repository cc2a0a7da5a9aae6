// apps/go-server/internal/httpserver/server.go
//
// HTTP server wiring for the caterpillar game backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs, request log).
//   - Public endpoints: "/", "/health", "/board".
//   - Game endpoints: POST /game/new, then /game/{id}/* guarded by a play token.
//
// Notes:
//   - The client draws everything; this server only owns game state.
//   - CORS is origin‑aware and credentials‑enabled (so cookies work).
//   - Each session serializes its own transitions; handlers never touch an
//     engine outside the session lock.

package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/robalobadob/caterpillar/apps/go-server/internal/config"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/store"
)

// Server bundles router, session store and configuration.
type Server struct {
	r      *chi.Mux
	http   *http.Server
	store  store.Store
	cfg    config.Config
	tokens tokenIssuer
	now    func() time.Time
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, cfg config.Config) *Server {
	s := &Server{
		r:     chi.NewRouter(),
		store: st,
		cfg:   cfg,
		tokens: tokenIssuer{
			secret: []byte(cfg.JWTSecret),
			ttl:    cfg.TokenTTL,
			secure: cfg.Production,
		},
		now: time.Now,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(requestLogger)                   // one zerolog line per request
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(s.cors)                          // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"caterpillar-go","endpoints":["/health","/board","POST /game/new","/game/{id}"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Get("/board", s.handleBoard)

	s.mountGame()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	s.http = &http.Server{
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP on addr. It returns http.ErrServerClosed after
// Shutdown, including when Shutdown ran first.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.http.Serve(ln)
}

// Shutdown gracefully stops the server. It is safe to call from any goroutine,
// before or after Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------- board -------------------------------------

// boardRes tells a client how to size its canvas and leaves.
type boardRes struct {
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	LeafRadius  float64 `json:"leafRadius"`
	SegmentSize float64 `json:"segmentSize"`
	WinScore    int     `json:"winScore"`
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	t := s.cfg.Tuning
	writeJSON(w, http.StatusOK, boardRes{
		Width:       t.Board.Width,
		Height:      t.Board.Height,
		LeafRadius:  t.Leaves.Radius,
		SegmentSize: t.Chain.SegmentSize,
		WinScore:    t.Chain.WinScore,
	})
}

// ------------------------------- helpers -----------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error":code} body used by every failing route.
func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
