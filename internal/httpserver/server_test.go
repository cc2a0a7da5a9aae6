package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/robalobadob/caterpillar/apps/go-server/internal/config"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "JWT_SECRET", "TOKEN_TTL", "NODE_ENV", "SESSION_TTL",
		"SWEEP_INTERVAL", "TUNING_FILE", "WIN_SCORE", "INITIAL_LENGTH",
		"DISTRACTOR_MIN", "DISTRACTOR_MAX", "MIN_SEPARATION", "DAILY_SALT",
	} {
		t.Setenv(k, "")
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	return New(st, testConfig(t)), st
}

// do sends a JSON request; token may be empty.
func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func newGame(t *testing.T, s *Server, body any) newGameRes {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/game/new", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /game/new: status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decode[newGameRes](t, rec)
}

func leafValued(t *testing.T, v stateView, value int) pieceView {
	t.Helper()
	for _, l := range v.Leaves {
		if l.Value == value {
			return l
		}
	}
	t.Fatalf("no leaf valued %d in %+v", value, v.Leaves)
	return pieceView{}
}

func TestHealthAndBoard(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("health: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/board", "", nil)
	b := decode[boardRes](t, rec)
	if b.Width != 600 || b.Height != 400 || b.LeafRadius != 20 || b.WinScore != 10 {
		t.Fatalf("board: %+v", b)
	}
}

func TestNewGameStartsAtTwo(t *testing.T) {
	s, st := newTestServer(t)
	seed := uint64(11)
	res := newGame(t, s, newGameReq{Seed: &seed})

	if res.GameID == "" || res.Token == "" || res.Mode != store.ModeNormal || res.Seed != seed {
		t.Fatalf("missing id/token/mode/seed: %+v", res)
	}
	v := res.State
	if v.Score != 2 || v.ExpectedNext != 3 || v.Terminal || v.Status != "playing" || len(v.Chain) != 2 {
		t.Fatalf("unexpected initial state: %+v", v)
	}
	if v.Chain[0].Value != 2 || v.Chain[1].Value != 1 {
		t.Fatalf("chain should be [2,1]: %+v", v.Chain)
	}
	leafValued(t, v, 3)
	if n := len(v.Leaves); n < 3 || n > 4 {
		t.Fatalf("want 3-4 leaves, got %d", n)
	}
	if st.Len() != 1 {
		t.Fatalf("store should hold the new session")
	}
}

func TestNewGameSetsScopedCookie(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/game/new", "", nil)
	res := decode[newGameRes](t, rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != tokenCookieName {
		t.Fatalf("expected one play cookie, got %+v", cookies)
	}
	if cookies[0].Path != "/game/"+res.GameID || !cookies[0].HttpOnly {
		t.Fatalf("cookie should be HttpOnly and scoped to the game: %+v", cookies[0])
	}

	req := httptest.NewRequest(http.MethodGet, "/game/"+res.GameID, nil)
	req.AddCookie(cookies[0])
	got := httptest.NewRecorder()
	s.Router().ServeHTTP(got, req)
	if got.Code != http.StatusOK {
		t.Fatalf("cookie auth: status=%d body=%s", got.Code, got.Body.String())
	}
}

func TestNewGameRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)
	cases := []struct {
		body any
		code string
	}{
		{newGameReq{InitialLength: 10}, "invalid_length"},
		{newGameReq{InitialLength: -3}, "invalid_length"},
		{newGameReq{Mode: "hard"}, "invalid_mode"},
		{newGameReq{Mode: store.ModeDaily, Seed: new(uint64)}, "invalid_seed"},
		{"not an object", "bad_json"},
	}
	for _, tc := range cases {
		rec := do(t, s, http.MethodPost, "/game/new", "", tc.body)
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), tc.code) {
			t.Errorf("%+v: status=%d body=%s want %s", tc.body, rec.Code, rec.Body.String(), tc.code)
		}
	}
}

func TestSelectCorrectThenIncorrect(t *testing.T) {
	s, _ := newTestServer(t)
	g := newGame(t, s, nil)
	path := "/game/" + g.GameID + "/select"

	rec := do(t, s, http.MethodPost, path, g.Token, map[string]int{"value": 3})
	res := decode[selectRes](t, rec)
	if res.Outcome != "correct" || res.State.Score != 3 || res.State.ExpectedNext != 4 || len(res.State.Chain) != 3 {
		t.Fatalf("correct pick: %+v", res)
	}
	leafValued(t, res.State, 4)

	var wrong int
	for _, l := range res.State.Leaves {
		if l.Value != 4 {
			wrong = l.Value
			break
		}
	}
	before := res.State
	rec = do(t, s, http.MethodPost, path, g.Token, map[string]int{"value": wrong})
	res = decode[selectRes](t, rec)
	if res.Outcome != "incorrect" || res.State.Misses != 1 {
		t.Fatalf("wrong pick: %+v", res)
	}
	res.State.Misses = 0
	if !reflect.DeepEqual(before, res.State) {
		t.Fatalf("incorrect pick changed the board:\nbefore %+v\nafter  %+v", before, res.State)
	}
}

func TestSelectRequiresValue(t *testing.T) {
	s, _ := newTestServer(t)
	g := newGame(t, s, nil)
	rec := do(t, s, http.MethodPost, "/game/"+g.GameID+"/select", g.Token, map[string]string{"v": "3"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", rec.Code)
	}
}

func TestPlayToWin(t *testing.T) {
	s, _ := newTestServer(t)
	g := newGame(t, s, nil)
	path := "/game/" + g.GameID + "/select"

	var last selectRes
	for v := 3; v <= 10; v++ {
		last = decode[selectRes](t, do(t, s, http.MethodPost, path, g.Token, map[string]int{"value": v}))
		if last.Outcome != "correct" {
			t.Fatalf("select %d: %+v", v, last)
		}
	}
	if !last.State.Terminal || last.State.Status != "won" || last.State.Score != 10 || len(last.State.Leaves) != 0 {
		t.Fatalf("expected win with no leaves: %+v", last.State)
	}

	after := decode[selectRes](t, do(t, s, http.MethodPost, path, g.Token, map[string]int{"value": 11}))
	if after.Outcome != "incorrect" || after.State.Score != 10 || after.State.Misses != 0 {
		t.Fatalf("select after win: %+v", after)
	}

	reset := decode[stateRes](t, do(t, s, http.MethodPost, "/game/"+g.GameID+"/reset", g.Token, nil))
	if reset.State.Terminal || reset.State.Score != 2 || reset.State.Misses != 0 {
		t.Fatalf("reset after win: %+v", reset.State)
	}
}

func TestClickHitAndMiss(t *testing.T) {
	s, _ := newTestServer(t)
	g := newGame(t, s, nil)
	path := "/game/" + g.GameID + "/click"

	miss := decode[clickRes](t, do(t, s, http.MethodPost, path, g.Token, map[string]float64{"x": -100, "y": -100}))
	if miss.Hit || miss.Outcome != "" || miss.State.Score != 2 || miss.State.Misses != 0 {
		t.Fatalf("click on nothing: %+v", miss)
	}

	leaf := leafValued(t, g.State, 3)
	hit := decode[clickRes](t, do(t, s, http.MethodPost, path, g.Token, map[string]float64{"x": leaf.X + 3, "y": leaf.Y - 4}))
	if !hit.Hit || hit.Value != 3 || hit.Outcome != "correct" || hit.State.Score != 3 {
		t.Fatalf("click on leaf 3: %+v", hit)
	}

	rec := do(t, s, http.MethodPost, path, g.Token, map[string]float64{"x": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("click without y: status=%d", rec.Code)
	}
}

func TestResetWithLength(t *testing.T) {
	s, _ := newTestServer(t)
	g := newGame(t, s, nil)
	path := "/game/" + g.GameID + "/reset"

	res := decode[stateRes](t, do(t, s, http.MethodPost, path, g.Token, resetReq{InitialLength: 1}))
	if res.State.Score != 1 || res.State.ExpectedNext != 2 || len(res.State.Chain) != 1 {
		t.Fatalf("reset(1): %+v", res.State)
	}
	rec := do(t, s, http.MethodPost, path, g.Token, resetReq{InitialLength: 99})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid_length") {
		t.Fatalf("reset(99): status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestPlayTokenIsRequiredAndBound(t *testing.T) {
	s, _ := newTestServer(t)
	a := newGame(t, s, nil)
	b := newGame(t, s, nil)

	if rec := do(t, s, http.MethodGet, "/game/"+a.GameID, "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/game/"+a.GameID, b.Token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token for another game: status=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/game/"+a.GameID, "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status=%d", rec.Code)
	}

	other := tokenIssuer{secret: []byte("someone-else"), ttl: time.Hour}
	forged, _, err := other.sign(a.GameID)
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, s, http.MethodGet, "/game/"+a.GameID, forged, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token signed with another secret: status=%d", rec.Code)
	}

	expired := tokenIssuer{secret: []byte(s.cfg.JWTSecret), ttl: -time.Minute}
	old, _, err := expired.sign(a.GameID)
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, s, http.MethodGet, "/game/"+a.GameID, old, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: status=%d", rec.Code)
	}
}

func TestDeleteEndsSession(t *testing.T) {
	s, st := newTestServer(t)
	g := newGame(t, s, nil)

	if rec := do(t, s, http.MethodDelete, "/game/"+g.GameID, g.Token, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if st.Len() != 0 {
		t.Fatalf("session still stored")
	}
	if rec := do(t, s, http.MethodGet, "/game/"+g.GameID, g.Token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status=%d", rec.Code)
	}
}

func TestDailyGamesShareLayout(t *testing.T) {
	s, _ := newTestServer(t)
	day := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return day }

	a := newGame(t, s, newGameReq{Mode: store.ModeDaily})
	b := newGame(t, s, newGameReq{Mode: store.ModeDaily})
	if a.GameID == b.GameID {
		t.Fatalf("daily games must still be separate sessions")
	}
	if a.Mode != store.ModeDaily || !reflect.DeepEqual(a.State.Leaves, b.State.Leaves) {
		t.Fatalf("same day should give the same leaves:\n%+v\n%+v", a.State.Leaves, b.State.Leaves)
	}

	s.now = func() time.Time { return day.AddDate(0, 0, 1) }
	c := newGame(t, s, newGameReq{Mode: store.ModeDaily})
	if reflect.DeepEqual(a.State.Leaves, c.State.Leaves) {
		t.Fatalf("next day produced an identical layout")
	}
}

func TestSeedReplaysNormalGame(t *testing.T) {
	s, _ := newTestServer(t)
	first := newGame(t, s, nil)
	seed := first.Seed
	replay := newGame(t, s, newGameReq{Seed: &seed})
	if !reflect.DeepEqual(first.State.Leaves, replay.State.Leaves) {
		t.Fatalf("replaying seed %d gave different leaves:\n%+v\n%+v", seed, first.State.Leaves, replay.State.Leaves)
	}
}

func TestShutdownStopsServe(t *testing.T) {
	s, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	var res *http.Response
	for i := 0; ; i++ {
		if res, err = http.Get("http://" + ln.Addr().String() + "/health"); err == nil {
			break
		}
		if i == 50 {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health over the wire: status=%d", res.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("Serve returned %v, want ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve still running after Shutdown")
	}
}

// A signal can arrive before the serving goroutine gets going.
func TestShutdownBeforeStart(t *testing.T) {
	s, _ := newTestServer(t)
	started := make(chan error, 1)
	go func() { started <- s.Start("127.0.0.1:0") }()

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-started:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("Start returned %v, want ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Start kept serving after Shutdown")
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"not_found"`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}
