// apps/go-server/internal/httpserver/tokens.go
//
// Play tokens bind a client to one game session.
//   - HS256 JWT with claims gid (session id), iat, exp.
//   - Sent back as Authorization: Bearer <token> or the per-game cookie.
//   - The cookie path is scoped to /game/{id}, so one browser can hold several games.

package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenCookieName = "caterpillar_token"

var errBadToken = errors.New("invalid token")

// tokenIssuer signs and verifies play tokens.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	secure bool // production cookies
}

// sign creates a token for game gid.
func (t tokenIssuer) sign(gid string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"gid": gid,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	})
	ss, err := tok.SignedString(t.secret)
	return ss, exp, err
}

// verify checks signature and expiry and returns the game id.
func (t tokenIssuer) verify(tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", errBadToken
	}
	gid, _ := claims["gid"].(string)
	if gid == "" {
		return "", errBadToken
	}
	return gid, nil
}

// setCookie writes the play token cookie for one game.
func (t tokenIssuer) setCookie(w http.ResponseWriter, gid, token string, exp time.Time) {
	sameSite := http.SameSiteLaxMode
	if t.secure {
		sameSite = http.SameSiteNoneMode // required for third‑party contexts when Secure
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/game/" + gid,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// bearerOrCookie extracts a bearer token from Authorization header or play cookie.
func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(tokenCookieName); err == nil {
		return c.Value
	}
	return ""
}
