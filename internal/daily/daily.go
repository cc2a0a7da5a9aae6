// apps/go-server/internal/daily/daily.go
//
// Deterministic per-day seeds for the "daily" mode: every player who starts a
// daily game on the same UTC date sees the same sequence of leaf layouts.
package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Seed returns HMAC(salt, YYYY-MM-DD) folded into a generator seed.
func Seed(date time.Time, salt string) uint64 {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
