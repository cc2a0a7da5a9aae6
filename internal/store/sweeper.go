package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// RunSweeper drops sessions idle for longer than ttl every interval until ctx is done.
func RunSweeper(ctx context.Context, st Store, ttl, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := st.Sweep(ctx, now.Add(-ttl))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("sweep sessions")
			}
			if n > 0 {
				log.Info().Int("expired", n).Int("live", st.Len()).Msg("swept idle sessions")
			}
		}
	}
}
