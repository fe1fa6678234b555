package pipeline

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before retry n (0-indexed): exponential with
// jitter, capped at 30s. Jitter spreads concurrent document runs so they
// do not hammer the model service in lockstep.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}
