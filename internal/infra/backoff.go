package infra

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns an exponential delay with jitter for the given
// retry attempt, capped at backoffMax.
func CalculateBackoff(retry int) time.Duration {
	delay := backoffBase << uint(retry)
	if delay > backoffMax || delay <= 0 {
		delay = backoffMax
	}
	// Up to 25% jitter so reconnecting clients do not thundering-herd.
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	return delay + jitter
}
