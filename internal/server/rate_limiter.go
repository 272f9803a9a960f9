// Package server throttles inbound frames with a per-connection token
// bucket so a flooding client is silenced without affecting anyone else.
package server

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// tokenBucket meters the frames one connection may send. Tokens refill
// continuously at burst per interval; every inbound frame spends one.
type tokenBucket struct {
	mu     sync.Mutex
	cfg    RateLimitConfig
	tokens float64
	last   time.Time
}

// newTokenBucket expects cfg to have passed through sanitizeConfig, which
// backfills a positive burst and refill interval.
func newTokenBucket(cfg RateLimitConfig) *tokenBucket {
	return &tokenBucket{
		cfg:    cfg,
		tokens: float64(cfg.Burst),
		last:   time.Now(),
	}
}

// take spends one token for an inbound frame. An empty bucket rejects the
// frame and reports the offending connection.
func (b *tokenBucket) take(addr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		refill := elapsed * float64(b.cfg.Burst) / b.cfg.RefillInterval.Seconds()
		b.tokens = math.Min(float64(b.cfg.Burst), b.tokens+refill)
	}
	b.last = now

	if b.tokens < 1 {
		log.Warn().
			Str("addr", addr).
			Int("burst", b.cfg.Burst).
			Dur("interval", b.cfg.RefillInterval).
			Msg("rate limit exceeded; discarding frame")
		return false
	}
	b.tokens--
	return true
}
