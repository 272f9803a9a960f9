package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketAllowsBurstThenBlocks(t *testing.T) {
	b := newTokenBucket(RateLimitConfig{Burst: 3, RefillInterval: time.Hour})

	for i := 0; i < 3; i++ {
		assert.True(t, b.take("10.0.0.1:1234"), "burst token %d", i)
	}
	assert.False(t, b.take("10.0.0.1:1234"), "bucket exhausted")
}

func TestTokenBucketRefills(t *testing.T) {
	b := newTokenBucket(RateLimitConfig{Burst: 2, RefillInterval: 50 * time.Millisecond})

	assert.True(t, b.take("10.0.0.1:1234"))
	assert.True(t, b.take("10.0.0.1:1234"))
	assert.False(t, b.take("10.0.0.1:1234"))

	time.Sleep(80 * time.Millisecond)
	assert.True(t, b.take("10.0.0.1:1234"), "tokens return after the refill interval")
}

func TestTokenBucketFromSanitizedConfig(t *testing.T) {
	// Degenerate rate values are repaired where the rest of the config
	// defaults live, before a bucket is built from them.
	cfg := sanitizeConfig(Config{})

	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)

	b := newTokenBucket(cfg.RateLimit)
	assert.True(t, b.take("10.0.0.1:1234"))
}
