package redis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insurego-auth/internal/bucketing"
	"insurego-auth/internal/config"
)

func newTestCache() *RateLimitCache {
	cfg := &config.Config{}
	cfg.Bucketing.EventBuckets = 16
	return NewRateLimitCache(nil, bucketing.NewBucketingManager(cfg))
}

func TestCounterKey(t *testing.T) {
	t.Parallel()

	cache := newTestCache()
	window := 15 * time.Minute

	t.Run("window aligned", func(t *testing.T) {
		t.Parallel()

		key := cache.counterKey(loginAttemptPrefix, "hash-1", window)

		var bucket int64
		_, err := fmt.Sscanf(key, "login_attempts:hash-1:%d", &bucket)
		require.NoError(t, err)

		assert.Zero(t, bucket%int64(window.Seconds()))
		assert.LessOrEqual(t, bucket, time.Now().Unix())
		assert.Greater(t, bucket, time.Now().Add(-window).Unix()-1)
	})

	t.Run("counters are keyed apart by prefix", func(t *testing.T) {
		t.Parallel()

		otp := cache.counterKey(otpRequestPrefix, "hash-1", window)
		login := cache.counterKey(loginAttemptPrefix, "hash-1", window)
		assert.NotEqual(t, otp, login)
	})
}
