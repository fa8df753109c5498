package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"insurego-auth/internal/bucketing"
	"insurego-auth/internal/client"
	"insurego-auth/internal/util"
)

const (
	otpRequestPrefix    = "otp_requests:"
	loginAttemptPrefix  = "login_attempts:"
	verifyAttemptPrefix = "verify_attempts:"
	verifyLockPrefix    = "verify_lock:"
)

// RateLimitCache tracks per-identifier counters for OTP issuance and login
// attempts. Counter keys carry the current time bucket so windows roll over
// deterministically, and each key expires after the window as cleanup.
type RateLimitCache struct {
	client  *client.RedisClient
	buckets *bucketing.BucketingManager
}

func NewRateLimitCache(c *client.RedisClient, buckets *bucketing.BucketingManager) *RateLimitCache {
	return &RateLimitCache{client: c, buckets: buckets}
}

// counterKey builds the windowed key for a throttle counter. All calls inside
// the same window agree on the key, so increments land on one counter.
func (c *RateLimitCache) counterKey(prefix, identifierHash string, window time.Duration) string {
	bucket := c.buckets.GetTimeBucket(int(window.Seconds()))
	return fmt.Sprintf("%s%s:%d", prefix, identifierHash, bucket)
}

// IncrementOTPRequests bumps the issuance counter for the identifier hash
// and returns the new count within the window.
func (c *RateLimitCache) IncrementOTPRequests(ctx context.Context, identifierHash string, window time.Duration) (int64, error) {
	key := c.counterKey(otpRequestPrefix, identifierHash, window)
	cnt, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment OTP request counter",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment OTP request counter: %w", err)
	}
	util.Debug("OTP request counter incremented",
		zap.String("identifier_hash", identifierHash),
		zap.Int64("count", cnt))
	return cnt, nil
}

// IncrementLoginAttempts bumps the failed-login counter for the identifier
// hash and returns the new count within the window.
func (c *RateLimitCache) IncrementLoginAttempts(ctx context.Context, identifierHash string, window time.Duration) (int64, error) {
	key := c.counterKey(loginAttemptPrefix, identifierHash, window)
	cnt, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment login attempt counter",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment login attempt counter: %w", err)
	}
	return cnt, nil
}

// ResetLoginAttempts clears the failed-login counter for the current window
// after a successful login.
func (c *RateLimitCache) ResetLoginAttempts(ctx context.Context, identifierHash string, window time.Duration) error {
	key := c.counterKey(loginAttemptPrefix, identifierHash, window)
	if err := c.client.Del(ctx, key); err != nil {
		util.Error("Failed to reset login attempt counter",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return fmt.Errorf("failed to reset login attempt counter: %w", err)
	}
	return nil
}

// IncrementVerifyAttempts bumps the failed-verification counter for the
// identifier hash and returns the new count within the window.
func (c *RateLimitCache) IncrementVerifyAttempts(ctx context.Context, identifierHash string, window time.Duration) (int64, error) {
	key := c.counterKey(verifyAttemptPrefix, identifierHash, window)
	cnt, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment verify attempt counter",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment verify attempt counter: %w", err)
	}
	return cnt, nil
}

// SetVerifyLock places a temporary lock after too many failed verifications.
func (c *RateLimitCache) SetVerifyLock(ctx context.Context, identifierHash string, ttl time.Duration) error {
	key := verifyLockPrefix + identifierHash
	ok, err := c.client.SetNX(ctx, key, "locked", ttl)
	if err != nil {
		util.Error("Failed to set verify lock",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return fmt.Errorf("failed to set verify lock: %w", err)
	}
	if ok {
		util.Warn("Verification lock placed",
			zap.String("identifier_hash", identifierHash),
			zap.Duration("ttl", ttl))
	}
	return nil
}

// IsVerifyLocked reports whether the identifier is currently locked out of
// verification.
func (c *RateLimitCache) IsVerifyLocked(ctx context.Context, identifierHash string) (bool, error) {
	key := verifyLockPrefix + identifierHash
	exists, err := c.client.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check verify lock: %w", err)
	}
	return exists, nil
}
