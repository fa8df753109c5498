package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insurego-auth/internal/delivery"
	"insurego-auth/internal/model"
)

func newTestOTPService(repo *memChallengeRepo, sender *recordingSender) *OTPService {
	var s delivery.Sender
	if sender != nil {
		s = sender
	}
	return NewOTPService(repo, nil, nil, s, nil,
		5*time.Minute, 5, 15*time.Minute, 10)
}

func TestGenerateCode(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^\d{6}$`)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Regexp(t, pattern, code)
		seen[code] = true
	}
	// 50 draws from a million-code space collapsing to one value would mean
	// the source is broken.
	assert.Greater(t, len(seen), 1)
}

func TestOTPService_RequestChallenge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("issues a six digit code with configured expiry", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		svc := newTestOTPService(repo, nil)

		before := time.Now().UTC()
		challenge, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)

		assert.Regexp(t, `^\d{6}$`, challenge.Code)
		assert.False(t, challenge.Consumed)
		assert.WithinDuration(t, before.Add(5*time.Minute), challenge.ExpiresAt, 2*time.Second)
	})

	t.Run("rejects empty identifier", func(t *testing.T) {
		t.Parallel()

		svc := newTestOTPService(newMemChallengeRepo(), nil)
		_, err := svc.RequestChallenge(ctx, "   ", model.ChannelEmail)
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("rejects unknown channel", func(t *testing.T) {
		t.Parallel()

		svc := newTestOTPService(newMemChallengeRepo(), nil)
		_, err := svc.RequestChallenge(ctx, "user@example.com", model.Channel("CARRIER_PIGEON"))
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("hands the code to the sender", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		sender := &recordingSender{}
		svc := newTestOTPService(repo, sender)

		challenge, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(sender.sent()) == 1
		}, 2*time.Second, 10*time.Millisecond)

		sent := sender.sent()[0]
		assert.Equal(t, model.ChannelEmail, sent.channel)
		assert.Equal(t, "user@example.com", sent.contact)
		assert.Equal(t, challenge.Code, sent.code)
	})

	t.Run("delivery failure does not fail the request", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		sender := &recordingSender{err: assert.AnError}
		svc := newTestOTPService(repo, sender)

		challenge, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)
		require.NotNil(t, challenge)

		// The challenge is persisted and verifiable even though the send
		// will fail.
		verified, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, challenge.Code)
		require.NoError(t, err)
		assert.True(t, verified)
	})
}

func TestOTPService_VerifyChallenge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("correct code verifies and consumes", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		svc := newTestOTPService(repo, nil)

		challenge, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)

		verified, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, challenge.Code)
		require.NoError(t, err)
		assert.True(t, verified)

		stored := repo.get(challenge.ChallengeID)
		require.NotNil(t, stored)
		assert.True(t, stored.Consumed)
	})

	t.Run("wrong code leaves the challenge unconsumed", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		svc := newTestOTPService(repo, nil)

		challenge, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)

		wrong := "000000"
		if challenge.Code == wrong {
			wrong = "000001"
		}

		verified, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, wrong)
		require.NoError(t, err)
		assert.False(t, verified)

		// The real code still works afterwards.
		verified, err = svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, challenge.Code)
		require.NoError(t, err)
		assert.True(t, verified)
	})

	t.Run("a code verifies only once", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		svc := newTestOTPService(repo, nil)

		challenge, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)

		verified, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, challenge.Code)
		require.NoError(t, err)
		assert.True(t, verified)

		verified, err = svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, challenge.Code)
		require.NoError(t, err)
		assert.False(t, verified)
	})

	t.Run("expired code is rejected", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		svc := newTestOTPService(repo, nil)

		challenge, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

		verified, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, challenge.Code)
		require.NoError(t, err)
		assert.False(t, verified)
	})

	t.Run("newer challenge supersedes the older one", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		svc := newTestOTPService(repo, nil)

		first, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)

		// Issue the second challenge slightly later so its expiry is
		// strictly greater.
		svc.now = func() time.Time { return time.Now().Add(time.Second) }
		second, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)
		svc.now = time.Now

		if first.Code != second.Code {
			verified, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, first.Code)
			require.NoError(t, err)
			assert.False(t, verified, "superseded code must not verify")
		}

		verified, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, second.Code)
		require.NoError(t, err)
		assert.True(t, verified)
	})

	t.Run("no active challenge", func(t *testing.T) {
		t.Parallel()

		svc := newTestOTPService(newMemChallengeRepo(), nil)
		verified, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, "123456")
		require.NoError(t, err)
		assert.False(t, verified)
	})

	t.Run("channels are independent", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		svc := newTestOTPService(repo, nil)

		challenge, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)

		verified, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelPhone, challenge.Code)
		require.NoError(t, err)
		assert.False(t, verified)
	})

	t.Run("concurrent verifications accept at most one", func(t *testing.T) {
		t.Parallel()

		repo := newMemChallengeRepo()
		svc := newTestOTPService(repo, nil)

		challenge, err := svc.RequestChallenge(ctx, "user@example.com", model.ChannelEmail)
		require.NoError(t, err)

		const workers = 16
		var wg sync.WaitGroup
		results := make([]bool, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				ok, err := svc.VerifyChallenge(ctx, "user@example.com", model.ChannelEmail, challenge.Code)
				if err != nil {
					t.Error(err)
					return
				}
				results[idx] = ok
			}(i)
		}
		wg.Wait()

		accepted := 0
		for _, ok := range results {
			if ok {
				accepted++
			}
		}
		assert.Equal(t, 1, accepted)
	})
}
