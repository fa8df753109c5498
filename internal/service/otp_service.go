package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"insurego-auth/internal/audit"
	"insurego-auth/internal/delivery"
	"insurego-auth/internal/encryption"
	"insurego-auth/internal/hashing"
	"insurego-auth/internal/model"
	redisrepo "insurego-auth/internal/repository/redis"
	"insurego-auth/internal/repository/scylla"
	"insurego-auth/internal/util"
)

const (
	codeSpace       = 1000000 // codes are 000000..999999
	deliveryTimeout = 10 * time.Second
	verifyLockTTL   = 15 * time.Minute
)

// OTPService issues and verifies one-time passcodes. Each request creates a
// fresh challenge; issuing a new one supersedes any earlier unconsumed
// challenge for the same identifier and channel. Verification accepts a code
// at most once, even under concurrent requests.
type OTPService struct {
	challengeRepo scylla.ChallengeRepository
	encryptionMgr *encryption.Manager
	rateLimits    *redisrepo.RateLimitCache
	sender        delivery.Sender
	recorder      *audit.Recorder

	ttl           time.Duration
	requestLimit  int
	requestWindow time.Duration
	attemptLimit  int

	now func() time.Time
}

func NewOTPService(
	challengeRepo scylla.ChallengeRepository,
	encryptionMgr *encryption.Manager,
	rateLimits *redisrepo.RateLimitCache,
	sender delivery.Sender,
	recorder *audit.Recorder,
	ttl time.Duration,
	requestLimit int,
	requestWindow time.Duration,
	attemptLimit int,
) *OTPService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OTPService{
		challengeRepo: challengeRepo,
		encryptionMgr: encryptionMgr,
		rateLimits:    rateLimits,
		sender:        sender,
		recorder:      recorder,
		ttl:           ttl,
		requestLimit:  requestLimit,
		requestWindow: requestWindow,
		attemptLimit:  attemptLimit,
		now:           time.Now,
	}
}

// GenerateCode draws a uniformly random 6-digit code, zero-padded, from a
// cryptographic source.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// RequestChallenge issues a new challenge for the identifier and channel and
// hands the code to the delivery sender in the background. The returned
// challenge never leaves the service boundary with its code attached.
func (s *OTPService) RequestChallenge(ctx context.Context, rawIdentifier string, channel model.Channel) (*model.OTPChallenge, error) {
	identifier := util.NormalizeIdentifier(util.SanitizeInput(rawIdentifier))
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}
	if !model.ValidChannel(channel) {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, channel)
	}

	identifierHash := hashing.IdentifierHash(identifier)

	if s.rateLimits != nil {
		cnt, err := s.rateLimits.IncrementOTPRequests(ctx, identifierHash, s.requestWindow)
		if err != nil {
			util.Warn("OTP request throttle unavailable", zap.Error(err))
		} else if cnt > int64(s.requestLimit) {
			s.record(model.EventOTPRequested, identifierHash, model.OutcomeDenied, "rate limited")
			return nil, ErrTooManyRequests
		}
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	challenge := &model.OTPChallenge{
		IdentifierHash: identifierHash,
		Channel:        channel,
		Code:           code,
		ExpiresAt:      now.Add(s.ttl),
		Consumed:       false,
		CreatedAt:      now,
	}

	if s.encryptionMgr != nil {
		field, err := s.encryptionMgr.EncryptField(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("failed to protect contact: %w", err)
		}
		challenge.ContactEncrypted = field.Ciphertext
		challenge.ContactKeyID = field.KeyID
		challenge.ContactDEK = field.EncryptedDEK
	}

	if err := s.challengeRepo.CreateChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	// Delivery is fire-and-forget: the request has already succeeded once
	// the challenge is persisted, whatever happens on the wire.
	if s.sender != nil {
		go func(contact, code string, channel model.Channel) {
			sendCtx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
			defer cancel()
			if err := s.sender.Send(sendCtx, channel, contact, code); err != nil {
				util.Error("Failed to deliver verification code",
					zap.String("channel", string(channel)),
					zap.Error(err))
			}
		}(identifier, code, channel)
	}

	s.record(model.EventOTPRequested, identifierHash, model.OutcomeSuccess, string(channel))

	util.Info("Verification challenge issued",
		zap.String("identifier_hash", identifierHash),
		zap.String("channel", string(channel)),
		zap.Time("expires_at", challenge.ExpiresAt))

	return challenge, nil
}

// VerifyChallenge checks a submitted code against the latest unconsumed
// challenge for the pair. It returns true exactly once per issued code: a
// match consumes the challenge atomically, so a concurrent duplicate or any
// later retry of the same code reports false. Wrong, expired and superseded
// codes all report (false, nil) and leave stored state untouched.
func (s *OTPService) VerifyChallenge(ctx context.Context, rawIdentifier string, channel model.Channel, code string) (bool, error) {
	identifier := util.NormalizeIdentifier(util.SanitizeInput(rawIdentifier))
	if identifier == "" || code == "" {
		return false, fmt.Errorf("%w: identifier and code are required", ErrInvalidInput)
	}
	if !model.ValidChannel(channel) {
		return false, fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, channel)
	}

	identifierHash := hashing.IdentifierHash(identifier)

	if s.rateLimits != nil {
		locked, err := s.rateLimits.IsVerifyLocked(ctx, identifierHash)
		if err != nil {
			util.Warn("Verify lock check unavailable", zap.Error(err))
		} else if locked {
			s.record(model.EventOTPVerified, identifierHash, model.OutcomeDenied, "rate limited")
			return false, ErrTooManyRequests
		}
	}

	challenge, err := s.challengeRepo.LatestActive(ctx, identifierHash, channel)
	if err != nil {
		return false, err
	}
	if challenge == nil {
		s.record(model.EventOTPVerified, identifierHash, model.OutcomeFailure, "no active challenge")
		return false, nil
	}

	if s.now().UTC().After(challenge.ExpiresAt) {
		s.record(model.EventOTPVerified, identifierHash, model.OutcomeFailure, "expired")
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		s.noteFailedAttempt(ctx, identifierHash)
		s.record(model.EventOTPVerified, identifierHash, model.OutcomeFailure, "code mismatch")
		return false, nil
	}

	applied, err := s.challengeRepo.ConsumeChallenge(ctx, challenge)
	if err != nil {
		return false, err
	}
	if !applied {
		s.record(model.EventOTPVerified, identifierHash, model.OutcomeFailure, "already consumed")
		return false, nil
	}

	s.record(model.EventOTPVerified, identifierHash, model.OutcomeSuccess, string(channel))

	util.Info("Verification challenge consumed",
		zap.String("identifier_hash", identifierHash),
		zap.String("channel", string(channel)))

	return true, nil
}

func (s *OTPService) noteFailedAttempt(ctx context.Context, identifierHash string) {
	if s.rateLimits == nil {
		return
	}
	cnt, err := s.rateLimits.IncrementVerifyAttempts(ctx, identifierHash, s.ttl)
	if err != nil {
		return
	}
	if cnt >= int64(s.attemptLimit) {
		if err := s.rateLimits.SetVerifyLock(ctx, identifierHash, verifyLockTTL); err != nil {
			util.Warn("Failed to place verify lock", zap.Error(err))
		}
	}
}

func (s *OTPService) record(eventType, identifierHash, outcome, detail string) {
	if s.recorder != nil {
		s.recorder.Record(eventType, identifierHash, outcome, detail)
	}
}
