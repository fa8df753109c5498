package service

import (
	"go.uber.org/zap"

	"insurego-auth/internal/audit"
	"insurego-auth/internal/config"
	"insurego-auth/internal/delivery"
	"insurego-auth/internal/encryption"
	"insurego-auth/internal/hashing"
	redisrepo "insurego-auth/internal/repository/redis"
	"insurego-auth/internal/repository/scylla"
	"insurego-auth/internal/token"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg           *config.Config
	credRepo      scylla.CredentialRepository
	challengeRepo scylla.ChallengeRepository
	hasher        *hashing.Hasher
	issuer        *token.Issuer
	encryptionMgr *encryption.Manager
	rateLimits    *redisrepo.RateLimitCache
	sender        delivery.Sender
	recorder      *audit.Recorder
	logger        *zap.Logger

	authService *AuthService
	otpService  *OTPService
}

func NewServiceFactory(
	cfg *config.Config,
	credRepo scylla.CredentialRepository,
	challengeRepo scylla.ChallengeRepository,
	hasher *hashing.Hasher,
	issuer *token.Issuer,
	encryptionMgr *encryption.Manager,
	rateLimits *redisrepo.RateLimitCache,
	sender delivery.Sender,
	recorder *audit.Recorder,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		cfg:           cfg,
		credRepo:      credRepo,
		challengeRepo: challengeRepo,
		hasher:        hasher,
		issuer:        issuer,
		encryptionMgr: encryptionMgr,
		rateLimits:    rateLimits,
		sender:        sender,
		recorder:      recorder,
		logger:        logger,
	}
}

// AuthService returns the credential service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.credRepo,
			f.hasher,
			f.issuer,
			f.encryptionMgr,
			f.rateLimits,
			f.recorder,
		)
	}
	return f.authService
}

// OTPService returns the challenge service instance (singleton)
func (f *ServiceFactory) OTPService() *OTPService {
	if f.otpService == nil {
		f.otpService = NewOTPService(
			f.challengeRepo,
			f.encryptionMgr,
			f.rateLimits,
			f.sender,
			f.recorder,
			f.cfg.OTP.TTL,
			f.cfg.OTP.RequestLimit,
			f.cfg.OTP.RequestWindow,
			f.cfg.OTP.AttemptLimit,
		)
	}
	return f.otpService
}

// Cleanup flushes buffered audit events.
func (f *ServiceFactory) Cleanup() {
	if f.recorder != nil {
		f.recorder.Close()
	}
}
