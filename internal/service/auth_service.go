package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"insurego-auth/internal/audit"
	"insurego-auth/internal/encryption"
	"insurego-auth/internal/hashing"
	"insurego-auth/internal/model"
	redisrepo "insurego-auth/internal/repository/redis"
	"insurego-auth/internal/repository/scylla"
	"insurego-auth/internal/token"
	"insurego-auth/internal/util"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateIdentifier = errors.New("identifier already registered")
	ErrCredentialNotFound  = errors.New("credential not found")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrTooManyRequests     = errors.New("too many requests")
)

const (
	minPasswordLength = 8
	loginAttemptLimit = 10
	loginWindow       = 15 * time.Minute
)

// AuthService owns credential registration, password login and session
// token validation. ErrCredentialNotFound and ErrInvalidCredential stay
// distinct here for logging and auditing; the handler collapses both into
// one generic authentication failure.
type AuthService struct {
	credRepo      scylla.CredentialRepository
	hasher        *hashing.Hasher
	issuer        *token.Issuer
	encryptionMgr *encryption.Manager
	rateLimits    *redisrepo.RateLimitCache
	recorder      *audit.Recorder
}

type RegisterRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func NewAuthService(
	credRepo scylla.CredentialRepository,
	hasher *hashing.Hasher,
	issuer *token.Issuer,
	encryptionMgr *encryption.Manager,
	rateLimits *redisrepo.RateLimitCache,
	recorder *audit.Recorder,
) *AuthService {
	return &AuthService{
		credRepo:      credRepo,
		hasher:        hasher,
		issuer:        issuer,
		encryptionMgr: encryptionMgr,
		rateLimits:    rateLimits,
		recorder:      recorder,
	}
}

// Register creates a credential for a previously unregistered identifier.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*model.Credential, error) {
	identifier := util.NormalizeIdentifier(util.SanitizeInput(req.Identifier))
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	role := model.Role(req.Role)
	if role == "" {
		role = model.RolePatient
	}
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	identifierHash := hashing.IdentifierHash(identifier)

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	cred := &model.Credential{
		IdentifierHash: identifierHash,
		Identifier:     identifier,
		PasswordHash:   passwordHash,
		Role:           role,
		CreatedAt:      time.Now().UTC(),
	}

	if s.encryptionMgr != nil {
		field, err := s.encryptionMgr.EncryptField(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("failed to protect identifier: %w", err)
		}
		cred.IdentifierEncrypted = field.Ciphertext
		cred.IdentifierKeyID = field.KeyID
		cred.IdentifierDEK = field.EncryptedDEK
	}

	applied, err := s.credRepo.CreateCredential(ctx, cred)
	if err != nil {
		return nil, err
	}
	if !applied {
		s.record(model.EventRegister, identifierHash, model.OutcomeDenied, "duplicate identifier")
		return nil, ErrDuplicateIdentifier
	}

	s.record(model.EventRegister, identifierHash, model.OutcomeSuccess, string(role))

	util.Info("Credential registered",
		zap.String("identifier_hash", identifierHash),
		zap.String("role", string(role)))

	return cred, nil
}

// Login verifies a password against the stored credential and issues a
// session token on success.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (string, *model.Credential, error) {
	identifier := util.NormalizeIdentifier(util.SanitizeInput(req.Identifier))
	if identifier == "" || req.Password == "" {
		return "", nil, fmt.Errorf("%w: identifier and password are required", ErrInvalidInput)
	}

	identifierHash := hashing.IdentifierHash(identifier)

	if s.rateLimits != nil {
		cnt, err := s.rateLimits.IncrementLoginAttempts(ctx, identifierHash, loginWindow)
		if err != nil {
			util.Warn("Login throttle unavailable", zap.Error(err))
		} else if cnt > loginAttemptLimit {
			s.record(model.EventLogin, identifierHash, model.OutcomeDenied, "rate limited")
			return "", nil, ErrTooManyRequests
		}
	}

	cred, err := s.credRepo.GetByIdentifierHash(ctx, identifierHash)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			s.record(model.EventLogin, identifierHash, model.OutcomeFailure, "unknown identifier")
			return "", nil, fmt.Errorf("%w: %v", ErrCredentialNotFound, err)
		}
		// A store failure is not an authentication failure. Propagate it so
		// the boundary answers with a server error instead of a 401.
		util.Error("Credential lookup failed",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return "", nil, err
	}

	ok, err := s.hasher.Verify(req.Password, cred.PasswordHash)
	if err != nil {
		// Structurally broken stored hash: a data problem, not a wrong
		// password. Propagate so the boundary answers with a server error.
		return "", nil, err
	}
	if !ok {
		s.record(model.EventLogin, identifierHash, model.OutcomeFailure, "password mismatch")
		return "", nil, ErrInvalidCredential
	}

	if s.rateLimits != nil {
		if err := s.rateLimits.ResetLoginAttempts(ctx, identifierHash, loginWindow); err != nil {
			util.Warn("Failed to reset login throttle", zap.Error(err))
		}
	}

	now := time.Now().UTC()
	if err := s.credRepo.UpdateLastLogin(ctx, identifierHash, now); err != nil {
		util.Warn("Failed to record last login",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
	}
	cred.LastLogin = &now

	signed, err := s.issuer.Issue(identifier, cred.Role)
	if err != nil {
		return "", nil, err
	}

	s.record(model.EventLogin, identifierHash, model.OutcomeSuccess, string(cred.Role))

	util.Info("Login succeeded",
		zap.String("identifier_hash", identifierHash),
		zap.String("role", string(cred.Role)))

	return signed, cred, nil
}

// ValidateToken checks a presented session token and returns its claims.
// All failures surface as token.ErrInvalidToken.
func (s *AuthService) ValidateToken(tokenString string) (*token.SessionClaims, error) {
	return s.issuer.Validate(tokenString)
}

// TokenTTL exposes the configured session lifetime for response metadata.
func (s *AuthService) TokenTTL() time.Duration {
	return s.issuer.TTL()
}

func (s *AuthService) record(eventType, identifierHash, outcome, detail string) {
	if s.recorder != nil {
		s.recorder.Record(eventType, identifierHash, outcome, detail)
	}
}
