package scylla

import (
	"context"
	"errors"
	"time"

	"insurego-auth/internal/model"
)

// ErrNotFound reports that no row exists for the requested key. Callers
// check it with errors.Is to tell a missing record from a store failure.
var ErrNotFound = errors.New("not found")

// CredentialRepository persists registered login identities.
type CredentialRepository interface {
	// CreateCredential inserts a credential if none exists for its
	// identifier hash. The bool reports whether the insert was applied;
	// false means the identifier is already registered.
	CreateCredential(ctx context.Context, cred *model.Credential) (bool, error)

	// GetByIdentifierHash returns the credential for the hash, or an
	// ErrNotFound-wrapped error when none exists.
	GetByIdentifierHash(ctx context.Context, identifierHash string) (*model.Credential, error)

	// UpdateLastLogin records a successful login timestamp.
	UpdateLastLogin(ctx context.Context, identifierHash string, at time.Time) error
}

// ChallengeRepository persists one-time passcode challenges.
type ChallengeRepository interface {
	// CreateChallenge stores a freshly issued challenge.
	CreateChallenge(ctx context.Context, challenge *model.OTPChallenge) error

	// LatestActive returns the most-recently-expiring unconsumed challenge
	// for the identifier/channel pair, or nil when there is none.
	LatestActive(ctx context.Context, identifierHash string, channel model.Channel) (*model.OTPChallenge, error)

	// ConsumeChallenge atomically flips the challenge to consumed. The bool
	// reports whether this call won the transition; false means another
	// request consumed it first.
	ConsumeChallenge(ctx context.Context, challenge *model.OTPChallenge) (bool, error)
}
