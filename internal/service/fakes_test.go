package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"insurego-auth/internal/model"
	"insurego-auth/internal/repository/scylla"
)

// memCredentialRepo is an in-memory CredentialRepository for tests. Setting
// getErr makes every lookup fail with that error, as a store outage would.
type memCredentialRepo struct {
	mu     sync.Mutex
	creds  map[string]*model.Credential
	getErr error
}

func newMemCredentialRepo() *memCredentialRepo {
	return &memCredentialRepo{creds: make(map[string]*model.Credential)}
}

func (r *memCredentialRepo) CreateCredential(ctx context.Context, cred *model.Credential) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.creds[cred.IdentifierHash]; exists {
		return false, nil
	}
	stored := *cred
	r.creds[cred.IdentifierHash] = &stored
	return true, nil
}

func (r *memCredentialRepo) GetByIdentifierHash(ctx context.Context, identifierHash string) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	cred, ok := r.creds[identifierHash]
	if !ok {
		return nil, fmt.Errorf("credential %w", scylla.ErrNotFound)
	}
	copied := *cred
	return &copied, nil
}

func (r *memCredentialRepo) UpdateLastLogin(ctx context.Context, identifierHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cred, ok := r.creds[identifierHash]; ok {
		cred.LastLogin = &at
	}
	return nil
}

// memChallengeRepo is an in-memory ChallengeRepository. ConsumeChallenge
// mirrors the conditional-update semantics of the real store: under
// contention exactly one caller sees applied=true.
type memChallengeRepo struct {
	mu         sync.Mutex
	nextID     int
	challenges []*model.OTPChallenge
}

func newMemChallengeRepo() *memChallengeRepo {
	return &memChallengeRepo{}
}

func (r *memChallengeRepo) CreateChallenge(ctx context.Context, challenge *model.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if challenge.ChallengeID == "" {
		r.nextID++
		challenge.ChallengeID = fmt.Sprintf("challenge-%d", r.nextID)
	}
	stored := *challenge
	r.challenges = append(r.challenges, &stored)
	return nil
}

func (r *memChallengeRepo) LatestActive(ctx context.Context, identifierHash string, channel model.Channel) (*model.OTPChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.OTPChallenge
	for _, ch := range r.challenges {
		if ch.IdentifierHash != identifierHash || ch.Channel != channel || ch.Consumed {
			continue
		}
		if latest == nil || ch.ExpiresAt.After(latest.ExpiresAt) {
			latest = ch
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *memChallengeRepo) ConsumeChallenge(ctx context.Context, challenge *model.OTPChallenge) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.challenges {
		if ch.ChallengeID != challenge.ChallengeID {
			continue
		}
		if ch.Consumed {
			return false, nil
		}
		ch.Consumed = true
		return true, nil
	}
	return false, nil
}

func (r *memChallengeRepo) get(challengeID string) *model.OTPChallenge {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.challenges {
		if ch.ChallengeID == challengeID {
			copied := *ch
			return &copied
		}
	}
	return nil
}

// recordingSender captures delivery attempts; an optional err makes every
// send fail.
type recordingSender struct {
	mu    sync.Mutex
	sends []sentMessage
	err   error
}

type sentMessage struct {
	channel model.Channel
	contact string
	code    string
}

func (s *recordingSender) Send(ctx context.Context, channel model.Channel, contact, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, sentMessage{channel: channel, contact: contact, code: code})
	return s.err
}

func (s *recordingSender) sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sends))
	copy(out, s.sends)
	return out
}
