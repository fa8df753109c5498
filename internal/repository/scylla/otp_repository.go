package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"insurego-auth/internal/model"
	"insurego-auth/internal/util"
)

type ScyllaChallengeRepository struct {
	client *ScyllaClient
}

func NewChallengeRepository(client *ScyllaClient) *ScyllaChallengeRepository {
	return &ScyllaChallengeRepository{
		client: client,
	}
}

func (r *ScyllaChallengeRepository) CreateChallenge(ctx context.Context, challenge *model.OTPChallenge) error {
	if challenge.ChallengeID == "" {
		challenge.ChallengeID = uuid.New().String()
	}
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.CreateChallenge.Bind(
		challenge.IdentifierHash, string(challenge.Channel), challenge.ExpiresAt,
		challenge.ChallengeID, challenge.Code,
		challenge.ContactEncrypted, challenge.ContactKeyID, challenge.ContactDEK,
		challenge.Consumed, challenge.CreatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create challenge",
			zap.String("identifier_hash", challenge.IdentifierHash),
			zap.String("challenge_id", challenge.ChallengeID),
			zap.Error(err))
		return fmt.Errorf("failed to create challenge: %w", err)
	}

	util.Info("Challenge created successfully",
		zap.String("identifier_hash", challenge.IdentifierHash),
		zap.String("channel", string(challenge.Channel)),
		zap.String("challenge_id", challenge.ChallengeID),
		zap.Time("expires_at", challenge.ExpiresAt))

	return nil
}

// LatestActive walks challenges for the pair in expires_at DESC order and
// returns the first unconsumed one. Older unconsumed challenges are
// superseded: they stay in place but can never verify.
func (r *ScyllaChallengeRepository) LatestActive(ctx context.Context, identifierHash string, channel model.Channel) (*model.OTPChallenge, error) {
	iter := r.client.Prepared.GetChallenges.Bind(identifierHash, string(channel)).WithContext(ctx).Iter()

	var (
		found bool
		ch    model.OTPChallenge
		chStr string
	)

	for {
		var row model.OTPChallenge
		var rowChannel string
		if !iter.Scan(
			&row.IdentifierHash, &rowChannel, &row.ExpiresAt,
			&row.ChallengeID, &row.Code,
			&row.ContactEncrypted, &row.ContactKeyID, &row.ContactDEK,
			&row.Consumed, &row.CreatedAt) {
			break
		}
		if row.Consumed {
			continue
		}
		ch = row
		chStr = rowChannel
		found = true
		break
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to scan challenges",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return nil, fmt.Errorf("failed to scan challenges: %w", err)
	}

	if !found {
		return nil, nil
	}

	ch.Channel = model.Channel(chStr)
	return &ch, nil
}

// ConsumeChallenge performs the conditional update that guarantees a code is
// accepted at most once. Concurrent verifications race on the same row; the
// applied flag from the lightweight transaction picks exactly one winner.
func (r *ScyllaChallengeRepository) ConsumeChallenge(ctx context.Context, challenge *model.OTPChallenge) (bool, error) {
	query := r.client.Prepared.ConsumeChallenge.Bind(
		challenge.IdentifierHash, string(challenge.Channel),
		challenge.ExpiresAt, challenge.ChallengeID).WithContext(ctx)

	applied, err := query.MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to consume challenge",
			zap.String("identifier_hash", challenge.IdentifierHash),
			zap.String("challenge_id", challenge.ChallengeID),
			zap.Error(err))
		return false, fmt.Errorf("failed to consume challenge: %w", err)
	}

	if !applied {
		util.Warn("Challenge already consumed",
			zap.String("identifier_hash", challenge.IdentifierHash),
			zap.String("challenge_id", challenge.ChallengeID))
		return false, nil
	}

	util.Info("Challenge consumed",
		zap.String("identifier_hash", challenge.IdentifierHash),
		zap.String("challenge_id", challenge.ChallengeID))

	return true, nil
}
