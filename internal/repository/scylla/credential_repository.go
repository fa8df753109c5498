package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"insurego-auth/internal/model"
	"insurego-auth/internal/util"
)

type ScyllaCredentialRepository struct {
	client *ScyllaClient
}

func NewCredentialRepository(client *ScyllaClient) *ScyllaCredentialRepository {
	return &ScyllaCredentialRepository{
		client: client,
	}
}

func (r *ScyllaCredentialRepository) CreateCredential(ctx context.Context, cred *model.Credential) (bool, error) {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.CreateCredential.Bind(
		cred.IdentifierHash, cred.IdentifierEncrypted, cred.IdentifierKeyID,
		cred.IdentifierDEK, cred.PasswordHash, string(cred.Role),
		cred.CreatedAt, cred.LastLogin).WithContext(ctx)

	applied, err := query.MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to create credential",
			zap.String("identifier_hash", cred.IdentifierHash),
			zap.Error(err))
		return false, fmt.Errorf("failed to create credential: %w", err)
	}

	if !applied {
		util.Info("Credential already exists",
			zap.String("identifier_hash", cred.IdentifierHash))
		return false, nil
	}

	util.Info("Credential created successfully",
		zap.String("identifier_hash", cred.IdentifierHash),
		zap.String("role", string(cred.Role)))

	return true, nil
}

func (r *ScyllaCredentialRepository) GetByIdentifierHash(ctx context.Context, identifierHash string) (*model.Credential, error) {
	cred := &model.Credential{}
	var role string

	query := r.client.Prepared.GetCredential.Bind(identifierHash).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&cred.IdentifierHash, &cred.IdentifierEncrypted, &cred.IdentifierKeyID,
		&cred.IdentifierDEK, &cred.PasswordHash, &role,
		&cred.CreatedAt, &cred.LastLogin)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("credential %w", ErrNotFound)
		}
		util.Error("Failed to get credential",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	cred.Role = model.Role(role)
	return cred, nil
}

func (r *ScyllaCredentialRepository) UpdateLastLogin(ctx context.Context, identifierHash string, at time.Time) error {
	query := r.client.Prepared.UpdateLastLogin.Bind(at, identifierHash).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update last login",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}
