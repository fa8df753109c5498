package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"insurego-auth/internal/hashing"
	"insurego-auth/internal/model"
	"insurego-auth/internal/token"
)

func newTestAuthService(t *testing.T, repo *memCredentialRepo) *AuthService {
	t.Helper()
	issuer, err := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	return NewAuthService(repo, hashing.NewHasher(bcrypt.MinCost), issuer, nil, nil, nil)
}

func TestAuthService_Register(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates a credential", func(t *testing.T) {
		t.Parallel()

		repo := newMemCredentialRepo()
		svc := newTestAuthService(t, repo)

		cred, err := svc.Register(ctx, &RegisterRequest{
			Identifier: "user@example.com",
			Password:   "s3cret-password",
			Role:       "DOCTOR",
		})
		require.NoError(t, err)
		assert.Equal(t, model.RoleDoctor, cred.Role)
		assert.NotEqual(t, "s3cret-password", cred.PasswordHash)
		assert.NotEmpty(t, cred.IdentifierHash)
	})

	t.Run("duplicate identifier", func(t *testing.T) {
		t.Parallel()

		repo := newMemCredentialRepo()
		svc := newTestAuthService(t, repo)

		_, err := svc.Register(ctx, &RegisterRequest{Identifier: "dup@example.com", Password: "password-one"})
		require.NoError(t, err)

		_, err = svc.Register(ctx, &RegisterRequest{Identifier: "dup@example.com", Password: "password-two"})
		require.ErrorIs(t, err, ErrDuplicateIdentifier)
	})

	t.Run("duplicate detection survives case differences", func(t *testing.T) {
		t.Parallel()

		repo := newMemCredentialRepo()
		svc := newTestAuthService(t, repo)

		_, err := svc.Register(ctx, &RegisterRequest{Identifier: "Mixed@Example.com", Password: "password-one"})
		require.NoError(t, err)

		_, err = svc.Register(ctx, &RegisterRequest{Identifier: "mixed@example.com", Password: "password-two"})
		require.ErrorIs(t, err, ErrDuplicateIdentifier)
	})

	t.Run("role defaults to patient", func(t *testing.T) {
		t.Parallel()

		repo := newMemCredentialRepo()
		svc := newTestAuthService(t, repo)

		cred, err := svc.Register(ctx, &RegisterRequest{Identifier: "norole@example.com", Password: "s3cret-password"})
		require.NoError(t, err)
		assert.Equal(t, model.RolePatient, cred.Role)
	})

	t.Run("invalid input", func(t *testing.T) {
		t.Parallel()

		svc := newTestAuthService(t, newMemCredentialRepo())

		_, err := svc.Register(ctx, &RegisterRequest{Identifier: "", Password: "s3cret-password"})
		require.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.Register(ctx, &RegisterRequest{Identifier: "user@example.com", Password: "short"})
		require.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.Register(ctx, &RegisterRequest{Identifier: "user@example.com", Password: "s3cret-password", Role: "WIZARD"})
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*AuthService, *memCredentialRepo) {
		repo := newMemCredentialRepo()
		svc := newTestAuthService(t, repo)
		_, err := svc.Register(ctx, &RegisterRequest{
			Identifier: "login@example.com",
			Password:   "s3cret-password",
			Role:       "PROVIDER",
		})
		require.NoError(t, err)
		return svc, repo
	}

	t.Run("issues a validatable token", func(t *testing.T) {
		t.Parallel()

		svc, _ := setup(t)

		signed, cred, err := svc.Login(ctx, &LoginRequest{Identifier: "login@example.com", Password: "s3cret-password"})
		require.NoError(t, err)
		assert.Equal(t, model.RoleProvider, cred.Role)

		claims, err := svc.ValidateToken(signed)
		require.NoError(t, err)
		assert.Equal(t, "login@example.com", claims.Subject)
		assert.Equal(t, string(model.RoleProvider), claims.Role)
	})

	t.Run("records last login", func(t *testing.T) {
		t.Parallel()

		svc, repo := setup(t)

		_, _, err := svc.Login(ctx, &LoginRequest{Identifier: "login@example.com", Password: "s3cret-password"})
		require.NoError(t, err)

		stored, err := repo.GetByIdentifierHash(ctx, hashing.IdentifierHash("login@example.com"))
		require.NoError(t, err)
		require.NotNil(t, stored.LastLogin)
		assert.WithinDuration(t, time.Now().UTC(), *stored.LastLogin, 2*time.Second)
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Parallel()

		svc, _ := setup(t)

		_, _, err := svc.Login(ctx, &LoginRequest{Identifier: "login@example.com", Password: "wrong-password"})
		require.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		t.Parallel()

		svc, _ := setup(t)

		_, _, err := svc.Login(ctx, &LoginRequest{Identifier: "nobody@example.com", Password: "s3cret-password"})
		require.ErrorIs(t, err, ErrCredentialNotFound)
	})

	t.Run("store outage is not an authentication failure", func(t *testing.T) {
		t.Parallel()

		svc, repo := setup(t)
		repo.getErr = errors.New("failed to get credential: gocql: no hosts available in the pool")

		_, _, err := svc.Login(ctx, &LoginRequest{Identifier: "login@example.com", Password: "s3cret-password"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCredentialNotFound)
		assert.NotErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("identifier is normalized before lookup", func(t *testing.T) {
		t.Parallel()

		svc, _ := setup(t)

		_, cred, err := svc.Login(ctx, &LoginRequest{Identifier: "  LOGIN@Example.com ", Password: "s3cret-password"})
		require.NoError(t, err)
		assert.Equal(t, model.RoleProvider, cred.Role)
	})
}

func TestAuthService_ValidateToken(t *testing.T) {
	t.Parallel()

	svc := newTestAuthService(t, newMemCredentialRepo())

	_, err := svc.ValidateToken("garbage")
	require.ErrorIs(t, err, token.ErrInvalidToken)
}
