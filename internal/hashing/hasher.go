package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"insurego-auth/internal/util"
)

// ErrMalformedHash indicates a stored hash that is structurally invalid.
// That is a data-integrity failure, not a wrong password. Callers surface it
// as a server error and never retry.
var ErrMalformedHash = errors.New("malformed stored hash")

// Hasher produces and verifies salted, adaptive-cost password hashes.
// bcrypt embeds a per-hash random salt, so two hashes of the same plaintext
// differ while both verify.
type Hasher struct {
	cost int
}

// NewHasher creates a password hasher with the given bcrypt cost. Costs
// outside bcrypt's supported range fall back to the library default.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash derives a one-way hash of plaintext. The output is opaque: it is
// only ever stored and later passed back to Verify.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify recomputes the hash of plaintext against the stored value.
// A wrong password returns (false, nil); only a structurally invalid stored
// hash returns an error.
func (h *Hasher) Verify(plaintext, stored string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		util.Error("stored password hash is not a valid bcrypt hash",
			util.ErrorField(err))
		return false, ErrMalformedHash
	}
}

// IdentifierHash returns the deterministic SHA-256 digest used as the
// storage key for an identifier. The input must already be normalized.
func IdentifierHash(identifier string) string {
	normalized := strings.TrimSpace(identifier)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
