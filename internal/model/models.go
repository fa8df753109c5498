package model

import "time"

// -------------------- ROLES & CHANNELS --------------------

// Role is the coarse-grained authorization tag carried in session tokens.
type Role string

const (
	RolePatient  Role = "PATIENT"
	RoleDoctor   Role = "DOCTOR"
	RoleProvider Role = "PROVIDER"
	RoleAdmin    Role = "ADMIN"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RolePatient, RoleDoctor, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Channel identifies the out-of-band channel an OTP challenge targets.
type Channel string

const (
	ChannelPhone Channel = "PHONE"
	ChannelEmail Channel = "EMAIL"
)

// ValidChannel reports whether ch is a known delivery channel.
func ValidChannel(ch Channel) bool {
	return ch == ChannelPhone || ch == ChannelEmail
}

// -------------------- CREDENTIAL MODEL --------------------

// Credential is a registered login identity. The plaintext identifier is
// stored only in encrypted form; lookups go through IdentifierHash. The
// password hash is opaque and write-only: verification re-derives and
// compares, it never reads the hash back into a comparison of plaintexts.
type Credential struct {
	IdentifierHash      string     `json:"-" db:"identifier_hash"`
	Identifier          string     `json:"identifier" db:"-"` // plaintext, populated after decryption
	IdentifierEncrypted []byte     `json:"-" db:"identifier_encrypted"`
	IdentifierKeyID     string     `json:"-" db:"identifier_key_id"`
	IdentifierDEK       string     `json:"-" db:"identifier_dek"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	Role                Role       `json:"role" db:"role"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	LastLogin           *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// -------------------- OTP CHALLENGE MODEL --------------------

// OTPChallenge is a single issued one-time passcode. Consumed transitions
// false -> true exactly once; expired and superseded challenges are left in
// place (retention is an external concern). Only the most-recently-expiring
// unconsumed challenge for an (identifier, channel) pair is eligible for
// verification.
type OTPChallenge struct {
	ChallengeID      string    `json:"challenge_id" db:"challenge_id"`
	IdentifierHash   string    `json:"-" db:"identifier_hash"`
	Channel          Channel   `json:"channel" db:"channel"`
	Code             string    `json:"-" db:"code"` // 6 digits, zero-padded, never serialized
	ContactEncrypted []byte    `json:"-" db:"contact_encrypted"`
	ContactKeyID     string    `json:"-" db:"contact_key_id"`
	ContactDEK       string    `json:"-" db:"contact_dek"`
	ExpiresAt        time.Time `json:"expires_at" db:"expires_at"`
	Consumed         bool      `json:"consumed" db:"consumed"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// -------------------- AUDIT EVENT MODEL --------------------

// AuthEvent is an audit record of an authentication-relevant operation.
// Events are published best-effort; they never influence the outcome of the
// operation they describe.
type AuthEvent struct {
	EventID        string    `json:"event_id" db:"event_id"`
	EventType      string    `json:"event_type" db:"event_type"`
	IdentifierHash string    `json:"identifier_hash" db:"identifier_hash"`
	Outcome        string    `json:"outcome" db:"outcome"`
	Detail         string    `json:"detail,omitempty" db:"detail"`
	EventBucket    int       `json:"event_bucket" db:"event_bucket"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Audit event types.
const (
	EventRegister     = "credential.register"
	EventLogin        = "credential.login"
	EventOTPRequested = "otp.requested"
	EventOTPVerified  = "otp.verified"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)
