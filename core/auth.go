package core

import "time"

// Nonce is a single-use login challenge issued to a wallet before signing.
type Nonce struct {
	Value        string     // Cryptographically random challenge value
	IssuedAt     time.Time  // When the nonce was issued
	ExpiresAt    time.Time  // When the nonce stops being acceptable
	Used         bool       // Set exactly once, by the successful login that consumed it
	UsedAt       *time.Time // When the nonce was consumed, if it was
	BoundAddress string     // Address that consumed the nonce, if any
}

// Identity is the server-side account behind a wallet address.
// Address is unique and stored lowercased; it is the only lookup key.
type Identity struct {
	ID          string
	Address     string
	DisplayName string
	CreatedAt   time.Time
	LastSeenAt  time.Time
	Online      bool
}

// AuthAttempt is one append-only audit record per inbound login request,
// written regardless of the outcome and never mutated afterwards.
type AuthAttempt struct {
	Address       string
	IP            string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
	Timestamp     time.Time
}

// Session represents an authenticated user session.
type Session struct {
	ID            string    // Unique session identifier
	IdentityID    string    // Identity the session belongs to
	Address       string    // Wallet address of the user
	IssuedAt      time.Time // When the session was created
	AccessExpiry  time.Time // When the access capability expires
	RefreshExpiry time.Time // When the refresh capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// Audit failure reasons, recorded verbatim in the attempt trail.
const (
	ReasonMalformedRequest    = "malformed_request"
	ReasonMalformedMessage    = "malformed_message"
	ReasonInvalidNonce        = "invalid_nonce"
	ReasonExpiredNonce        = "expired_nonce"
	ReasonReplay              = "replay"
	ReasonStaleTimestamp      = "stale_timestamp"
	ReasonDomainMismatch      = "domain_mismatch"
	ReasonChainMismatch       = "chain_mismatch"
	ReasonWalletNotVerifiable = "wallet_not_verifiable"
	ReasonInvalidSignature    = "invalid_signature"
	ReasonInternalError       = "internal_error"
)
