package ports

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/core"
)

// NonceStore persists single-use login challenges. Consume is the only
// cross-request mutual-exclusion point in the protocol and must be an atomic
// conditional update in the backing store, not an application-level lock.
type NonceStore interface {
	// Save persists a freshly issued nonce.
	Save(ctx context.Context, nonce *core.Nonce) error

	// Consume marks the nonce used, binding it to the presenting address.
	// It succeeds at most once per value: the update applies only while the
	// nonce is unused and unexpired. On failure it returns
	// core.ErrNonceNotFound, core.ErrNonceExpired or core.ErrNonceUsed;
	// the distinction is diagnostic only, all three mean reject.
	Consume(ctx context.Context, value, boundAddress string) error
}

// IdentityStore provisions and looks up wallet identities.
type IdentityStore interface {
	// UpsertByAddress finds or creates the identity for a (lowercased)
	// wallet address as one atomic operation. Losing an insert race to a
	// concurrent first login must return the winner's row, never an error.
	UpsertByAddress(ctx context.Context, address string) (*core.Identity, error)
}

// AttemptLog appends authentication attempt records. Writes are best-effort
// from the caller's point of view: a failed write never reverses an
// authentication decision already made.
type AttemptLog interface {
	Record(ctx context.Context, attempt *core.AuthAttempt) error
}

// RevocationStore tracks invalidated refresh token IDs until they would have
// expired anyway.
type RevocationStore interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}
