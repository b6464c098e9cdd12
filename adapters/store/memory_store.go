package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/walletauth/core"
)

// MemoryStore is an in-memory implementation of the nonce, identity and
// attempt ports. Single-node only; meant for tests and local development.
// The mutex gives it the same consume-once and upsert-once guarantees the
// Postgres store gets from conditional statements.
type MemoryStore struct {
	mu         sync.Mutex
	nonces     map[string]*core.Nonce
	identities map[string]*core.Identity // keyed by address
	attempts   []core.AuthAttempt
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces:     make(map[string]*core.Nonce),
		identities: make(map[string]*core.Identity),
	}
}

// Save persists a freshly issued nonce.
func (s *MemoryStore) Save(ctx context.Context, nonce *core.Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := *nonce
	s.nonces[n.Value] = &n
	return nil
}

// Consume marks the nonce used, first caller wins.
func (s *MemoryStore) Consume(ctx context.Context, value, boundAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nonces[value]
	if !ok {
		return core.ErrNonceNotFound
	}
	if n.Used {
		return core.ErrNonceUsed
	}
	if time.Now().After(n.ExpiresAt) {
		return core.ErrNonceExpired
	}

	now := time.Now()
	n.Used = true
	n.UsedAt = &now
	n.BoundAddress = boundAddress
	return nil
}

// UpsertByAddress finds or creates the identity for address.
func (s *MemoryStore) UpsertByAddress(ctx context.Context, address string) (*core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if identity, ok := s.identities[address]; ok {
		identity.LastSeenAt = now
		identity.Online = true
		cp := *identity
		return &cp, nil
	}

	identity := &core.Identity{
		ID:          uuid.New().String(),
		Address:     address,
		DisplayName: shortAddress(address),
		CreatedAt:   now,
		LastSeenAt:  now,
		Online:      true,
	}
	s.identities[address] = identity
	cp := *identity
	return &cp, nil
}

// Record appends one attempt record.
func (s *MemoryStore) Record(ctx context.Context, attempt *core.AuthAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, *attempt)
	return nil
}

// Attempts returns a copy of the recorded attempt trail, oldest first.
func (s *MemoryStore) Attempts() []core.AuthAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.AuthAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// IdentityCount returns the number of provisioned identities.
func (s *MemoryStore) IdentityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities)
}

// ExpireNonce force-expires a stored nonce. Test helper.
func (s *MemoryStore) ExpireNonce(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nonces[value]; ok {
		n.ExpiresAt = time.Now().Add(-time.Second)
	}
}

// MemoryRevocationStore is an in-memory revocation list for refresh tokens.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

// NewMemoryRevocationStore creates an empty revocation store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]time.Time)}
}

// InvalidateToken marks a token as invalidated until expiry elapses.
func (s *MemoryRevocationStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[tokenID] = time.Now().Add(expiry)
	return nil
}

// IsTokenInvalidated checks whether a token is currently invalidated.
func (s *MemoryRevocationStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiry), nil
}
