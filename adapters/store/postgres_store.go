package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/layer-3/walletauth/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS auth_nonces (
	value         TEXT PRIMARY KEY,
	issued_at     TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	used          BOOLEAN NOT NULL DEFAULT FALSE,
	used_at       TIMESTAMPTZ,
	bound_address TEXT
);
CREATE INDEX IF NOT EXISTS auth_nonces_expires_at_idx ON auth_nonces (expires_at);

CREATE TABLE IF NOT EXISTS identities (
	id           UUID PRIMARY KEY,
	address      TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	last_seen_at TIMESTAMPTZ NOT NULL,
	online       BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS auth_attempts (
	id             UUID PRIMARY KEY,
	address        TEXT NOT NULL,
	ip             TEXT NOT NULL,
	user_agent     TEXT NOT NULL,
	success        BOOLEAN NOT NULL,
	failure_reason TEXT,
	metadata       JSONB,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS auth_attempts_address_idx ON auth_attempts (address, created_at);
`

// PostgresStore implements the nonce, identity and attempt ports on one
// pgx pool. Postgres is what makes nonce consumption and identity
// provisioning safe across horizontally scaled instances: both are single
// conditional statements, never read-modify-write in the application.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store around an existing pool. The pool's
// lifecycle is owned by the process entry point.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Save persists a freshly issued nonce.
func (s *PostgresStore) Save(ctx context.Context, nonce *core.Nonce) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auth_nonces (value, issued_at, expires_at, used) VALUES ($1, $2, $3, FALSE)`,
		nonce.Value, nonce.IssuedAt, nonce.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save nonce: %w", err)
	}
	return nil
}

// Consume marks the nonce used with a single conditional update. When two
// requests race on the same value, the row version decides the winner; the
// loser sees zero rows affected and gets a diagnostic re-read.
func (s *PostgresStore) Consume(ctx context.Context, value, boundAddress string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auth_nonces
		 SET used = TRUE, used_at = now(), bound_address = $2
		 WHERE value = $1 AND used = FALSE AND expires_at > now()`,
		value, boundAddress)
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// The security decision is already "reject"; this read only picks the
	// audit reason.
	var used bool
	var expiresAt time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT used, expires_at FROM auth_nonces WHERE value = $1`, value).Scan(&used, &expiresAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return core.ErrNonceNotFound
	case err != nil:
		return fmt.Errorf("diagnose nonce rejection: %w", err)
	case used:
		return core.ErrNonceUsed
	default:
		return core.ErrNonceExpired
	}
}

// DeleteExpiredNonces garbage-collects nonces past their expiry. Consumed
// and expired-unused rows alike are eligible once expired.
func (s *PostgresStore) DeleteExpiredNonces(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_nonces WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired nonces: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertByAddress finds or creates the identity for address in one
// statement. ON CONFLICT folds the first-login race into the insert: the
// loser's statement becomes the update and returns the winner's row.
func (s *PostgresStore) UpsertByAddress(ctx context.Context, address string) (*core.Identity, error) {
	var identity core.Identity
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (id, address, display_name, created_at, last_seen_at, online)
		 VALUES ($1, $2, $3, now(), now(), TRUE)
		 ON CONFLICT (address) DO UPDATE SET last_seen_at = now(), online = TRUE
		 RETURNING id, address, display_name, created_at, last_seen_at, online`,
		uuid.New().String(), address, shortAddress(address)).
		Scan(&identity.ID, &identity.Address, &identity.DisplayName,
			&identity.CreatedAt, &identity.LastSeenAt, &identity.Online)
	if err != nil {
		return nil, fmt.Errorf("upsert identity %s: %w", address, err)
	}
	return &identity, nil
}

// Record appends one attempt row. Callers treat failures as best-effort.
func (s *PostgresStore) Record(ctx context.Context, attempt *core.AuthAttempt) error {
	var metadata []byte
	if len(attempt.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(attempt.Metadata)
		if err != nil {
			return fmt.Errorf("marshal attempt metadata: %w", err)
		}
	}

	var reason *string
	if attempt.FailureReason != "" {
		reason = &attempt.FailureReason
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO auth_attempts (id, address, ip, user_agent, success, failure_reason, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), attempt.Address, attempt.IP, attempt.UserAgent,
		attempt.Success, reason, metadata, attempt.Timestamp)
	if err != nil {
		return fmt.Errorf("record auth attempt: %w", err)
	}
	return nil
}

// shortAddress is the default display name for a fresh identity, e.g.
// "0x1234…cdef".
func shortAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}
