package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/erc6492"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/siwe"
	"github.com/layer-3/walletauth/verify"
)

// Config carries the protocol parameters of the service.
type Config struct {
	// Domain is the host embedded in every signed message. A message bound
	// to another deployment never authenticates here.
	Domain string
	// ChainID is the only chain this deployment accepts logins for.
	ChainID int64
	// NonceTTL bounds how long an issued nonce stays acceptable.
	NonceTTL time.Duration
	// FreshnessWindow bounds |now - issuedAt| of the signed message.
	FreshnessWindow time.Duration
}

// AuthService orchestrates the challenge-response protocol: nonce issuance,
// the login state machine, and the session lifecycle around it.
type AuthService struct {
	cfg Config

	nonces     ports.NonceStore
	identities ports.IdentityStore
	attempts   ports.AttemptLog
	revoked    ports.RevocationStore
	tokenizer  ports.Tokenizer
	oracle     ports.ChainOracle
	eventPub   ports.EventPublisher
	log        *slog.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthService creates a new authentication service. All collaborators are
// injected; their lifecycles belong to the process entry point.
func NewAuthService(
	cfg Config,
	nonces ports.NonceStore,
	identities ports.IdentityStore,
	attempts ports.AttemptLog,
	revoked ports.RevocationStore,
	tokenizer ports.Tokenizer,
	oracle ports.ChainOracle,
	eventPub ports.EventPublisher,
	log *slog.Logger,
) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		cfg:        cfg,
		nonces:     nonces,
		identities: identities,
		attempts:   attempts,
		revoked:    revoked,
		tokenizer:  tokenizer,
		oracle:     oracle,
		eventPub:   eventPub,
		log:        log,
		accessTTL:  5 * time.Minute,
		refreshTTL: 5 * 24 * time.Hour, // 5 days
	}
}

// IssueNonce generates and persists a fresh single-use challenge.
func (s *AuthService) IssueNonce(ctx context.Context) (*core.Nonce, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now()
	nonce := &core.Nonce{
		Value:     hex.EncodeToString(nonceBytes),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.NonceTTL),
	}

	if err := s.nonces.Save(ctx, nonce); err != nil {
		return nil, fmt.Errorf("failed to store nonce: %w", err)
	}
	return nonce, nil
}

// Domain returns the host this deployment binds signed messages to.
func (s *AuthService) Domain() string { return s.cfg.Domain }

// AccessTTL returns the lifetime of issued access tokens. The transport
// derives cookie ages and expires_in from it.
func (s *AuthService) AccessTTL() time.Duration { return s.accessTTL }

// LoginInput is one inbound login request.
type LoginInput struct {
	Message   string // raw JSON message text the wallet signed
	Signature string // 0x-prefixed hex
	Address   string // claimed wallet address
	ChainID   int64  // caller-claimed chain id
	IP        string
	UserAgent string
}

// LoginResult is a successful authentication outcome.
type LoginResult struct {
	Identity     *core.Identity
	AccessToken  string
	RefreshToken string
}

// Login runs the authentication state machine. Exactly one attempt record is
// written per call, success or failure, before the result is returned. The
// attempt write itself is best-effort: a decision already made is never
// reversed because auditing failed.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	result, metadata, err := s.authenticate(ctx, in)

	attempt := &core.AuthAttempt{
		Address:   strings.ToLower(in.Address),
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Success:   err == nil,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	if err != nil {
		attempt.FailureReason = failureReason(err)
	}
	if auditErr := s.attempts.Record(ctx, attempt); auditErr != nil {
		s.log.Error("failed to record auth attempt",
			"address", attempt.Address, "error", auditErr)
	}

	if err != nil {
		return nil, err
	}

	if s.eventPub != nil {
		if pubErr := s.eventPub.PublishLogin(ctx, result.Identity.Address, result.Identity.ID); pubErr != nil {
			s.log.Warn("failed to publish login event",
				"address", result.Identity.Address, "error", pubErr)
		}
	}
	return result, nil
}

// authenticate walks the guards in protocol order. The returned metadata is
// attached to the attempt record either way.
func (s *AuthService) authenticate(ctx context.Context, in LoginInput) (*LoginResult, map[string]string, error) {
	metadata := map[string]string{}

	// Guard 1: request shape.
	if in.Message == "" || in.Signature == "" || in.Address == "" {
		return nil, metadata, core.ErrMalformedRequest
	}
	if !common.IsHexAddress(in.Address) {
		return nil, metadata, core.ErrMalformedRequest
	}
	sig, err := hexutil.Decode(in.Signature)
	if err != nil {
		return nil, metadata, core.ErrMalformedRequest
	}
	addr := common.HexToAddress(in.Address)

	// Guard 2: message structure.
	msg, err := siwe.ParseMessage(in.Message)
	if err != nil {
		return nil, metadata, core.ErrMalformedMessage
	}

	// Guard 3: nonce consumption. This is the replay barrier: the store's
	// conditional update decides the winner when requests race, and it
	// happens before any signature is trusted.
	if err := s.nonces.Consume(ctx, msg.Nonce, strings.ToLower(addr.Hex())); err != nil {
		switch {
		case errors.Is(err, core.ErrNonceNotFound),
			errors.Is(err, core.ErrNonceExpired),
			errors.Is(err, core.ErrNonceUsed):
			return nil, metadata, err
		default:
			return nil, metadata, fmt.Errorf("nonce consumption: %w", err)
		}
	}

	// Guard 4: freshness window.
	if drift := time.Since(msg.IssuedAt); drift > s.cfg.FreshnessWindow || drift < -s.cfg.FreshnessWindow {
		return nil, metadata, core.ErrStaleTimestamp
	}

	// Guard 5: domain binding.
	if msg.Domain != s.cfg.Domain {
		metadata["message_domain"] = msg.Domain
		return nil, metadata, core.ErrDomainMismatch
	}

	// Guard 6: chain binding.
	if in.ChainID != s.cfg.ChainID || (msg.ChainID != 0 && msg.ChainID != s.cfg.ChainID) {
		metadata["claimed_chain_id"] = fmt.Sprintf("%d", in.ChainID)
		return nil, metadata, core.ErrChainMismatch
	}

	// Guards 7-9: oracle query and verification.
	digests := siwe.ComputeDigests([]byte(in.Message))

	effectiveSig := sig
	wrapped, isWrapped := erc6492.TryUnwrap(sig)
	if isWrapped {
		effectiveSig = wrapped.InnerSignature
		metadata["predeploy_factory"] = wrapped.Factory.Hex()
	}

	hasCode, err := s.oracle.HasCode(ctx, addr)
	if err != nil {
		// Node trouble is a verification obstacle, not a server fault.
		// Details stay in the log, never in the response.
		s.log.Warn("oracle code lookup failed", "address", addr.Hex(), "error", err)
		hasCode = false
	}

	if !hasCode && !isWrapped {
		// Key-pair account path: recover the signer locally.
		if !verify.RecoverableSignature(sig) {
			return nil, metadata, core.ErrWalletNotVerifiable
		}
		if !verify.RecoverEOA(digests, sig, addr) {
			return nil, metadata, core.ErrInvalidSignature
		}
		metadata["strategy"] = "eoa_recovery"
	} else {
		// The deployment data rides along only while the wallet has no
		// code; once deployed, the wrapper degenerates to its inner
		// signature.
		var predeploy *ports.Predeploy
		if isWrapped && !hasCode {
			predeploy = &ports.Predeploy{
				Factory:         wrapped.Factory,
				FactoryCalldata: wrapped.FactoryCalldata,
			}
		}
		strategy, ok := verify.Run(ctx, s.oracle, addr, []byte(in.Message), digests, effectiveSig, predeploy)
		if !ok {
			return nil, metadata, core.ErrInvalidSignature
		}
		metadata["strategy"] = strategy
	}

	// Provision. Deliberately not transactional with the nonce consume:
	// both sides are idempotent-safe and a crash in between only costs the
	// caller a fresh nonce round-trip.
	identity, err := s.identities.UpsertByAddress(ctx, strings.ToLower(addr.Hex()))
	if err != nil {
		return nil, metadata, fmt.Errorf("identity provisioning: %w", err)
	}

	access, refresh, err := s.issueTokens(identity)
	if err != nil {
		return nil, metadata, fmt.Errorf("session issuance: %w", err)
	}

	return &LoginResult{
		Identity:     identity,
		AccessToken:  access,
		RefreshToken: refresh,
	}, metadata, nil
}

// issueTokens mints a fresh access/refresh pair for the identity.
func (s *AuthService) issueTokens(identity *core.Identity) (string, string, error) {
	now := time.Now()
	session := &core.Session{
		ID:            uuid.New().String(),
		IdentityID:    identity.ID,
		Address:       identity.Address,
		IssuedAt:      now,
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshExpiry: now.Add(s.refreshTTL),
		RefreshID:     uuid.New().String(),
	}

	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create access token: %w", err)
	}
	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens.
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (string, string, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	if time.Now().After(session.RefreshExpiry) {
		return "", "", core.ErrTokenExpired
	}

	invalidated, err := s.revoked.IsTokenInvalidated(ctx, session.RefreshID)
	if err != nil {
		return "", "", fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return "", "", core.ErrTokenInvalidated
	}

	// Retire the old refresh token for the rest of its natural lifetime.
	remaining := time.Until(session.RefreshExpiry)
	if err := s.revoked.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return "", "", fmt.Errorf("failed to invalidate old token: %w", err)
	}

	identity := &core.Identity{ID: session.IdentityID, Address: session.Address}
	return s.issueTokens(identity)
}

// Logout invalidates a refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	// Invalidate even already-expired tokens; a short floor covers clock
	// skew between instances.
	remaining := time.Until(session.RefreshExpiry)
	if remaining <= 0 {
		remaining = time.Hour
	}

	if err := s.revoked.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogout(ctx, session.Address, session.RefreshID); err != nil {
			// The token is already invalidated in the store, which is the
			// critical part.
			s.log.Warn("failed to publish logout event",
				"address", session.Address, "error", err)
		}
	}
	return nil
}

// ValidateAccessToken parses and validates an access token, checking the
// revocation state of its backing refresh token.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if time.Now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	if session.RefreshID != "" {
		invalidated, err := s.revoked.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}
	return session, nil
}

// failureReason maps a guard failure to its audit trail label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, core.ErrMalformedRequest):
		return core.ReasonMalformedRequest
	case errors.Is(err, core.ErrMalformedMessage):
		return core.ReasonMalformedMessage
	case errors.Is(err, core.ErrNonceNotFound):
		return core.ReasonInvalidNonce
	case errors.Is(err, core.ErrNonceExpired):
		return core.ReasonExpiredNonce
	case errors.Is(err, core.ErrNonceUsed):
		return core.ReasonReplay
	case errors.Is(err, core.ErrStaleTimestamp):
		return core.ReasonStaleTimestamp
	case errors.Is(err, core.ErrDomainMismatch):
		return core.ReasonDomainMismatch
	case errors.Is(err, core.ErrChainMismatch):
		return core.ReasonChainMismatch
	case errors.Is(err, core.ErrWalletNotVerifiable):
		return core.ReasonWalletNotVerifiable
	case errors.Is(err, core.ErrInvalidSignature):
		return core.ReasonInvalidSignature
	default:
		return core.ReasonInternalError
	}
}
