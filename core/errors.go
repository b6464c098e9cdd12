package core

import "errors"

var (
	// Login guard failures, in the order the orchestrator checks them.
	ErrMalformedRequest    = errors.New("malformed request")
	ErrMalformedMessage    = errors.New("malformed login message")
	ErrNonceNotFound       = errors.New("nonce not found")
	ErrNonceExpired        = errors.New("nonce has expired")
	ErrNonceUsed           = errors.New("nonce already used")
	ErrStaleTimestamp      = errors.New("message timestamp outside freshness window")
	ErrDomainMismatch      = errors.New("message domain does not match server domain")
	ErrChainMismatch       = errors.New("chain id does not match server chain")
	ErrWalletNotVerifiable = errors.New("wallet has no code, no predeploy wrapper and no recoverable key signature")
	ErrInvalidSignature    = errors.New("invalid signature")

	// Session token failures.
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")
)
