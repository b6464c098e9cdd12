// Package siwe implements the sign-in-with-Ethereum login message: the
// JSON payload a wallet signs to answer a nonce challenge, and the digest
// conventions under which that payload may have been signed.
package siwe

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message is the structured payload embedded in a login request. The wallet
// signs the raw JSON text; the server parses it to recover the challenge
// context. Domain, Nonce and IssuedAt are mandatory.
type Message struct {
	Domain    string    `json:"domain"`
	Address   string    `json:"address,omitempty"`
	Statement string    `json:"statement,omitempty"`
	URI       string    `json:"uri,omitempty"`
	Version   string    `json:"version,omitempty"`
	ChainID   int64     `json:"chainId,omitempty"`
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issuedAt"`
}

var (
	ErrMissingDomain   = errors.New("message has no domain")
	ErrMissingNonce    = errors.New("message has no nonce")
	ErrMissingIssuedAt = errors.New("message has no issuedAt")
)

// ParseMessage decodes the signed message text. The raw bytes of the input,
// not the parsed form, are what digests are computed over.
func ParseMessage(raw string) (*Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode login message: %w", err)
	}
	if m.Domain == "" {
		return nil, ErrMissingDomain
	}
	if m.Nonce == "" {
		return nil, ErrMissingNonce
	}
	if m.IssuedAt.IsZero() {
		return nil, ErrMissingIssuedAt
	}
	return &m, nil
}
