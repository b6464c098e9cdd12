package siwe

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Digests holds both candidate digests of a login message. They are computed
// once, before any oracle call, so verification strategies never recompute.
type Digests struct {
	Personal common.Hash // EIP-191 personal-message convention
	Raw      common.Hash // plain keccak256 of the message bytes
}

// PersonalDigest hashes message under the EIP-191 personal-sign convention:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func PersonalDigest(message []byte) common.Hash {
	return common.BytesToHash(accounts.TextHash(message))
}

// RawDigest hashes the message bytes with no prefix, for wallets and tooling
// that sign the raw payload.
func RawDigest(message []byte) common.Hash {
	return crypto.Keccak256Hash(message)
}

// ComputeDigests derives both digest conventions from the message text.
func ComputeDigests(message []byte) Digests {
	return Digests{
		Personal: PersonalDigest(message),
		Raw:      RawDigest(message),
	}
}
