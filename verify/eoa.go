package verify

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/walletauth/siwe"
)

const ecdsaSignatureLen = 65

// RecoverableSignature reports whether sig has the shape of a plain
// secp256k1 signature. A wallet with no code, no wrapper and no recoverable
// signature cannot be verified at all.
func RecoverableSignature(sig []byte) bool {
	return len(sig) == ecdsaSignatureLen
}

// RecoverEOA verifies a key-pair account locally, with no oracle involved:
// it recovers the signer from the signature under each digest convention and
// compares against the claimed address. Wallets emit the recovery id as
// 27/28; go-ethereum expects 0/1.
func RecoverEOA(digests siwe.Digests, sig []byte, addr common.Address) bool {
	if !RecoverableSignature(sig) {
		return false
	}

	normalized := make([]byte, ecdsaSignatureLen)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	for _, digest := range []common.Hash{digests.Personal, digests.Raw} {
		pub, err := crypto.SigToPub(digest.Bytes(), normalized)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == addr {
			return true
		}
	}
	return false
}
