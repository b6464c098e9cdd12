// Package verify runs signature verification strategies against a chain
// oracle. Each strategy pairs a digest convention with one of the two
// isValidSignature ABI variants; the first one whose contract call returns
// its magic value wins.
package verify

import (
	"bytes"
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/siwe"
)

// ERC-1271 success sentinels. Each ABI variant echoes its own selector as
// the magic return value.
var (
	MagicDigest32 = [4]byte{0x16, 0x26, 0xba, 0x7e} // isValidSignature(bytes32,bytes)
	MagicRawBytes = [4]byte{0x20, 0xc1, 0x3b, 0x0b} // isValidSignature(bytes,bytes)
)

// Strategy is one independent verification attempt. Attempt returns true
// only when the oracle call returned the strategy's magic value; reverts,
// timeouts and any other return data are failures for this strategy alone.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, oracle ports.ChainOracle, addr common.Address, message []byte, digests siwe.Digests, sig []byte, predeploy *ports.Predeploy) bool
}

type digestStrategy struct {
	name   string
	digest func(siwe.Digests) common.Hash
}

func (s digestStrategy) Name() string { return s.name }

func (s digestStrategy) Attempt(ctx context.Context, oracle ports.ChainOracle, addr common.Address, _ []byte, digests siwe.Digests, sig []byte, predeploy *ports.Predeploy) bool {
	ret, err := oracle.IsValidSignature(ctx, addr, ports.VariantDigest32, s.digest(digests).Bytes(), sig, predeploy)
	if err != nil {
		return false
	}
	return hasMagic(ret, MagicDigest32)
}

type rawMessageStrategy struct{}

func (rawMessageStrategy) Name() string { return "erc1271_raw_message" }

func (rawMessageStrategy) Attempt(ctx context.Context, oracle ports.ChainOracle, addr common.Address, message []byte, _ siwe.Digests, sig []byte, predeploy *ports.Predeploy) bool {
	ret, err := oracle.IsValidSignature(ctx, addr, ports.VariantRawBytes, message, sig, predeploy)
	if err != nil {
		return false
	}
	return hasMagic(ret, MagicRawBytes)
}

// Strategies returns the ordered strategy set. New smart-wallet standards
// are added here without touching the orchestrator.
func Strategies() []Strategy {
	return []Strategy{
		digestStrategy{name: "erc1271_personal_digest", digest: func(d siwe.Digests) common.Hash { return d.Personal }},
		digestStrategy{name: "erc1271_raw_digest", digest: func(d siwe.Digests) common.Hash { return d.Raw }},
		rawMessageStrategy{},
	}
}

// Run evaluates the strategy set in order, short-circuiting on the first
// success. It returns the winning strategy's name. A non-nil predeploy is
// handed to the oracle on every attempt, so each one evaluates against the
// simulated-deployed wallet.
func Run(ctx context.Context, oracle ports.ChainOracle, addr common.Address, message []byte, digests siwe.Digests, sig []byte, predeploy *ports.Predeploy) (string, bool) {
	for _, s := range Strategies() {
		if s.Attempt(ctx, oracle, addr, message, digests, sig, predeploy) {
			return s.Name(), true
		}
	}
	return "", false
}

// hasMagic checks that the call returned the 4-byte magic value, either bare
// or left-aligned in a 32-byte word.
func hasMagic(ret []byte, magic [4]byte) bool {
	return len(ret) >= 4 && bytes.Equal(ret[:4], magic[:])
}
