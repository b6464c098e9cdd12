package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ABIVariant selects which isValidSignature entry point to evaluate.
// Different smart-wallet standards expose different ones.
type ABIVariant int

const (
	// VariantDigest32 is isValidSignature(bytes32,bytes), ERC-1271.
	VariantDigest32 ABIVariant = iota
	// VariantRawBytes is the legacy isValidSignature(bytes,bytes).
	VariantRawBytes
)

// Predeploy carries the deployment data unwrapped from a predeploy
// signature: the factory to invoke and the calldata that brings the
// counterfactual wallet's code into existence.
type Predeploy struct {
	Factory         common.Address
	FactoryCalldata []byte
}

// ChainOracle is a read-only view of a blockchain node. Implementations must
// timebox every call independently; a slow node must not block anything but
// the strategy that asked.
type ChainOracle interface {
	// HasCode reports whether deployed bytecode exists at the address.
	HasCode(ctx context.Context, addr common.Address) (bool, error)

	// IsValidSignature evaluates the wallet contract's signature-validation
	// entry point and returns the raw return data. When predeploy is
	// non-nil the wallet has no code yet: the implementation must simulate
	// the factory deployment first, in the same simulated state the
	// signature check then runs in. Reverts, timeouts and transport errors
	// come back as errors; callers treat any error as "this strategy did
	// not succeed".
	IsValidSignature(ctx context.Context, addr common.Address, variant ABIVariant, data, sig []byte, predeploy *Predeploy) ([]byte, error)
}
