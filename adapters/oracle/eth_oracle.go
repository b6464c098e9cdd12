// Package oracle implements the chain oracle port on top of a go-ethereum
// JSON-RPC client. The node is consumed strictly read-only: eth_getCode,
// eth_call and eth_simulateV1, nothing else.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/layer-3/walletauth/ports"
)

// Function selectors for the two isValidSignature entry points.
var (
	selectorDigest32 = [4]byte{0x16, 0x26, 0xba, 0x7e} // isValidSignature(bytes32,bytes)
	selectorRawBytes = [4]byte{0x20, 0xc1, 0x3b, 0x0b} // isValidSignature(bytes,bytes)
)

var (
	digest32Args abi.Arguments
	rawBytesArgs abi.Arguments
)

func init() {
	bytes32T, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	bytesT, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	digest32Args = abi.Arguments{{Type: bytes32T}, {Type: bytesT}}
	rawBytesArgs = abi.Arguments{{Type: bytesT}, {Type: bytesT}}
}

// EthOracle is a ChainOracle backed by an Ethereum node. Every call runs
// under its own timeout; the caller's context is never held open against a
// stuck node.
type EthOracle struct {
	client  *ethclient.Client
	rpc     *rpc.Client
	timeout time.Duration
}

// NewEthOracle creates an oracle around an already-dialed RPC client. The
// raw client is kept alongside the typed one because the predeploy path
// needs eth_simulateV1, which ethclient does not wrap.
func NewEthOracle(rpcClient *rpc.Client, timeout time.Duration) *EthOracle {
	return &EthOracle{
		client:  ethclient.NewClient(rpcClient),
		rpc:     rpcClient,
		timeout: timeout,
	}
}

// HasCode reports whether deployed bytecode exists at addr.
func (o *EthOracle) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	code, err := o.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("eth_getCode %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}

// IsValidSignature evaluates the selected isValidSignature variant on addr
// and returns the raw return data. With a predeploy, the wallet's code does
// not exist on chain yet, so the check runs in a simulated block where the
// factory deployment has already executed.
func (o *EthOracle) IsValidSignature(ctx context.Context, addr common.Address, variant ports.ABIVariant, data, sig []byte, predeploy *ports.Predeploy) ([]byte, error) {
	calldata, err := PackIsValidSignature(variant, data, sig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if predeploy != nil {
		return o.simulateDeployAndCall(ctx, addr, predeploy, calldata)
	}

	ret, err := o.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call isValidSignature on %s: %w", addr.Hex(), err)
	}
	return ret, nil
}

// simulateDeployAndCall asks the node to execute the factory deployment and
// the isValidSignature call back to back in one simulated block, so the
// second call sees the wallet code the first one created. Nothing is sent on
// chain; eth_simulateV1 is a read-only endpoint.
func (o *EthOracle) simulateDeployAndCall(ctx context.Context, addr common.Address, predeploy *ports.Predeploy, calldata []byte) ([]byte, error) {
	var blocks []simulatedBlock
	err := o.rpc.CallContext(ctx, &blocks, "eth_simulateV1", simulatePayload(addr, predeploy, calldata), "latest")
	if err != nil {
		return nil, fmt.Errorf("eth_simulateV1 predeploy of %s: %w", addr.Hex(), err)
	}
	if len(blocks) == 0 || len(blocks[0].Calls) != 2 {
		return nil, fmt.Errorf("eth_simulateV1 returned %d blocks for %s", len(blocks), addr.Hex())
	}

	deploy, check := blocks[0].Calls[0], blocks[0].Calls[1]
	if deploy.Status != 1 {
		return nil, fmt.Errorf("factory %s reverted deploying %s", predeploy.Factory.Hex(), addr.Hex())
	}
	if check.Status != 1 {
		return nil, fmt.Errorf("isValidSignature reverted on predeployed %s", addr.Hex())
	}
	return check.ReturnData, nil
}

// simulatePayload builds the eth_simulateV1 request: one block, two calls,
// factory deployment first.
func simulatePayload(addr common.Address, predeploy *ports.Predeploy, calldata []byte) map[string]any {
	return map[string]any{
		"blockStateCalls": []map[string]any{{
			"calls": []map[string]any{
				{"to": predeploy.Factory, "input": hexutil.Bytes(predeploy.FactoryCalldata)},
				{"to": addr, "input": hexutil.Bytes(calldata)},
			},
		}},
		"validation":     false,
		"traceTransfers": false,
	}
}

type simulatedBlock struct {
	Calls []simulatedCall `json:"calls"`
}

type simulatedCall struct {
	Status     hexutil.Uint64 `json:"status"`
	ReturnData hexutil.Bytes  `json:"returnData"`
}

// PackIsValidSignature builds calldata for either isValidSignature variant.
// Exported so tests can assert against the exact wire encoding.
func PackIsValidSignature(variant ports.ABIVariant, data, sig []byte) ([]byte, error) {
	switch variant {
	case ports.VariantDigest32:
		var digest [32]byte
		if len(data) != len(digest) {
			return nil, fmt.Errorf("digest variant wants 32 bytes, got %d", len(data))
		}
		copy(digest[:], data)
		packed, err := digest32Args.Pack(digest, sig)
		if err != nil {
			return nil, fmt.Errorf("pack isValidSignature(bytes32,bytes): %w", err)
		}
		return append(selectorDigest32[:], packed...), nil

	case ports.VariantRawBytes:
		packed, err := rawBytesArgs.Pack(data, sig)
		if err != nil {
			return nil, fmt.Errorf("pack isValidSignature(bytes,bytes): %w", err)
		}
		return append(selectorRawBytes[:], packed...), nil

	default:
		return nil, fmt.Errorf("unknown abi variant %d", variant)
	}
}
