package verify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/siwe"
)

type oracleCall struct {
	variant   ports.ABIVariant
	data      []byte
	sig       []byte
	predeploy *ports.Predeploy
}

// scriptedOracle answers isValidSignature calls from a script and records
// every call it sees.
type scriptedOracle struct {
	calls   []oracleCall
	respond func(call oracleCall) ([]byte, error)
}

func (o *scriptedOracle) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	return true, nil
}

func (o *scriptedOracle) IsValidSignature(ctx context.Context, addr common.Address, variant ports.ABIVariant, data, sig []byte, predeploy *ports.Predeploy) ([]byte, error) {
	call := oracleCall{variant: variant, data: data, sig: sig, predeploy: predeploy}
	o.calls = append(o.calls, call)
	return o.respond(call)
}

var (
	testAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testMessage = []byte(`{"domain":"app.example","nonce":"n1"}`)
)

func acceptOnly(variant ports.ABIVariant, data []byte) func(oracleCall) ([]byte, error) {
	return func(call oracleCall) ([]byte, error) {
		if call.variant == variant && bytes.Equal(call.data, data) {
			if variant == ports.VariantDigest32 {
				return MagicDigest32[:], nil
			}
			return MagicRawBytes[:], nil
		}
		return nil, errors.New("execution reverted")
	}
}

func TestFirstStrategyWinsAndShortCircuits(t *testing.T) {
	digests := siwe.ComputeDigests(testMessage)
	oracle := &scriptedOracle{respond: acceptOnly(ports.VariantDigest32, digests.Personal.Bytes())}

	name, ok := Run(context.Background(), oracle, testAddr, testMessage, digests, []byte{0x01}, nil)
	require.True(t, ok)
	assert.Equal(t, "erc1271_personal_digest", name)
	assert.Len(t, oracle.calls, 1)
}

func TestRawDigestStrategyIsSecond(t *testing.T) {
	digests := siwe.ComputeDigests(testMessage)
	oracle := &scriptedOracle{respond: acceptOnly(ports.VariantDigest32, digests.Raw.Bytes())}

	name, ok := Run(context.Background(), oracle, testAddr, testMessage, digests, []byte{0x01}, nil)
	require.True(t, ok)
	assert.Equal(t, "erc1271_raw_digest", name)
	assert.Len(t, oracle.calls, 2)
}

func TestRawMessageStrategyIsLast(t *testing.T) {
	digests := siwe.ComputeDigests(testMessage)
	oracle := &scriptedOracle{respond: acceptOnly(ports.VariantRawBytes, testMessage)}

	name, ok := Run(context.Background(), oracle, testAddr, testMessage, digests, []byte{0x01}, nil)
	require.True(t, ok)
	assert.Equal(t, "erc1271_raw_message", name)
	assert.Len(t, oracle.calls, 3)

	// The last strategy passes the original message bytes, not a digest.
	assert.Equal(t, testMessage, oracle.calls[2].data)
}

func TestAllStrategiesFailing(t *testing.T) {
	digests := siwe.ComputeDigests(testMessage)
	oracle := &scriptedOracle{respond: func(oracleCall) ([]byte, error) {
		return make([]byte, 32), nil // well-formed return, wrong value
	}}

	_, ok := Run(context.Background(), oracle, testAddr, testMessage, digests, []byte{0x01}, nil)
	assert.False(t, ok)
	assert.Len(t, oracle.calls, 3)
}

func TestOracleErrorsAreStrategyFailures(t *testing.T) {
	digests := siwe.ComputeDigests(testMessage)
	oracle := &scriptedOracle{respond: func(oracleCall) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}}

	_, ok := Run(context.Background(), oracle, testAddr, testMessage, digests, []byte{0x01}, nil)
	assert.False(t, ok)
	assert.Len(t, oracle.calls, 3)
}

func TestMagicValueAcceptedWordAligned(t *testing.T) {
	digests := siwe.ComputeDigests(testMessage)
	oracle := &scriptedOracle{respond: func(call oracleCall) ([]byte, error) {
		// Contracts return the bytes4 left-aligned in a 32-byte word.
		return common.RightPadBytes(MagicDigest32[:], 32), nil
	}}

	name, ok := Run(context.Background(), oracle, testAddr, testMessage, digests, []byte{0x01}, nil)
	require.True(t, ok)
	assert.Equal(t, "erc1271_personal_digest", name)
}

func TestWrongVariantMagicRejected(t *testing.T) {
	digests := siwe.ComputeDigests(testMessage)
	oracle := &scriptedOracle{respond: func(call oracleCall) ([]byte, error) {
		// The bytes32 variant's magic does not satisfy the raw variant and
		// vice versa.
		if call.variant == ports.VariantDigest32 {
			return MagicRawBytes[:], nil
		}
		return MagicDigest32[:], nil
	}}

	_, ok := Run(context.Background(), oracle, testAddr, testMessage, digests, []byte{0x01}, nil)
	assert.False(t, ok)
}

func TestPredeployReachesEveryAttempt(t *testing.T) {
	digests := siwe.ComputeDigests(testMessage)
	oracle := &scriptedOracle{respond: func(oracleCall) ([]byte, error) {
		return nil, errors.New("execution reverted")
	}}

	predeploy := &ports.Predeploy{
		Factory:         common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		FactoryCalldata: []byte{0xde, 0xad},
	}

	_, ok := Run(context.Background(), oracle, testAddr, testMessage, digests, []byte{0x01}, predeploy)
	assert.False(t, ok)

	// A counterfactual wallet only exists inside the simulated deployment,
	// so every strategy must hand the oracle the deployment data.
	require.Len(t, oracle.calls, 3)
	for _, call := range oracle.calls {
		require.NotNil(t, call.predeploy)
		assert.Equal(t, predeploy.Factory, call.predeploy.Factory)
		assert.Equal(t, predeploy.FactoryCalldata, call.predeploy.FactoryCalldata)
	}
}
