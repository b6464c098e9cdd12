// Package erc6492 detects and decodes ERC-6492 wrapped signatures, the
// format that lets a not-yet-deployed smart-contract wallet prove control of
// its counterfactual address. A wrapped signature is
// abi.encode(factory, factoryCalldata, innerSignature) followed by a 32-byte
// magic word.
package erc6492

import (
	"bytes"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// magicSuffix is the ERC-6492 detection word, the byte sequence 0x6492
// repeated to fill 32 bytes. It terminates every wrapped signature.
var magicSuffix = common.HexToHash("0x6492649264926492649264926492649264926492649264926492649264926492").Bytes()

var wrapperArgs abi.Arguments

func init() {
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	bytesT, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	wrapperArgs = abi.Arguments{
		{Name: "factory", Type: addressT},
		{Name: "factoryCalldata", Type: bytesT},
		{Name: "signature", Type: bytesT},
	}
}

// Wrapped is a decoded predeploy signature wrapper.
type Wrapped struct {
	Factory         common.Address // create2 factory that will deploy the wallet
	FactoryCalldata []byte         // calldata that performs the deployment
	InnerSignature  []byte         // signature to verify against the wallet
}

// Detect reports whether sig carries the ERC-6492 magic word.
func Detect(sig []byte) bool {
	return len(sig) >= len(magicSuffix) && bytes.Equal(sig[len(sig)-len(magicSuffix):], magicSuffix)
}

// TryUnwrap decodes a wrapped signature. It returns (nil, false) when the
// magic word is absent or the remainder does not decode: a malformed wrapper
// is treated identically to "not a wrapper" and the caller falls through to
// verifying the original signature directly.
func TryUnwrap(sig []byte) (*Wrapped, bool) {
	if !Detect(sig) {
		return nil, false
	}

	vals, err := wrapperArgs.Unpack(sig[:len(sig)-len(magicSuffix)])
	if err != nil || len(vals) != 3 {
		return nil, false
	}

	factory, ok := vals[0].(common.Address)
	if !ok {
		return nil, false
	}
	calldata, ok := vals[1].([]byte)
	if !ok {
		return nil, false
	}
	inner, ok := vals[2].([]byte)
	if !ok {
		return nil, false
	}

	return &Wrapped{
		Factory:         factory,
		FactoryCalldata: calldata,
		InnerSignature:  inner,
	}, true
}

// Wrap builds a wrapped signature. It exists for tests and tooling; the
// server itself only ever unwraps.
func Wrap(factory common.Address, factoryCalldata, innerSignature []byte) ([]byte, error) {
	packed, err := wrapperArgs.Pack(factory, factoryCalldata, innerSignature)
	if err != nil {
		return nil, err
	}
	return append(packed, magicSuffix...), nil
}
