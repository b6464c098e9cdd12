package erc6492

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	factory := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	calldata := []byte{0xde, 0xad, 0xbe, 0xef}
	inner := make([]byte, 65)
	inner[64] = 27

	sig, err := Wrap(factory, calldata, inner)
	require.NoError(t, err)
	require.True(t, Detect(sig))

	wrapped, ok := TryUnwrap(sig)
	require.True(t, ok)
	assert.Equal(t, factory, wrapped.Factory)
	assert.Equal(t, calldata, wrapped.FactoryCalldata)
	assert.Equal(t, inner, wrapped.InnerSignature)
}

func TestPlainSignatureIsNotAWrapper(t *testing.T) {
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i)
	}

	assert.False(t, Detect(sig))

	wrapped, ok := TryUnwrap(sig)
	assert.False(t, ok)
	assert.Nil(t, wrapped)
}

func TestMalformedWrapperFallsThrough(t *testing.T) {
	// Carries the magic word but the remainder is not a valid encoding:
	// must behave exactly like "not a wrapper", never an error.
	garbage := append([]byte{0x01, 0x02, 0x03}, magicSuffix...)

	require.True(t, Detect(garbage))

	wrapped, ok := TryUnwrap(garbage)
	assert.False(t, ok)
	assert.Nil(t, wrapped)
}

func TestShortInputIsNotAWrapper(t *testing.T) {
	wrapped, ok := TryUnwrap([]byte{0x64, 0x92})
	assert.False(t, ok)
	assert.Nil(t, wrapped)

	wrapped, ok = TryUnwrap(nil)
	assert.False(t, ok)
	assert.Nil(t, wrapped)
}
