package cmd

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallerIdentity(t *testing.T) {
	keys, err := generateKeySet(2)
	require.Nil(t, err)
	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0].Address, keys[1].Address)

	id, err := callerIdentity("", keys[0].EcdsaHexPrivateKey)
	require.Nil(t, err)
	assert.Equal(t, common.HexToAddress(keys[0].Address), id)

	// the key wins over the address
	id, err = callerIdentity(keys[1].Address, keys[0].EcdsaHexPrivateKey)
	require.Nil(t, err)
	assert.Equal(t, common.HexToAddress(keys[0].Address), id)

	id, err = callerIdentity(keys[1].Address, "")
	require.Nil(t, err)
	assert.Equal(t, common.HexToAddress(keys[1].Address), id)

	_, err = callerIdentity("", "")
	require.NotNil(t, err)
	_, err = callerIdentity("not-an-address", "")
	require.NotNil(t, err)
	_, err = callerIdentity("", "0xdeadbeef")
	require.NotNil(t, err)
}

func TestGeneratedKeysRoundTrip(t *testing.T) {
	keys, err := generateKeySet(1)
	require.Nil(t, err)

	key, err := crypto.HexToECDSA(keys[0].EcdsaHexPrivateKey[2:])
	require.Nil(t, err)
	assert.Equal(t, keys[0].Address, crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestLogLevel(t *testing.T) {
	assert.Nil(t, checkLogLevel("debug"))
	assert.NotNil(t, checkLogLevel("chatty"))
}
