package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccakSentinels(t *testing.T) {
	// keccak256("") and keccak256(rlp(""))
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", hex.EncodeToString(NilDataHash[:]))
	assert.Equal(t, "56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421", hex.EncodeToString(EmptyRootHash[:]))
	assert.True(t, IsEmptyCode(NilDataHash))
	assert.False(t, IsEmptyCode(Hash{}))
	assert.True(t, IsEmptyRoot(Hash{}))
	assert.False(t, IsEmptyRoot(NilDataHash))
}

func TestUint64BigEndian(t *testing.T) {
	b := Uint64ToBytes(258)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2}, b)

	v, err := BytesToUint64(append(b, 0, 0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, uint64(258), v)

	_, err = BytesToUint64([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestIsZeroBytes(t *testing.T) {
	assert.True(t, IsZeroBytes(make([]byte, 33), 33))
	assert.False(t, IsZeroBytes(make([]byte, 32), 33))
	z := make([]byte, 33)
	z[5] = 1
	assert.False(t, IsZeroBytes(z, 33))
}

func TestHex2Bytes(t *testing.T) {
	b, err := Hex2Bytes("0x0102")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)
	_, err = Hex2Bytes("zz")
	assert.Error(t, err)
}
