package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositeKey(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 7, 0xab, 0xcd}, CompositeKey(TransactionHash2BlockHeight, []byte{0xab, 0xcd}))
	assert.Equal(t, "0000000a0000000000000005", RealKey(CompactBlock, HeightKey(5)))
	assert.Equal(t, "000000000000000000000001", RealKey(Global, HeightKey(KeyCurrentHash)))
}

func TestRegionString(t *testing.T) {
	assert.Equal(t, "Global", Global.String())
	assert.Equal(t, "CompactBlock", CompactBlock.String())
	assert.Equal(t, "Region(99)", Region(99).String())
}

func TestKindHashChained(t *testing.T) {
	assert.True(t, KindLocal.HashChained())
	assert.False(t, KindTiered.HashChained())
	assert.Equal(t, "tiered", KindTiered.String())
}
