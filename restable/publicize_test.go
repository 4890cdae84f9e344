package restable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicizeSetsBitAndIsIdempotent(t *testing.T) {
	data := make([]byte, 0x120)
	for i := range data {
		data[i] = byte(i)
	}
	// Snapshot bytes outside the flags region to assert they're untouched.
	before := append([]byte(nil), data...)

	regions := []FlagsOffset{{Offset: 0x100, Count: 3}}

	patched, err := Publicize(data, regions)
	require.NoError(t, err)
	assert.Equal(t, 3, patched)

	for i, off := range []int64{0x100, 0x104, 0x108} {
		assert.Equal(t, before[off+3]|0x40, data[off+3], "entry %d", i)
	}

	snapshot := append([]byte(nil), data...)
	patchedAgain, err := Publicize(data, regions)
	require.NoError(t, err)
	assert.Equal(t, 0, patchedAgain, "second pass should patch nothing new")
	assert.Equal(t, snapshot, data)
	assert.True(t, IsPublicized(data, regions))

	// Bytes outside the 3 touched u32 words are byte-identical.
	for i := 0; i < len(data); i++ {
		inRegion := i >= 0x100 && i < 0x100+12
		if !inRegion {
			assert.Equal(t, before[i], data[i], "byte %d outside flags region changed", i)
		}
	}
}

func TestPublicizeOutOfRangeRegion(t *testing.T) {
	data := make([]byte, 8)
	_, err := Publicize(data, []FlagsOffset{{Offset: 100, Count: 1}})
	assert.Error(t, err)
}
