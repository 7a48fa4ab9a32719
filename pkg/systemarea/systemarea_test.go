package systemarea

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	image := make([]byte, 64*1024)
	sa, err := Read(bytes.NewReader(image), int64(len(image)))
	require.NoError(t, err)
	assert.True(t, sa.IsEmpty())
	assert.False(t, sa.HasMBR())
	assert.Nil(t, sa.PartitionTypes())

	_, err = Read(bytes.NewReader(image[:1000]), 1000)
	assert.Error(t, err)
}

func TestHybridImage(t *testing.T) {
	image := make([]byte, 32*1024)
	image[446+4] = 0x17
	image[446+16+4] = 0xEF
	image[510] = 0x55
	image[511] = 0xAA

	sa, err := Read(bytes.NewReader(image), int64(len(image)))
	require.NoError(t, err)
	assert.False(t, sa.IsEmpty())
	assert.True(t, sa.HasMBR())
	assert.Equal(t, []byte{0x17, 0xEF}, sa.PartitionTypes())
}
