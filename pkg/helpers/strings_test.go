package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadString(t *testing.T) {
	assert.Equal(t, []byte("NSR02"), PadString("NSR02", 5, ' '))
	assert.Equal(t, []byte("AB   "), PadString("AB", 5, ' '))
	assert.Equal(t, []byte("ABCDE"), PadString("ABCDEFG", 5, ' '))
	assert.Equal(t, []byte{'x', 0, 0}, PadString("x", 3, 0))
}

func TestTruncateLeft(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"a/very/long/path/name.txt", 12, ".../name.txt"},
		{"abcdef", 3, "def"},
		{"abcdef", 6, "abcdef"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TruncateLeft(tt.in, tt.max), tt.in)
	}
}
