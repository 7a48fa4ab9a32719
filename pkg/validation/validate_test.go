package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		valid      bool
	}{
		{"Plain", "README.TXT", true},
		{"Unicode", "résumé ✓.pdf", true},
		{"Dots", "...", true},
		{"Backslash", `a\b`, true},
		{"Current", ".", false},
		{"Parent", "..", false},
		{"Separator", "a/b", false},
		{"NUL", "a\x00b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FileIdentifier(tt.identifier)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}

func BenchmarkFileIdentifier(b *testing.B) {
	id := "HELLO123_-456.DAT"
	for i := 0; i < b.N; i++ {
		if FileIdentifier(id) != nil {
			b.Fatal("validation failed for valid identifier")
		}
	}
}
