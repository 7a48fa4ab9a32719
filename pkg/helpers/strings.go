package helpers

// PadString returns s as exactly length bytes, truncated or padded with filler.
func PadString(s string, length int, filler byte) []byte {
	b := make([]byte, length)
	n := copy(b, s)
	for i := n; i < length; i++ {
		b[i] = filler
	}
	return b
}

// TruncateLeft shortens s to at most maxLength bytes by dropping its start.
// If truncation occurs, "..." is prepended to indicate the string has been shortened.
func TruncateLeft(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return s[len(s)-maxLength:]
	}
	return "..." + s[len(s)-(maxLength-3):]
}
