package encoding

import (
	"strings"
	"unicode"

	xunicode "golang.org/x/text/encoding/unicode"
)

const (
	// COMPRESSION_ID_8 marks a string of 8-bit characters.
	COMPRESSION_ID_8 = 8
	// COMPRESSION_ID_16 marks a string of big-endian 16-bit characters.
	COMPRESSION_ID_16 = 16

	// STRING128_SIZE is the size of the fixed identifier fields found in volume descriptors.
	STRING128_SIZE = 128
)

var utf16be = xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM)

// DString is an OSTA compressed unicode string: a compression id byte followed by the character data.
type DString struct {
	Data []byte `json:"data"`
}

// UnmarshalDString copies size bytes starting at offset into a DString.
func UnmarshalDString(data []byte, offset, size int) (DString, error) {
	raw, err := ReadBytes(data, offset, size)
	if err != nil {
		return DString{}, err
	}
	return DString{Data: raw}, nil
}

// CompressionID returns the leading type byte, or zero for an empty string.
func (d DString) CompressionID() byte {
	if len(d.Data) == 0 {
		return 0
	}
	return d.Data[0]
}

// String decodes the characters. Unknown compression ids decode as an empty string.
func (d DString) String() string {
	if len(d.Data) == 0 {
		return ""
	}
	body := d.Data[1:]
	switch d.Data[0] {
	case COMPRESSION_ID_8:
		var sb strings.Builder
		for _, b := range body {
			if b == 0 {
				break
			}
			sb.WriteRune(rune(b))
		}
		return trimTrailing(sb.String())
	case COMPRESSION_ID_16:
		body = body[:len(body)&^1]
		decoded, err := utf16be.NewDecoder().Bytes(body)
		if err != nil {
			return ""
		}
		return trimTrailing(string(decoded))
	default:
		return ""
	}
}

// IsSystem reports whether the identifier is absent or a single 0x00 or 0x01 byte.
func (d DString) IsSystem() bool {
	if len(d.Data) == 0 {
		return true
	}
	return len(d.Data) == 1 && (d.Data[0] == 0 || d.Data[0] == 1)
}

// String128 is a fixed 128 byte dstring field. The last byte holds the number of used bytes.
type String128 struct {
	DString
}

// UnmarshalString128 reads a 128 byte dstring field at offset.
func UnmarshalString128(data []byte, offset int) (String128, error) {
	raw, err := ReadBytes(data, offset, STRING128_SIZE)
	if err != nil {
		return String128{}, err
	}
	if len(raw) == STRING128_SIZE {
		if used := int(raw[STRING128_SIZE-1]); used > 0 && used < STRING128_SIZE {
			raw = raw[:used]
		}
	}
	return String128{DString{Data: raw}}, nil
}

// EncodeDString encodes s with the given compression id. Characters outside Latin-1 force id 16.
func EncodeDString(s string, compressionID byte) []byte {
	if compressionID == COMPRESSION_ID_8 {
		out := []byte{COMPRESSION_ID_8}
		for _, r := range s {
			if r > 0xFF {
				return EncodeDString(s, COMPRESSION_ID_16)
			}
			out = append(out, byte(r))
		}
		return out
	}
	encoded, err := utf16be.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte{COMPRESSION_ID_16}
	}
	return append([]byte{COMPRESSION_ID_16}, encoded...)
}

// MarshalString128 encodes s into a 128 byte dstring field.
func MarshalString128(s string) [STRING128_SIZE]byte {
	var out [STRING128_SIZE]byte
	enc := EncodeDString(s, COMPRESSION_ID_8)
	if len(enc) > STRING128_SIZE-1 {
		enc = enc[:STRING128_SIZE-1]
	}
	copy(out[:], enc)
	out[STRING128_SIZE-1] = byte(len(enc))
	return out
}

func trimTrailing(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return r == 0 || unicode.IsSpace(r)
	})
}
