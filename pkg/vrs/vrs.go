package vrs

import (
	"errors"
	"fmt"
	"io"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/helpers"
)

// maxStructures bounds the number of sectors examined.
const maxStructures = 64

var ErrUnknownIdentifier = errors.New("unknown volume structure identifier")

// StructureHeader is the 7 byte header of a volume structure descriptor in the recognition sequence.
type StructureHeader struct {
	// Structure Type, always 0 for the extended area descriptors (BEA01, NSR0x, TEA01).
	StructureType uint8 `json:"structure_type"`
	// Standard Identifier, such as 'BEA01', 'NSR02' or 'CD001'.
	StandardIdentifier string `json:"standard_identifier"`
	// Structure Version, 1 for all UDF structures.
	StructureVersion uint8 `json:"structure_version"`
}

// Marshal converts the header into its 7-byte on-disk representation.
func (h *StructureHeader) Marshal() [consts.UDF_VRS_HEADER_SIZE]byte {
	var buf [consts.UDF_VRS_HEADER_SIZE]byte
	buf[0] = h.StructureType
	copy(buf[1:6], helpers.PadString(h.StandardIdentifier, 5, ' '))
	buf[6] = h.StructureVersion
	return buf
}

// Unmarshal parses a 7-byte header. Identifiers outside the recognition sequence are rejected.
func (h *StructureHeader) Unmarshal(data [consts.UDF_VRS_HEADER_SIZE]byte) error {
	h.StructureType = data[0]
	h.StandardIdentifier = string(data[1:6])
	h.StructureVersion = data[6]

	switch h.StandardIdentifier {
	case consts.UDF_STD_IDENTIFIER, consts.UDF_NSR02_IDENTIFIER, consts.UDF_NSR03_IDENTIFIER,
		consts.UDF_TEA01_IDENTIFIER, consts.ISO9660_STD_IDENTIFIER, consts.UDF_BOOT2_IDENTIFIER, consts.UDF_CDW02_IDENTIFIER:
		return nil
	}
	return fmt.Errorf("%q: %w", h.StandardIdentifier, ErrUnknownIdentifier)
}

// Sequence is the volume recognition sequence found from sector 16.
type Sequence struct {
	Headers []StructureHeader `json:"headers"`
}

// Identifiers returns the standard identifiers in sequence order.
func (s *Sequence) Identifiers() []string {
	ids := make([]string, 0, len(s.Headers))
	for _, h := range s.Headers {
		ids = append(ids, h.StandardIdentifier)
	}
	return ids
}

// HasISO9660 reports whether an ISO 9660 volume descriptor precedes the extended area.
func (s *Sequence) HasISO9660() bool {
	for _, h := range s.Headers {
		if h.StandardIdentifier == consts.ISO9660_STD_IDENTIFIER {
			return true
		}
	}
	return false
}

// NSRVersion returns 2 or 3 when an NSR descriptor sits inside a BEA01/TEA01 extended area, otherwise 0.
func (s *Sequence) NSRVersion() int {
	inArea := false
	version := 0
	for _, h := range s.Headers {
		switch h.StandardIdentifier {
		case consts.UDF_STD_IDENTIFIER:
			inArea = true
		case consts.UDF_TEA01_IDENTIFIER:
			if inArea {
				return version
			}
		case consts.UDF_NSR02_IDENTIFIER:
			if inArea {
				version = 2
			}
		case consts.UDF_NSR03_IDENTIFIER:
			if inArea {
				version = 3
			}
		}
	}
	return 0
}

// IsUDF reports whether the sequence announces a UDF (NSR) volume.
func (s *Sequence) IsUDF() bool {
	return s.NSRVersion() != 0
}

// Read scans the recognition sequence starting at sector 16 until an unknown structure, the terminating
// extended area descriptor or the end of the image.
func Read(reader io.ReaderAt, size int64) (*Sequence, error) {
	seq := &Sequence{}
	var buf [consts.UDF_VRS_HEADER_SIZE]byte
	for i := int64(0); i < maxStructures; i++ {
		offset := (consts.UDF_VRS_START_SECTOR + i) * consts.UDF_SECTOR_SIZE
		if offset+consts.UDF_SECTOR_SIZE > size {
			break
		}
		if _, err := reader.ReadAt(buf[:], offset); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read volume structure at sector %d: %w", consts.UDF_VRS_START_SECTOR+i, err)
		}

		header := StructureHeader{}
		if err := header.Unmarshal(buf); err != nil {
			break
		}
		seq.Headers = append(seq.Headers, header)
		if header.StandardIdentifier == consts.UDF_TEA01_IDENTIFIER {
			break
		}
	}
	return seq, nil
}
