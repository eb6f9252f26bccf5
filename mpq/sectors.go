package mpq

import (
	"fmt"

	"github.com/mopaq/tools-common/maths"
)

// sectorIndex is the decoded sector offset table of a sectored compressed file: one offset per data sector, one
// terminator, and optionally one extra slot bounding the per-sector checksum table.
type sectorIndex struct {
	// offsets are measured from the start of the file payload.
	offsets []uint32

	// sectors is the number of data sectors.
	sectors uint32
}

// sectorTableLength returns the number of offset table entries for a file of the given size, including the
// terminator and the checksum slot when present.
func sectorTableLength(fileSize, blockSize uint32, flags Flags) uint32 {
	count := maths.CeilDiv(fileSize, blockSize) + 1

	if flags.Has(FlagSectorCRC) {
		count++
	}

	return count
}

// validate checks the offset table invariants: the first offset points just past the table itself and every data
// sector occupies between one byte and a whole block. The checksum slot only has to not run backwards.
func (s *sectorIndex) validate(blockSize uint32) error {
	if expected := uint32(4 * len(s.offsets)); s.offsets[0] != expected {
		return fmt.Errorf("sector table claims to start at %d, expected %d", s.offsets[0], expected)
	}

	for i := uint32(1); i <= s.sectors; i++ {
		delta := int64(s.offsets[i]) - int64(s.offsets[i-1])

		if delta <= 0 || delta > int64(blockSize) {
			return fmt.Errorf("sector %d spans %d bytes, expected between 1 and %d", i-1, delta, blockSize)
		}
	}

	if last := len(s.offsets) - 1; s.offsets[last] < s.offsets[s.sectors] {
		return fmt.Errorf("checksum table runs backwards")
	}

	return nil
}

// bounds returns the payload relative start/end of the given data sector.
func (s *sectorIndex) bounds(sector uint32) (uint32, uint32) {
	return s.offsets[sector], s.offsets[sector+1]
}
