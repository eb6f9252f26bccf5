package mpq

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/mopaq/tools-common/codec"
	"github.com/mopaq/tools-common/crypt"
	"github.com/mopaq/tools-common/maths"

	"github.com/stretchr/testify/require"
)

// compressible returns n bytes which zlib shrinks comfortably.
func compressible(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i / 64)
	}

	return data
}

// incompressible returns n bytes of seeded noise which zlib cannot shrink.
func incompressible(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(7)).Read(data)

	return data
}

// sectoredFixture assembles the on-disk payload of a sectored zlib compressed file, optionally encrypted and
// optionally carrying a checksum table slot, returning the payload and its entry.
func sectoredFixture(t *testing.T, data []byte, blockSize uint32, seed uint32, crc bool) ([]byte, *Entry) {
	t.Helper()

	var (
		sectors = maths.CeilDiv(uint32(len(data)), blockSize)
		count   = sectors + 1
	)

	if crc {
		count++
	}

	var (
		offsets = make([]uint32, count)
		body    []byte
	)

	offsets[0] = 4 * count

	for sector := uint32(0); sector < sectors; sector++ {
		var (
			start = sector * blockSize
			end   = maths.MinUint64(uint64(start)+uint64(blockSize), uint64(len(data)))
			raw   = append([]byte(nil), data[start:end]...)
		)

		compressed, err := codec.Compress(codec.TypeZLib, raw)
		require.NoError(t, err)

		stored := raw
		if len(compressed)+1 < len(raw) {
			stored = append([]byte{codec.TypeZLib}, compressed...)
		}

		if seed != 0 {
			crypt.EncryptBlock(stored, seed+sector)
		}

		body = append(body, stored...)
		offsets[sector+1] = 4*count + uint32(len(body))
	}

	if crc {
		// One checksum word per sector, bounded by the extra offset slot; the reader never reads them
		checksums := make([]byte, 4*sectors)

		if seed != 0 {
			crypt.EncryptBlock(checksums, seed+sectors)
		}

		body = append(body, checksums...)
		offsets[count-1] = 4*count + uint32(len(body))
	}

	table := make([]byte, 4*count)
	for i, offset := range offsets {
		binary.LittleEndian.PutUint32(table[i*4:], offset)
	}

	if seed != 0 {
		crypt.EncryptBlock(table, seed-1)
	}

	payload := append(table, body...)

	flags := FlagExists | FlagCompressMulti
	if seed != 0 {
		flags |= FlagEncrypted
	}

	if crc {
		flags |= FlagSectorCRC
	}

	entry := &Entry{
		FileSize:           uint32(len(data)),
		CompressedSize:     uint32(len(payload)),
		Flags:              flags,
		EncryptionSeed:     seed,
		BaseEncryptionSeed: seed,
	}

	return payload, entry
}

// singleUnitFixture assembles the payload of a single unit file, compressed when that shrinks it, optionally
// encrypted.
func singleUnitFixture(t *testing.T, data []byte, compress bool, seed uint32) ([]byte, *Entry) {
	t.Helper()

	var (
		payload = append([]byte(nil), data...)
		flags   = FlagExists | FlagSingleUnit
	)

	if compress {
		compressed, err := codec.Compress(codec.TypeZLib, data)
		require.NoError(t, err)

		if len(compressed)+1 < len(data) {
			payload = append([]byte{codec.TypeZLib}, compressed...)
		}

		flags |= FlagCompressMulti
	}

	if seed != 0 {
		crypt.EncryptBlock(payload, seed)
		flags |= FlagEncrypted
	}

	entry := &Entry{
		FileSize:           uint32(len(data)),
		CompressedSize:     uint32(len(payload)),
		Flags:              flags,
		EncryptionSeed:     seed,
		BaseEncryptionSeed: seed,
	}

	return payload, entry
}

// plainSectoredFixture assembles the payload of an uncompressed sectored file, optionally encrypted per sector.
func plainSectoredFixture(data []byte, blockSize, seed uint32) ([]byte, *Entry) {
	payload := append([]byte(nil), data...)

	flags := FlagExists
	if seed != 0 {
		flags |= FlagEncrypted

		for sector, start := uint32(0), uint32(0); start < uint32(len(payload)); sector, start = sector+1, start+blockSize {
			end := maths.MinUint64(uint64(start)+uint64(blockSize), uint64(len(payload)))

			crypt.EncryptBlock(payload[start:end], seed+sector)
		}
	}

	entry := &Entry{
		FileSize:           uint32(len(data)),
		CompressedSize:     uint32(len(payload)),
		Flags:              flags,
		EncryptionSeed:     seed,
		BaseEncryptionSeed: seed,
	}

	return payload, entry
}
