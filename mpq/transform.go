package mpq

import (
	"encoding/binary"
	"io"

	"github.com/mopaq/tools-common/codec"
	"github.com/mopaq/tools-common/crypt"
	"github.com/mopaq/tools-common/maths"
)

// Transform re-emits the file's logical bytes under a different flag/codec/blocking/encryption configuration,
// returning the stored payload a block table entry with the given flags would describe. The stream is drained in
// the process.
//
// Re-encrypting requires a known base seed; for FlagFixKey targets the seed is adjusted against targetPosition, so
// the payload is only valid at that archive offset.
func (r *Reader) Transform(flags Flags, compression byte, targetPosition int64, targetBlockSize uint32) ([]byte, error) {
	if !r.canRead {
		return nil, ErrNotSupported
	}

	if targetBlockSize == 0 {
		targetBlockSize = r.blockSize
	}

	// Materialize the logical bytes
	buffer := make([]byte, r.entry.FileSize)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(r, buffer); err != nil && r.entry.FileSize != 0 {
		return nil, err
	}

	var (
		out    []byte
		starts []uint32
		err    error
	)

	switch {
	case !flags.HasAny(FlagCompressed):
		out = append([]byte(nil), buffer...)
	case flags.Has(FlagSingleUnit):
		out, err = compressWhole(compression, buffer)
	default:
		out, starts, err = compressSectored(compression, buffer, targetBlockSize)
	}

	if err != nil {
		return nil, err
	}

	if !flags.Has(FlagEncrypted) || len(out) == 0 {
		return out, nil
	}

	return out, r.encrypt(out, starts, flags, targetPosition, uint32(len(buffer)), targetBlockSize)
}

// compressWhole compresses the buffer as a single unit, keeping the raw bytes when compression plus the type byte
// does not shrink them.
func compressWhole(compression byte, buffer []byte) ([]byte, error) {
	compressed, err := codec.Compress(compression, buffer)
	if err != nil {
		return nil, err
	}

	if len(compressed)+1 >= len(buffer) {
		return append([]byte(nil), buffer...), nil
	}

	return append([]byte{compression}, compressed...), nil
}

// compressSectored partitions the buffer into blocks, compresses each with the same keep-raw fallback, and
// prepends the sector offset table. Returns the payload and the payload relative start of each sector.
func compressSectored(compression byte, buffer []byte, blockSize uint32) ([]byte, []uint32, error) {
	var (
		sectors = maths.CeilDiv(uint32(len(buffer)), blockSize)
		header  = 4 * (sectors + 1)
		out     = make([]byte, header, header+uint32(len(buffer)))
		starts  = make([]uint32, 0, sectors)
	)

	binary.LittleEndian.PutUint32(out, header)

	for sector := uint32(0); sector < sectors; sector++ {
		var (
			start = sector * blockSize
			end   = maths.MinUint64(uint64(start)+uint64(blockSize), uint64(len(buffer)))
			raw   = buffer[start:end]
		)

		compressed, err := codec.Compress(compression, raw)
		if err != nil {
			return nil, nil, err
		}

		starts = append(starts, uint32(len(out)))

		if len(compressed)+1 >= len(raw) {
			out = append(out, raw...)
		} else {
			out = append(out, compression)
			out = append(out, compressed...)
		}

		binary.LittleEndian.PutUint32(out[4*(sector+1):], uint32(len(out)))
	}

	return out, starts, nil
}

// encrypt post-processes the payload per block: the offset table with the file key minus one, data sector i with
// the key plus i. A non-compressed sectored payload carries no table, its boundaries fall on every block size
// bytes.
func (r *Reader) encrypt(out []byte, starts []uint32, flags Flags, targetPosition int64, fileSize, blockSize uint32) error {
	seed := r.entry.BaseEncryptionSeed
	if seed == 0 {
		return ErrUnknownEncryptionKey
	}

	if flags.Has(FlagFixKey) {
		seed = crypt.AdjustKey(seed, uint32(targetPosition), fileSize)
	}

	if flags.Has(FlagSingleUnit) || !flags.HasAny(FlagCompressed) && fileSize <= blockSize {
		crypt.EncryptBlock(out, seed)

		return nil
	}

	if starts == nil {
		// Synthesized boundaries for the non-compressed sectored layout
		for sector, start := uint32(0), uint32(0); start < uint32(len(out)); sector, start = sector+1, start+blockSize {
			end := maths.MinUint64(uint64(start)+uint64(blockSize), uint64(len(out)))

			crypt.EncryptBlock(out[start:end], seed+sector)
		}

		return nil
	}

	if len(starts) == 0 {
		crypt.EncryptBlock(out, seed-1)

		return nil
	}

	crypt.EncryptBlock(out[:starts[0]], seed-1)

	for sector, start := range starts {
		end := uint32(len(out))
		if sector+1 < len(starts) {
			end = starts[sector+1]
		}

		crypt.EncryptBlock(out[start:end], seed+uint32(sector))
	}

	return nil
}
