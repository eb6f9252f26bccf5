// Package mpq implements random access readers and a re-encoder for files stored in MoPaQ archives, along with the
// archive directory itself.
package mpq

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/mopaq/tools-common/codec"
	"github.com/mopaq/tools-common/crypt"
	"github.com/mopaq/tools-common/log"
	"github.com/mopaq/tools-common/lru"
	"github.com/mopaq/tools-common/maths"
)

// DefaultBlockSize is the archive-wide sector size used when none is configured; bugs in the original runtime
// library pinned the sector size shift to three, giving 4096 byte sectors.
const DefaultBlockSize = 4096

// ReaderOptions encapsulates the available options which can be used when opening a file stream.
type ReaderOptions struct {
	// BlockSize is the archive-wide sector size. Defaults to DefaultBlockSize.
	BlockSize uint32

	// Lock guards raw access to the shared source; readers over the same source must share the same lock. Defaults
	// to a lock private to this reader.
	Lock *sync.Mutex

	// SourceOffset is added to the entry position to locate the payload within the source, for sources where the
	// archive does not begin at offset zero or the payload has been relocated.
	SourceOffset int64

	// TakeOwnership closes the source when the reader is closed, for readers constructed over a standalone source
	// rather than a shared archive.
	TakeOwnership bool
}

func (o *ReaderOptions) defaults() {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}

	if o.Lock == nil {
		o.Lock = &sync.Mutex{}
	}
}

// Reader exposes the decoded bytes of a single archived file as a read-only seekable stream. Sectors are
// materialized lazily, one at a time; a reader is single owner and must not be used concurrently, though many
// readers may share one source provided they share one lock.
type Reader struct {
	entry *Entry

	source io.ReadSeeker
	lock   *sync.Mutex
	offset int64

	blockSize uint32
	closer    io.Closer

	index *sectorIndex
	cache *lru.Cache[uint32, []byte]

	position int64
	canRead  bool
}

var _ io.ReadSeekCloser = (*Reader)(nil)

// NewReader opens a validated stream over the payload described by the given entry. Layout validation failures do
// not error: they leave a stream which reports false from CanRead and fails Length, Position, Seek, Read and
// Transform with ErrNotSupported, so callers can probe an archive's files without aborting.
func NewReader(source io.ReadSeeker, entry *Entry, opts ReaderOptions) (*Reader, error) {
	opts.defaults()

	reader := &Reader{
		entry:     entry,
		source:    source,
		lock:      opts.Lock,
		offset:    opts.SourceOffset + int64(entry.Position),
		blockSize: opts.BlockSize,
		cache:     lru.New[uint32, []byte](1),
		canRead:   true,
	}

	if opts.TakeOwnership {
		if closer, ok := source.(io.Closer); ok {
			reader.closer = closer
		}
	}

	if err := reader.validate(); err != nil {
		return nil, err
	}

	return reader, nil
}

// validate performs the open time layout checks, downgrading layout violations to an unreadable stream and
// returning an error only for source I/O failures.
func (r *Reader) validate() error {
	switch {
	case r.entry.Flags.Has(FlagSingleUnit):
		return r.validateSingleUnit()
	case r.entry.Flags.HasAny(FlagCompressed):
		return r.validateSectored()
	case r.missingKey():
		r.markUnreadable("encrypted with an unknown key and no sector table to recover it from")
	}

	return nil
}

// missingKey reports whether decryption is required but no seed is known. Files shorter than one cipher word are
// exempt, nothing in them is actually encrypted.
func (r *Reader) missingKey() bool {
	return r.entry.Flags.Has(FlagEncrypted) && r.entry.EncryptionSeed == 0 && r.entry.FileSize >= 4
}

func (r *Reader) markUnreadable(reason string) {
	log.Debugf("(MPQ) Marking stream at position 0x%x unreadable: %s", r.entry.Position, reason)

	r.canRead = false
}

// validateSingleUnit peeks the payload's leading bytes and verifies the compression type byte is a known
// combination.
func (r *Reader) validateSingleUnit() error {
	if r.missingKey() {
		r.markUnreadable("single unit encrypted with an unknown key")

		return nil
	}

	// Raw stored single units carry no compression type byte
	if !r.entry.Flags.Has(FlagCompressMulti) || r.entry.CompressedSize == r.entry.FileSize ||
		r.entry.CompressedSize == 0 {
		return nil
	}

	peek, err := r.readRaw(r.offset, maths.MinUint64(4, uint64(r.entry.CompressedSize)))
	if err != nil {
		return err
	}

	if r.entry.Flags.Has(FlagEncrypted) && len(peek) >= 4 {
		crypt.DecryptBlock(peek, r.entry.EncryptionSeed)
	}

	if !codec.Known(peek[0]) {
		r.markUnreadable(fmt.Sprintf("unknown compression type byte 0x%02x", peek[0]))
	}

	return nil
}

// validateSectored loads the sector offset table, recovering the encryption key from it when unknown, then checks
// the table invariants and each sector's compression type byte.
func (r *Reader) validateSectored() error {
	count := sectorTableLength(r.entry.FileSize, r.blockSize, r.entry.Flags)

	raw, err := r.readRaw(r.offset, uint64(count)*4)
	if err != nil {
		return err
	}

	if r.entry.Flags.Has(FlagEncrypted) {
		if r.entry.EncryptionSeed == 0 && !r.recoverKey(raw, count) {
			r.markUnreadable("sector table key recovery failed")

			return nil
		}

		// The offset table is encrypted with the file key minus one
		crypt.DecryptBlock(raw, r.entry.EncryptionSeed-1)
	}

	index := &sectorIndex{offsets: make([]uint32, count), sectors: count - 1}
	if r.entry.Flags.Has(FlagSectorCRC) {
		index.sectors--
	}

	for i := range index.offsets {
		index.offsets[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	if err := index.validate(r.blockSize); err != nil {
		r.markUnreadable(err.Error())

		return nil
	}

	r.index = index

	return r.validateSectorCodecs()
}

// recoverKey attempts to brute force the file key from the encrypted sector table: its first word is known to be
// the table's own size, its second is at most the table size plus one block. Returns false if no key fits.
func (r *Reader) recoverKey(raw []byte, count uint32) bool {
	if len(raw) < 8 {
		return false
	}

	var (
		enc0   = binary.LittleEndian.Uint32(raw[0:])
		enc1   = binary.LittleEndian.Uint32(raw[4:])
		plain0 = count * 4
	)

	tableKey, ok := crypt.RecoverKey(enc0, enc1, plain0, plain0+r.blockSize)
	if !ok {
		return false
	}

	r.entry.installRecoveredKey(tableKey + 1)

	log.Debugf("(MPQ) Recovered encryption key for entry at position 0x%x", r.entry.Position)

	return true
}

// validateSectorCodecs peeks the compression type byte of every compressed sector.
func (r *Reader) validateSectorCodecs() error {
	if !r.entry.Flags.Has(FlagCompressMulti) {
		return nil
	}

	for sector := uint32(0); sector < r.index.sectors; sector++ {
		start, end := r.index.bounds(sector)

		// Sectors stored whole carry no compression type byte
		if end-start == r.expectedSectorLength(sector) {
			continue
		}

		peek, err := r.readRaw(r.offset+int64(start), maths.MinUint64(4, uint64(end-start)))
		if err != nil {
			return err
		}

		if r.entry.Flags.Has(FlagEncrypted) && len(peek) >= 4 {
			crypt.DecryptBlock(peek, r.entry.EncryptionSeed+sector)
		}

		if !codec.Known(peek[0]) {
			r.markUnreadable(fmt.Sprintf("sector %d has unknown compression type byte 0x%02x", sector, peek[0]))

			return nil
		}
	}

	return nil
}

// expectedSectorLength returns the decoded size of the given sector; only the last sector may fall short of a
// whole block.
func (r *Reader) expectedSectorLength(sector uint32) uint32 {
	return uint32(maths.MinUint64(uint64(r.blockSize), uint64(r.entry.FileSize)-uint64(sector)*uint64(r.blockSize)))
}

// CanRead returns a boolean indicating whether the stream passed layout validation; an unreadable stream fails
// Length, Position, Seek, Read and Transform with ErrNotSupported. WriteRawTo still copies the stored payload.
func (r *Reader) CanRead() bool {
	return r.canRead
}

// CanSeek mirrors CanRead; a readable stream is always seekable.
func (r *Reader) CanSeek() bool {
	return r.canRead
}

// CanWrite always returns false, the stream is read-only.
func (r *Reader) CanWrite() bool {
	return false
}

// Length returns the decoded size of the file in bytes.
func (r *Reader) Length() (int64, error) {
	if !r.canRead {
		return 0, ErrNotSupported
	}

	return int64(r.entry.FileSize), nil
}

// Position returns the current logical read position.
func (r *Reader) Position() (int64, error) {
	if !r.canRead {
		return 0, ErrNotSupported
	}

	return r.position, nil
}

// Seek repositions the stream. Seeking within a sector costs nothing; the next read materializes whichever sector
// the position landed in. Positions outside [0, Length] fail with ErrNotSupported.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if !r.canRead {
		return 0, ErrNotSupported
	}

	var absolute int64

	switch whence {
	case io.SeekStart:
		absolute = offset
	case io.SeekCurrent:
		absolute = r.position + offset
	case io.SeekEnd:
		absolute = int64(r.entry.FileSize) + offset
	default:
		return 0, fmt.Errorf("%w: unknown whence %d", ErrNotSupported, whence)
	}

	if absolute < 0 || absolute > int64(r.entry.FileSize) {
		return 0, fmt.Errorf("%w: seek to %d outside the stream", ErrNotSupported, absolute)
	}

	r.position = absolute

	return absolute, nil
}

// Read fills the buffer with decoded bytes from the current position, crossing sector boundaries as required, and
// returns io.EOF once the stream is exhausted.
func (r *Reader) Read(buffer []byte) (int, error) {
	if !r.canRead {
		return 0, ErrNotSupported
	}

	var read int

	for read < len(buffer) && r.position < int64(r.entry.FileSize) {
		var (
			sector uint32
			within = r.position
		)

		// Single unit files are one sector spanning the whole payload
		if !r.entry.Flags.Has(FlagSingleUnit) {
			sector = uint32(r.position / int64(r.blockSize))
			within = r.position % int64(r.blockSize)
		}

		decoded, err := r.loadSector(sector)
		if err != nil {
			return read, err
		}

		copied := copy(buffer[read:], decoded[within:])

		read += copied
		r.position += int64(copied)
	}

	if read == 0 && len(buffer) != 0 {
		return 0, io.EOF
	}

	return read, nil
}

// ReadByte returns the next decoded byte, or io.EOF at the end of the stream.
func (r *Reader) ReadByte() (byte, error) {
	var buffer [1]byte

	if _, err := r.Read(buffer[:]); err != nil {
		return 0, err
	}

	return buffer[0], nil
}

// Write always fails, the stream is read-only.
func (r *Reader) Write([]byte) (int, error) {
	return 0, ErrNotSupported
}

// SetLength always fails, the stream is read-only.
func (r *Reader) SetLength(int64) error {
	return ErrNotSupported
}

// Flush is a no-op provided for stream interface symmetry.
func (r *Reader) Flush() error {
	return nil
}

// Close releases the reader, closing the source if the reader owns it.
func (r *Reader) Close() error {
	r.cache.Purge()

	if r.closer == nil {
		return nil
	}

	return r.closer.Close()
}

// WriteRawTo copies the stored payload, still encrypted/compressed, to the given sink. Used by re-packers passing
// files through untouched.
func (r *Reader) WriteRawTo(sink io.Writer) (int64, error) {
	raw, err := r.readRaw(r.offset, uint64(r.entry.CompressedSize))
	if err != nil {
		return 0, err
	}

	written, err := sink.Write(raw)

	return int64(written), err
}

// loadSector materializes the given sector, consulting the single slot cache first. For single unit files the
// whole payload is sector zero.
func (r *Reader) loadSector(sector uint32) ([]byte, error) {
	if cached, ok := r.cache.Get(sector); ok {
		return cached, nil
	}

	var (
		decoded []byte
		err     error
	)

	if r.entry.Flags.Has(FlagSingleUnit) {
		decoded, err = r.loadSingleUnit()
	} else {
		decoded, err = r.loadSectored(sector)
	}

	if err != nil {
		return nil, err
	}

	r.cache.Set(sector, decoded)

	return decoded, nil
}

// loadSingleUnit reads, decrypts and decodes the whole payload at once.
func (r *Reader) loadSingleUnit() ([]byte, error) {
	raw, err := r.readRaw(r.offset, uint64(r.entry.CompressedSize))
	if err != nil {
		return nil, err
	}

	if r.entry.Flags.Has(FlagEncrypted) && len(raw) >= 4 {
		if r.entry.EncryptionSeed == 0 {
			return nil, ErrUnknownEncryptionKey
		}

		crypt.DecryptBlock(raw, r.entry.EncryptionSeed)
	}

	if !r.entry.Flags.HasAny(FlagCompressed) || r.entry.CompressedSize == r.entry.FileSize {
		return raw, nil
	}

	if r.entry.Flags.Has(FlagImplode) {
		return codec.Explode(raw, int(r.entry.FileSize))
	}

	return codec.Decompress(raw, int(r.entry.FileSize))
}

// loadSectored reads, decrypts and decodes one sector of a sectored file.
func (r *Reader) loadSectored(sector uint32) ([]byte, error) {
	var (
		expected      = r.expectedSectorLength(sector)
		start, length uint32
	)

	if r.index != nil {
		first, last := r.index.bounds(sector)
		start, length = first, last-first
	} else {
		start, length = sector*r.blockSize, expected
	}

	raw, err := r.readRaw(r.offset+int64(start), uint64(length))
	if err != nil {
		return nil, err
	}

	if r.entry.Flags.Has(FlagEncrypted) && len(raw) >= 4 {
		if r.entry.EncryptionSeed == 0 {
			return nil, ErrUnknownEncryptionKey
		}

		crypt.DecryptBlock(raw, r.entry.EncryptionSeed+sector)
	}

	// A sector which spans its full decoded size is stored whole
	if !r.entry.Flags.HasAny(FlagCompressed) || length == expected {
		return raw, nil
	}

	if r.entry.Flags.Has(FlagImplode) {
		return codec.Explode(raw, int(expected))
	}

	return codec.Decompress(raw, int(expected))
}

// readRaw reads length bytes at the given absolute source offset under the shared source lock.
func (r *Reader) readRaw(offset int64, length uint64) ([]byte, error) {
	buffer := make([]byte, length)

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, err := r.source.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(r.source, buffer); err != nil {
		return nil, insufficientDataError(len(buffer), err)
	}

	return buffer, nil
}
