package mpq

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mopaq/tools-common/crypt"
	"github.com/mopaq/tools-common/hofp"
	"github.com/mopaq/tools-common/ioiface"
	"github.com/mopaq/tools-common/log"
	"github.com/mopaq/tools-common/lru"

	"golang.org/x/exp/slices"
)

const (
	// headerMagic is "MPQ\x1A", the archive header signature.
	headerMagic = 0x1A51504D

	// userDataMagic is "MPQ\x1B", the optional user data shunt preceding the header.
	userDataMagic = 0x1B51504D

	hashEntryEmpty   = 0xFFFFFFFF
	hashEntryDeleted = 0xFFFFFFFE

	// ListFileName is the well known directory file mapping hashes back to paths.
	ListFileName = "(listfile)"
)

// hashEntry is one slot of the archive's hash table; files are identified by two hashes of their path and found by
// probing from a third.
type hashEntry struct {
	nameA      uint32
	nameB      uint32
	locale     uint16
	platform   uint16
	blockIndex uint32
}

// header is the archive header; offsets within are relative to the start of the archive, which itself may sit past
// a user data block.
type header struct {
	headerSize        uint32
	archiveSize       uint32
	formatVersion     uint16
	sectorSizeShift   uint16
	hashTableOffset   uint32
	blockTableOffset  uint32
	hashTableEntries  uint32
	blockTableEntries uint32

	// Extended format fields, zero for version one archives
	extendedBlockTableOffset uint64
	hashTableOffsetHigh      uint16
	blockTableOffsetHigh     uint16
}

// Archive provides read access to the directory of an archive and opens streams over its files. All raw reads by
// the archive and every stream it opens share one lock, so streams may be used from multiple goroutines provided
// each individual stream has a single owner.
type Archive struct {
	source ioiface.ReadAtSeeker
	closer io.Closer
	lock   sync.Mutex

	header        header
	archiveOffset int64
	blockSize     uint32

	hashTable []hashEntry
	entries   []Entry

	lookups *lru.Cache[string, uint32]
}

// OpenArchive opens the archive contained in the file at the given path; the returned archive owns the file handle
// and must be closed.
func OpenArchive(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	archive, err := NewArchive(file)
	if err != nil {
		file.Close()

		return nil, err
	}

	archive.closer = file

	return archive, nil
}

// NewArchive opens the archive contained in the given source, which is borrowed, not owned. Use
// bytes.NewReader to open an in-memory archive.
func NewArchive(source ioiface.ReadAtSeeker) (*Archive, error) {
	archive := &Archive{source: source, lookups: lru.New[string, uint32](128)}

	if err := archive.parse(); err != nil {
		return nil, err
	}

	return archive, nil
}

// parse locates the header and decodes the hash/block tables.
func (a *Archive) parse() error {
	magic, err := a.readUint32At(0)
	if err != nil {
		return err
	}

	// The user data shunt stores the offset to resume the header search at
	if magic == userDataMagic {
		if a.archiveOffset, err = a.findShuntedHeader(); err != nil {
			return err
		}

		if magic, err = a.readUint32At(a.archiveOffset); err != nil {
			return err
		}
	}

	if magic != headerMagic {
		return fmt.Errorf("%w: bad header signature 0x%08x", ErrInvalidArchive, magic)
	}

	if err = a.parseHeader(); err != nil {
		return err
	}

	if err = a.parseHashTable(); err != nil {
		return err
	}

	return a.parseBlockTable()
}

func (a *Archive) findShuntedHeader() (int64, error) {
	var size, headerOffset uint32

	if err := a.readAt(int64(4), &size, &headerOffset); err != nil {
		return 0, err
	}

	return int64(headerOffset), nil
}

func (a *Archive) parseHeader() error {
	h := &a.header

	err := a.readAt(
		a.archiveOffset+4,
		&h.headerSize, &h.archiveSize, &h.formatVersion, &h.sectorSizeShift,
		&h.hashTableOffset, &h.blockTableOffset, &h.hashTableEntries, &h.blockTableEntries,
	)
	if err != nil {
		return err
	}

	if h.formatVersion > 0 {
		err = a.readAt(
			a.archiveOffset+4+28,
			&h.extendedBlockTableOffset, &h.hashTableOffsetHigh, &h.blockTableOffsetHigh,
		)
		if err != nil {
			return err
		}

		// Per-block high offsets only appear in archives over 4GiB, which the directory does not support
		if h.extendedBlockTableOffset != 0 {
			log.Warnf("(MPQ) Archive carries an extended block table which will be ignored")
		}
	}

	a.blockSize = 512 << h.sectorSizeShift

	return nil
}

func (a *Archive) parseHashTable() error {
	words, err := a.readTable(
		int64(a.header.hashTableOffsetHigh)<<32+int64(a.header.hashTableOffset),
		a.header.hashTableEntries,
		crypt.HashString("(hash table)", crypt.HashFileKey),
	)
	if err != nil {
		return err
	}

	a.hashTable = make([]hashEntry, a.header.hashTableEntries)

	for i := range a.hashTable {
		a.hashTable[i] = hashEntry{
			nameA:      words[i*4],
			nameB:      words[i*4+1],
			locale:     uint16(words[i*4+2]),
			platform:   uint16(words[i*4+2] >> 16),
			blockIndex: words[i*4+3],
		}
	}

	return nil
}

func (a *Archive) parseBlockTable() error {
	words, err := a.readTable(
		int64(a.header.blockTableOffsetHigh)<<32+int64(a.header.blockTableOffset),
		a.header.blockTableEntries,
		crypt.HashString("(block table)", crypt.HashFileKey),
	)
	if err != nil {
		return err
	}

	a.entries = make([]Entry, a.header.blockTableEntries)

	for i := range a.entries {
		a.entries[i] = Entry{
			Position:       words[i*4],
			CompressedSize: words[i*4+1],
			FileSize:       words[i*4+2],
			Flags:          Flags(words[i*4+3]),
		}
	}

	return nil
}

// readTable reads and decrypts one of the two directory tables, each entry being four 32-bit words.
func (a *Archive) readTable(offset int64, entries uint32, key uint32) ([]uint32, error) {
	words := make([]uint32, entries*4)

	if err := a.readAt(a.archiveOffset+offset, words); err != nil {
		return nil, err
	}

	crypt.DecryptUint32s(words, key)

	return words, nil
}

// readAt reads the given little-endian values at an absolute source offset under the archive lock.
func (a *Archive) readAt(offset int64, values ...any) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if _, err := a.source.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArchive, err)
	}

	for _, value := range values {
		if err := binary.Read(a.source, binary.LittleEndian, value); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidArchive, err)
		}
	}

	return nil
}

func (a *Archive) readUint32At(offset int64) (uint32, error) {
	var value uint32

	return value, a.readAt(offset, &value)
}

// BlockSize returns the archive-wide sector size.
func (a *Archive) BlockSize() uint32 {
	return a.blockSize
}

// FilesCount returns the number of block table entries flagged as files.
func (a *Archive) FilesCount() int {
	var count int

	for i := range a.entries {
		if a.entries[i].Flags.Has(FlagExists) {
			count++
		}
	}

	return count
}

// FindEntry locates the block table entry for the given archive path, installing the name-derived encryption seeds
// on it. Returns ErrFileNotFound if the path is not present.
func (a *Archive) FindEntry(path string) (*Entry, error) {
	path = strings.ReplaceAll(path, "/", "\\")

	if index, ok := a.lookups.Get(strings.ToUpper(path)); ok {
		return &a.entries[index], nil
	}

	var (
		nameA = crypt.HashString(path, crypt.HashNameA)
		nameB = crypt.HashString(path, crypt.HashNameB)
		start = crypt.HashString(path, crypt.HashTableOffset) % a.header.hashTableEntries
	)

	for i := uint32(0); i < a.header.hashTableEntries; i++ {
		slot := a.hashTable[(start+i)%a.header.hashTableEntries]

		if slot.blockIndex == hashEntryEmpty {
			break
		}

		if slot.blockIndex == hashEntryDeleted || slot.nameA != nameA || slot.nameB != nameB {
			continue
		}

		if slot.blockIndex >= uint32(len(a.entries)) || !a.entries[slot.blockIndex].Flags.Has(FlagExists) {
			break
		}

		entry := &a.entries[slot.blockIndex]
		entry.ResolveKey(path)

		a.lookups.Set(strings.ToUpper(path), slot.blockIndex)

		return entry, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
}

// Open returns a stream over the given file's decoded bytes. The stream shares the archive's source and lock and
// remains valid until the archive is closed.
func (a *Archive) Open(path string) (*Reader, error) {
	entry, err := a.FindEntry(path)
	if err != nil {
		return nil, err
	}

	if entry.Flags.Has(FlagDeleteMarker) {
		return nil, fmt.Errorf("%w: %s is a deletion marker", ErrFileNotFound, path)
	}

	return NewReader(a.source, entry, ReaderOptions{
		BlockSize:    a.blockSize,
		Lock:         &a.lock,
		SourceOffset: a.archiveOffset,
	})
}

// ReadFile returns the decoded content of the given file.
func (a *Archive) ReadFile(path string) ([]byte, error) {
	reader, err := a.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if !reader.CanRead() {
		return nil, fmt.Errorf("%w: %s has an unreadable layout", ErrNotSupported, path)
	}

	content := make([]byte, reader.entry.FileSize)
	if _, err := io.ReadFull(reader, content); err != nil && reader.entry.FileSize != 0 {
		return nil, err
	}

	return content, nil
}

// Files enumerates the archive paths recorded in the list file, sorted and deduplicated.
func (a *Archive) Files() ([]string, error) {
	content, err := a.ReadFile(ListFileName)
	if err != nil {
		return nil, err
	}

	var files []string

	for _, line := range strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}

	slices.Sort(files)

	return slices.Compact(files), nil
}

// ExtractAll decodes every file recorded in the list file concurrently, returning path to content. Files whose
// layout is unreadable are skipped with a warning rather than failing the extraction.
func (a *Archive) ExtractAll(ctx context.Context) (map[string][]byte, error) {
	files, err := a.Files()
	if err != nil {
		return nil, err
	}

	var (
		pool    = hofp.NewPool(hofp.Options{Context: ctx, LogPrefix: "(MPQ)"})
		results = make(map[string][]byte)
		lock    sync.Mutex
	)

	extract := func(path string) hofp.Function {
		return func(context.Context) error {
			content, err := a.ReadFile(path)
			if err != nil {
				if errors.Is(err, ErrNotSupported) {
					log.Warnf("(MPQ) Skipping %q: %v", path, err)

					return nil
				}

				return fmt.Errorf("failed to extract %q: %w", path, err)
			}

			lock.Lock()
			defer lock.Unlock()

			results[path] = content

			return nil
		}
	}

	var queueErr error

	for _, path := range files {
		if queueErr = pool.Queue(extract(path)); queueErr != nil {
			break
		}
	}

	if err := pool.Stop(); err != nil {
		return nil, err
	}

	// A cancelled context stops queuing without recording a pool failure
	if queueErr != nil {
		return nil, queueErr
	}

	return results, nil
}

// Close closes the archive and, when opened from a path, the underlying file.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}

	return a.closer.Close()
}
