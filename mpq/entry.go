package mpq

import "github.com/mopaq/tools-common/crypt"

// Entry describes a single file within an archive: where its payload lives, how large it is and how it is stored.
// Readers share the entry, and key recovery installs discovered seeds on it.
type Entry struct {
	// Position is the archive relative byte offset of the file payload; it participates in key adjustment for
	// files flagged with FlagFixKey.
	Position uint32

	// FileSize is the decoded/logical size of the file in bytes.
	FileSize uint32

	// CompressedSize is the stored size of the payload in bytes; equal to FileSize for uncompressed files and for
	// single unit files stored raw. For sectored compressed files it includes the sector offset table.
	CompressedSize uint32

	// Flags describe the payload layout.
	Flags Flags

	// EncryptionSeed is the key the payload is encrypted with, already position-adjusted for FlagFixKey files.
	// Zero means unknown; readers of sectored compressed files attempt to recover it at open time.
	EncryptionSeed uint32

	// BaseEncryptionSeed is the seed before position adjustment, required to re-emit the file under a different
	// position. Equal to EncryptionSeed unless FlagFixKey is set.
	BaseEncryptionSeed uint32
}

// ResolveKey installs the encryption seeds derived from the file's archive path. A no-op for unencrypted files.
func (e *Entry) ResolveKey(path string) {
	if !e.Flags.Has(FlagEncrypted) {
		return
	}

	base := crypt.FileKey(path)

	e.BaseEncryptionSeed = base
	e.EncryptionSeed = base

	if e.Flags.Has(FlagFixKey) {
		e.EncryptionSeed = crypt.AdjustKey(base, e.Position, e.FileSize)
	}
}

// installRecoveredKey records a seed discovered by known-plaintext recovery, deriving the base seed for FlagFixKey
// entries so the file can be re-encrypted at a different position.
func (e *Entry) installRecoveredKey(seed uint32) {
	e.EncryptionSeed = seed
	e.BaseEncryptionSeed = seed

	if e.Flags.Has(FlagFixKey) {
		e.BaseEncryptionSeed = crypt.UnadjustKey(seed, e.Position, e.FileSize)
	}
}
