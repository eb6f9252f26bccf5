package mpq

// Flags is the bit mask stored in a block table entry describing how a file's payload is laid out.
type Flags uint32

const (
	// FlagImplode indicates the file is imploded with PKWARE data compression as a whole; such payloads carry no
	// per-sector compression type byte.
	FlagImplode Flags = 0x00000100

	// FlagCompressMulti indicates the file is compressed sector by sector, each sector prefixed with a compression
	// type byte.
	FlagCompressMulti Flags = 0x00000200

	// FlagEncrypted indicates the file is encrypted with a key derived from its name.
	FlagEncrypted Flags = 0x00010000

	// FlagFixKey indicates the encryption key is additionally adjusted by the file's position and size, so moving
	// the file requires re-encrypting it.
	FlagFixKey Flags = 0x00020000

	// FlagPatchFile marks a patch file within a patch archive.
	FlagPatchFile Flags = 0x00100000

	// FlagSingleUnit indicates the file is stored as a single unit rather than split into sectors.
	FlagSingleUnit Flags = 0x01000000

	// FlagDeleteMarker marks a deletion marker used by patch archives to hide files from lower priority archives.
	FlagDeleteMarker Flags = 0x02000000

	// FlagSectorCRC indicates a per-sector checksum table is stored after the last sector; the sector offset table
	// carries one extra slot marking its end. The slot is retained; the checksums are neither read nor validated.
	FlagSectorCRC Flags = 0x04000000

	// FlagExists indicates the block table entry describes a file rather than free space.
	FlagExists Flags = 0x80000000

	// FlagCompressed covers both compression schemes.
	FlagCompressed = FlagImplode | FlagCompressMulti
)

// Has returns a boolean indicating whether all the given bits are set.
func (f Flags) Has(flags Flags) bool {
	return f&flags == flags
}

// HasAny returns a boolean indicating whether any of the given bits are set.
func (f Flags) HasAny(flags Flags) bool {
	return f&flags != 0
}
