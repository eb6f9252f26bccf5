package crypt

import "strings"

// HashType selects which of the four hash functions 'HashString' computes.
type HashType uint32

const (
	// HashTableOffset is the hash used to pick a file's home entry in the hash table.
	HashTableOffset HashType = 0

	// HashNameA is the first of the two hashes which identify a file path.
	HashNameA HashType = 1

	// HashNameB is the second of the two hashes which identify a file path.
	HashNameB HashType = 2

	// HashFileKey is the hash used to derive a file's base encryption key from its name.
	HashFileKey HashType = 3
)

// HashString computes the requested hash of the given string. Paths are case-insensitive and always hashed with
// Windows style separators.
func HashString(s string, hashType HashType) uint32 {
	var (
		seed1 uint32 = 0x7FED7FED
		seed2 uint32 = 0xEEEEEEEE
	)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '/' {
			ch = '\\'
		}

		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}

		seed1 = table[(uint32(hashType)<<8)+uint32(ch)] ^ (seed1 + seed2)
		seed2 = uint32(ch) + seed1 + seed2 + (seed2 << 5) + 3
	}

	return seed1
}

// FileKey derives the base encryption key for the file stored under the given archive path; only the base name
// participates in the hash.
func FileKey(path string) uint32 {
	path = strings.ReplaceAll(path, "/", "\\")

	if index := strings.LastIndexByte(path, '\\'); index != -1 {
		path = path[index+1:]
	}

	return HashString(path, HashFileKey)
}
