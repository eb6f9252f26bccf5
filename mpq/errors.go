package mpq

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported is returned for writes, truncation, out of range seeks, and length, position, seek, read and
	// transform calls on a stream whose layout failed validation at open time.
	ErrNotSupported = errors.New("operation not supported")

	// ErrUnknownEncryptionKey is returned when a payload requires decryption but no seed is known and none could be
	// recovered.
	ErrUnknownEncryptionKey = errors.New("unknown encryption key")

	// ErrInsufficientData is returned when the underlying source yields fewer bytes than the layout requires.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidArchive is returned when the source does not contain a valid archive.
	ErrInvalidArchive = errors.New("invalid mpq archive")

	// ErrFileNotFound is returned when a file is not present in the archive directory.
	ErrFileNotFound = errors.New("file not found")
)

func insufficientDataError(wanted int, err error) error {
	return fmt.Errorf("%w: short read wanting %d bytes: %s", ErrInsufficientData, wanted, err)
}
