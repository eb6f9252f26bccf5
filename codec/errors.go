package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned for compression type bytes which are recognized but not implemented (LZMA, sparse)
	// or not meaningful at all.
	ErrUnsupported = errors.New("unsupported compression type")

	// ErrCorrupt is returned when a payload cannot be decoded, or decodes to an unexpected length.
	ErrCorrupt = errors.New("corrupt compressed payload")

	// ErrInsufficientData is returned when a payload is too short to contain the structure it claims to.
	ErrInsufficientData = errors.New("insufficient data")
)

func unsupportedError(compression byte) error {
	return fmt.Errorf("%w 0x%02x", ErrUnsupported, compression)
}

func lengthError(expected, actual int) error {
	return fmt.Errorf("%w: expected %d bytes, got %d", ErrCorrupt, expected, actual)
}
