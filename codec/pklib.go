package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/JoshVarga/blast"
)

func decodePKLib(data []byte, expected int) ([]byte, error) {
	reader, err := blast.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, err)
	}
	defer reader.Close()

	capacity := expected
	if capacity < 0 {
		capacity = len(data) * 2
	}

	buffer := bytes.NewBuffer(make([]byte, 0, capacity))

	if _, err = io.Copy(buffer, reader); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, err)
	}

	return buffer.Bytes(), nil
}

// Explode decodes a whole-file PKWARE imploded payload; these are selected by a file flag rather than a type byte.
//
// A quirk of the historical format: a payload beginning with three zero bytes is not imploded at all but carries a
// 4-byte little-endian length followed by either raw bytes or a nested zlib stream.
func Explode(data []byte, expected int) ([]byte, error) {
	if len(data) >= 7 && data[0] == 0 && data[1] == 0 && data[2] == 0 {
		return explodeEscape(data, expected)
	}

	decoded, err := decodePKLib(data, expected)
	if err != nil {
		return nil, err
	}

	if len(decoded) != expected {
		return nil, lengthError(expected, len(decoded))
	}

	return decoded, nil
}

func explodeEscape(data []byte, expected int) ([]byte, error) {
	var (
		length  = binary.LittleEndian.Uint32(data[3:7])
		payload = data[7:]
	)

	// The declared length covers the decoded bytes; when it already matches the remaining payload the bytes are
	// stored raw, otherwise a zlib stream follows.
	if int(length) != expected {
		return nil, fmt.Errorf("%w: length header %d disagrees with expected size %d", ErrCorrupt, length, expected)
	}

	if len(payload) == int(length) {
		return append([]byte(nil), payload...), nil
	}

	decoded, err := decodeZLib(payload, expected)
	if err != nil {
		return nil, err
	}

	if len(decoded) != expected {
		return nil, lengthError(expected, len(decoded))
	}

	return decoded, nil
}
