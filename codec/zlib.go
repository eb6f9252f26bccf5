package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

func decodeZLib(data []byte, expected int) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
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

func encodeZLib(data []byte) ([]byte, error) {
	var buffer bytes.Buffer

	writer, err := zlib.NewWriterLevel(&buffer, zlib.BestCompression)
	if err != nil {
		return nil, err
	}

	if _, err = writer.Write(data); err != nil {
		return nil, err
	}

	if err = writer.Close(); err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}
