package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
)

func decodeBZip2(data []byte, expected int) ([]byte, error) {
	reader, err := bzip2.NewReader(bytes.NewReader(data), nil)
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

func encodeBZip2(data []byte) ([]byte, error) {
	var buffer bytes.Buffer

	writer, err := bzip2.NewWriter(&buffer, &bzip2.WriterConfig{Level: bzip2.BestCompression})
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
