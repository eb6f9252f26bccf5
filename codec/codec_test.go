package codec

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func compressible(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i / 32)
	}

	return data
}

func TestKnown(t *testing.T) {
	known := []byte{
		TypeHuffman, TypeZLib, TypePKLib, TypeBZip2, TypeADPCMMono, TypeADPCMStereo,
		TypeADPCMMono | TypeHuffman, TypeADPCMMono | TypePKLib,
		TypeADPCMStereo | TypeHuffman, TypeADPCMStereo | TypePKLib,
	}

	for _, compression := range known {
		require.True(t, Known(compression), "0x%02x", compression)
	}

	unknown := []byte{
		0x00, TypeLZMA, TypeSparse, TypeSparse | TypeZLib, TypeSparse | TypeBZip2,
		TypeZLib | TypeBZip2 | 0x04, 0xFF,
	}

	for _, compression := range unknown {
		require.False(t, Known(compression), "0x%02x", compression)
	}
}

func TestDecompressZLibRoundTrip(t *testing.T) {
	expected := compressible(4096)

	payload, err := Compress(TypeZLib, expected)
	require.NoError(t, err)
	require.Less(t, len(payload), len(expected))

	actual, err := Decompress(append([]byte{TypeZLib}, payload...), len(expected))
	require.NoError(t, err)
	require.Equal(t, expected, actual)
}

func TestDecompressBZip2RoundTrip(t *testing.T) {
	expected := compressible(4096)

	payload, err := Compress(TypeBZip2, expected)
	require.NoError(t, err)

	actual, err := Decompress(append([]byte{TypeBZip2}, payload...), len(expected))
	require.NoError(t, err)
	require.Equal(t, expected, actual)
}

func TestDecompressHuffmanRoundTrip(t *testing.T) {
	expected := compressible(2048)

	payload, err := Compress(TypeHuffman, expected)
	require.NoError(t, err)

	actual, err := Decompress(append([]byte{TypeHuffman}, payload...), len(expected))
	require.NoError(t, err)
	require.Equal(t, expected, actual)
}

func TestDecompressHuffmanRandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	expected := make([]byte, 1000)
	rng.Read(expected)

	payload, err := Compress(TypeHuffman, expected)
	require.NoError(t, err)

	actual, err := Decompress(append([]byte{TypeHuffman}, payload...), len(expected))
	require.NoError(t, err)
	require.Equal(t, expected, actual)
}

func TestDecompressUnsupported(t *testing.T) {
	for _, compression := range []byte{TypeLZMA, TypeSparse, TypeSparse | TypeZLib, TypeSparse | TypeBZip2, 0x42} {
		_, err := Decompress([]byte{compression, 0x00}, 16)
		require.ErrorIs(t, err, ErrUnsupported, "0x%02x", compression)
	}
}

func TestDecompressEmptyPayload(t *testing.T) {
	_, err := Decompress(nil, 16)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestDecompressLengthMismatch(t *testing.T) {
	payload, err := Compress(TypeZLib, compressible(1024))
	require.NoError(t, err)

	_, err = Decompress(append([]byte{TypeZLib}, payload...), 1023)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestDecompressCorruptZLib(t *testing.T) {
	_, err := Decompress([]byte{TypeZLib, 0xDE, 0xAD, 0xBE, 0xEF}, 16)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestCompressUnsupported(t *testing.T) {
	_, err := Compress(TypePKLib, []byte("payload"))
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestExplodeEscapeRaw(t *testing.T) {
	expected := []byte("stored verbatim")

	payload := []byte{0, 0, 0}
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(expected)))
	payload = append(payload, expected...)

	actual, err := Explode(payload, len(expected))
	require.NoError(t, err)
	require.Equal(t, expected, actual)
}

func TestExplodeEscapeZLib(t *testing.T) {
	expected := compressible(2048)

	compressed, err := Compress(TypeZLib, expected)
	require.NoError(t, err)

	payload := []byte{0, 0, 0}
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(expected)))
	payload = append(payload, compressed...)

	actual, err := Explode(payload, len(expected))
	require.NoError(t, err)
	require.Equal(t, expected, actual)
}

func TestExplodeEscapeLengthDisagreement(t *testing.T) {
	payload := []byte{0, 0, 0}
	payload = binary.LittleEndian.AppendUint32(payload, 100)
	payload = append(payload, bytes.Repeat([]byte{0xAA}, 10)...)

	_, err := Explode(payload, 50)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeADPCMInitialSamplesOnly(t *testing.T) {
	// Header, one initial sample, no encoded bytes
	payload := []byte{0x00, 0x00, 0x64, 0x00}

	actual, err := decodeADPCM(payload, 2, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0x64, 0x00}, actual)
}

func TestDecodeADPCMSingleSample(t *testing.T) {
	// Initial sample 100, then encoded byte 0x00: step index 44 gives step 494, no magnitude bits, positive sign,
	// so the next sample is 100+494 = 594.
	payload := []byte{0x00, 0x00, 0x64, 0x00, 0x00}

	actual, err := decodeADPCM(payload, 4, 1)
	require.NoError(t, err)

	require.Equal(t, int16(100), int16(binary.LittleEndian.Uint16(actual[0:])))
	require.Equal(t, int16(594), int16(binary.LittleEndian.Uint16(actual[2:])))
}

func TestDecodeADPCMRepeatOpcode(t *testing.T) {
	// 0x80 repeats the previous sample
	payload := []byte{0x00, 0x00, 0x64, 0x00, 0x80}

	actual, err := decodeADPCM(payload, 4, 1)
	require.NoError(t, err)
	require.Equal(t, int16(100), int16(binary.LittleEndian.Uint16(actual[2:])))
}

func TestDecodeADPCMStereoInterleaves(t *testing.T) {
	// Two initial samples then a repeat per channel
	payload := []byte{0x00, 0x00, 0x0A, 0x00, 0x14, 0x00, 0x80, 0x80}

	actual, err := decodeADPCM(payload, 8, 2)
	require.NoError(t, err)

	samples := make([]int16, 4)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(actual[i*2:]))
	}

	require.Equal(t, []int16{10, 20, 10, 20}, samples)
}

func TestDecodeADPCMTruncatedHeader(t *testing.T) {
	_, err := decodeADPCM([]byte{0x00}, 2, 1)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestDecodeHuffmanTruncated(t *testing.T) {
	payload, err := Compress(TypeHuffman, compressible(256))
	require.NoError(t, err)

	_, err = Decompress(append([]byte{TypeHuffman}, payload[:len(payload)/2]...), 256)
	require.ErrorIs(t, err, ErrCorrupt)
}
