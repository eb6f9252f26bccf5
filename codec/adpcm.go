package codec

import (
	"encoding/binary"
	"fmt"
)

// The IMA-ADPCM variant used for wave data. The stream starts with a two byte header (a zero byte then the bit
// shift), one initial 16-bit sample per channel, then one encoded byte per sample with channels interleaved.

const initialStepIndex = 0x2C

var stepSizes = [89]int32{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17,
	19, 21, 23, 25, 28, 31, 34, 37, 41, 45,
	50, 55, 60, 66, 73, 80, 88, 97, 107, 118,
	130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796,
	876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358,
	5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

var nextStep = [32]int32{
	-1, 0, -1, 4, -1, 2, -1, 6,
	-1, 1, -1, 5, -1, 3, -1, 7,
	-1, 1, -1, 5, -1, 3, -1, 7,
	-1, 2, -1, 4, -1, 6, -1, 8,
}

func decodeADPCM(data []byte, expected, channels int) ([]byte, error) {
	if len(data) < 2+2*channels {
		return nil, fmt.Errorf("%w: truncated adpcm header", ErrInsufficientData)
	}

	if expected%2 != 0 {
		return nil, fmt.Errorf("%w: odd pcm output size %d", ErrCorrupt, expected)
	}

	var (
		bitShift  = data[1]
		out       = make([]byte, 0, expected)
		predicted [2]int32
		steps     = [2]int32{initialStepIndex, initialStepIndex}
	)

	pos := 2

	for channel := 0; channel < channels; channel++ {
		sample := int16(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2

		predicted[channel] = int32(sample)
		out = binary.LittleEndian.AppendUint16(out, uint16(sample))
	}

	channel := channels - 1

	for pos < len(data) && len(out) < expected {
		encoded := data[pos]
		pos++

		channel = (channel + 1) % channels

		switch {
		case encoded == 0x80:
			// Repeat the previous sample with a smaller step
			if steps[channel] != 0 {
				steps[channel]--
			}

			out = binary.LittleEndian.AppendUint16(out, uint16(predicted[channel]))
		case encoded == 0x81:
			// Widen the step without emitting a sample; the next byte belongs to the same channel
			steps[channel] += 8
			if steps[channel] > 0x58 {
				steps[channel] = 0x58
			}

			channel = (channel + channels - 1) % channels
		default:
			var (
				step       = stepSizes[steps[channel]]
				difference = step >> bitShift
			)

			for bit := 0; bit < 6; bit++ {
				if encoded&(1<<bit) != 0 {
					difference += step >> bit
				}
			}

			sample := predicted[channel]
			if encoded&0x40 != 0 {
				sample -= difference
			} else {
				sample += difference
			}

			if sample > 32767 {
				sample = 32767
			} else if sample < -32768 {
				sample = -32768
			}

			predicted[channel] = sample
			out = binary.LittleEndian.AppendUint16(out, uint16(uint32(sample)&0xFFFF))

			steps[channel] += nextStep[encoded&0x1F]
			if steps[channel] < 0 {
				steps[channel] = 0
			} else if steps[channel] > 88 {
				steps[channel] = 88
			}
		}
	}

	return out, nil
}
