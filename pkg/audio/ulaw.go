// Package audio converts between the telephony G.711 µ-law narrowband
// encoding (8-bit logarithmic, 8 kHz) and the linear wideband encoding the
// upstream endpoint expects (16-bit signed little-endian PCM, 24 kHz).
// All functions are pure and safe for concurrent use.
package audio

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// ulawToLinear holds the expansion for every possible µ-law codeword.
// Built once at process start; DecodeULaw is a table lookup per byte.
var ulawToLinear [256]int16

func init() {
	for i := 0; i < 256; i++ {
		ulawToLinear[i] = expandULaw(byte(i))
	}
}

func expandULaw(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	value := ((int(mantissa) << 3) + ulawBias) << exponent
	value -= ulawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// DecodeULaw expands µ-law bytes to linear samples, one sample per byte.
func DecodeULaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = ulawToLinear[b]
	}
	return out
}

// EncodeULaw compresses linear samples to µ-law, one byte per sample.
// Inverse of DecodeULaw for every codeword except 0x7F (negative zero),
// which canonicalizes to 0xFF.
func EncodeULaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = compressULaw(s)
	}
	return out
}

func compressULaw(sample int16) byte {
	// Widen before negating; -int16(-32768) overflows.
	v := int(sample)
	sign := byte(0)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > ulawClip {
		v = ulawClip
	}
	v += ulawBias

	exponent := byte(7)
	for mask := 0x4000; v&mask == 0 && exponent > 0; exponent-- {
		mask >>= 1
	}
	mantissa := byte((v >> (exponent + 3)) & 0x0F)
	return ^(sign | (exponent << 4) | mantissa)
}

// Upsample3x expands 8 kHz samples to 24 kHz by linear interpolation
// between each sample and its successor. The last sample is repeated
// since chunks carry no look-ahead; the seam distortion is accepted.
func Upsample3x(samples []int16) []int16 {
	out := make([]int16, 3*len(samples))
	for i, s := range samples {
		next := s
		if i+1 < len(samples) {
			next = samples[i+1]
		}
		step := (int(next) - int(s)) / 3
		out[3*i] = s
		out[3*i+1] = int16(int(s) + step)
		out[3*i+2] = int16(int(s) + 2*step)
	}
	return out
}

// Downsample3x decimates 24 kHz samples to 8 kHz by keeping every third
// sample. No anti-alias filtering; voice energy above 4 kHz is assumed
// negligible.
func Downsample3x(samples []int16) []int16 {
	out := make([]int16, len(samples)/3)
	for i := range out {
		out[i] = samples[3*i]
	}
	return out
}

// InboundPCM transcodes one telephony chunk to the upstream format:
// µ-law 8 kHz in, little-endian PCM16 24 kHz out.
func InboundPCM(mulaw []byte) []byte {
	return samplesToBytes(Upsample3x(DecodeULaw(mulaw)))
}

// OutboundULaw transcodes one upstream chunk to the telephony format:
// little-endian PCM16 24 kHz in, µ-law 8 kHz out.
func OutboundULaw(pcm []byte) []byte {
	return EncodeULaw(Downsample3x(bytesToSamples(pcm)))
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

func bytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}
	return out
}
