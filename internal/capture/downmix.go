package capture

import (
	"encoding/binary"
	"math"
)

// decodeFloat32 reinterprets raw little-endian float32 PCM bytes as
// samples. Trailing bytes that do not form a whole sample are dropped.
func decodeFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// downmixFunc folds interleaved multi-channel samples into a mono
// buffer of the given frame count.
type downmixFunc func(samples []float32, channels, frames int) []float32

// downmixerFor resolves a configured downmix mode. Unrecognized values
// fall back to channel averaging rather than fail a running capture.
func downmixerFor(mode string) downmixFunc {
	if mode == "left" {
		return downmixFirstChannel
	}
	return downmixInterleaved
}

// downmixInterleaved averages interleaved multi-channel samples into a
// mono buffer of the given frame count.
func downmixInterleaved(samples []float32, channels, frames int) []float32 {
	mono := make([]float32, frames)
	if channels == 1 {
		copy(mono, samples[:frames])
		return mono
	}
	for f := 0; f < frames; f++ {
		base := f * channels
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[base+ch]
		}
		mono[f] = sum / float32(channels)
	}
	return mono
}

// downmixFirstChannel keeps channel zero of each frame and discards
// the rest.
func downmixFirstChannel(samples []float32, channels, frames int) []float32 {
	mono := make([]float32, frames)
	for f := 0; f < frames; f++ {
		mono[f] = samples[f*channels]
	}
	return mono
}
