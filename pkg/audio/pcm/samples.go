package pcm

import (
	"encoding/binary"
	"math"
)

// Samples16 decodes PCM16 signed little-endian bytes into int16 samples.
// A trailing odd byte is ignored.
func Samples16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}

// Bytes16 encodes int16 samples as PCM16 signed little-endian bytes.
func Bytes16(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// RMS returns the root-mean-square level of the samples, normalized to
// [0, 1] where 1.0 corresponds to full scale. Returns 0 for empty input.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768.0
}

// DBFS converts a normalized RMS level to decibels relative to full scale.
// A level of 0 maps to -96 dBFS (the PCM16 noise floor) rather than -Inf.
func DBFS(level float64) float64 {
	if level <= 0 {
		return -96
	}
	db := 20 * math.Log10(level)
	if db < -96 {
		return -96
	}
	return db
}

// ApplyGain multiplies the samples by gain in place, clipping at the PCM16
// range.
func ApplyGain(samples []int16, gain float64) {
	for i, s := range samples {
		v := float64(s) * gain
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		samples[i] = int16(v)
	}
}

// Fade applies linear fade-in over the first n samples and fade-out over
// the last n samples, in place. n is clamped to half the buffer.
func Fade(samples []int16, n int) {
	if n <= 0 {
		return
	}
	if n > len(samples)/2 {
		n = len(samples) / 2
	}
	for i := 0; i < n; i++ {
		g := float64(i) / float64(n)
		samples[i] = int16(float64(samples[i]) * g)
		j := len(samples) - 1 - i
		samples[j] = int16(float64(samples[j]) * g)
	}
}
