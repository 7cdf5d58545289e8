// Package resampler converts PCM16 audio between sample rates and channel
// layouts using a pure Go SoX-quality resampler.
//
// Earshot's diarization and embedding models consume 16 kHz mono PCM16, while
// input recordings arrive at arbitrary rates and channel counts. The pipeline
// operates on complete recordings, so the API is buffer-oriented rather than
// streaming: decode the file, convert once, slice from the converted buffer.
package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Format describes a PCM16 layout. Only 16-bit signed integer samples are
// supported.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 44100, 48000).
	SampleRate int

	// Stereo indicates stereo (2 channels) if true, mono (1 channel) if false.
	Stereo bool
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// Model16KMono is the format expected by the diarization and embedding models.
var Model16KMono = Format{SampleRate: 16000, Stereo: false}

// Convert transcodes PCM16 little-endian audio from src to dst format.
// Channel conversion happens before rate conversion; stereo input is
// downmixed by averaging the two channels.
func Convert(data []byte, src, dst Format) ([]byte, error) {
	if src == dst {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	// Channel conversion first so the rate converter runs on the final
	// channel count.
	switch {
	case src.Stereo && !dst.Stereo:
		data = stereoToMono(data)
	case !src.Stereo && dst.Stereo:
		data = monoToStereo(data)
	}
	if src.SampleRate == dst.SampleRate {
		return data, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(src.SampleRate),
		OutputRate: float64(dst.SampleRate),
		Channels:   dst.channels(),
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create: %w", err)
	}

	// Normalize to [-1, 1] float64 for the resampling library.
	n := len(data) / 2
	input := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		input[i] = float64(s) / 32768.0
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, v := range output {
		s := int16(v * 32767.0)
		if v > 1.0 {
			s = 32767
		} else if v < -1.0 {
			s = -32768
		}
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out, nil
}

// stereoToMono downmixes interleaved stereo PCM16 by averaging L and R.
func stereoToMono(b []byte) []byte {
	frames := len(b) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		j := i * 4
		l := int16(b[j]) | int16(b[j+1])<<8
		r := int16(b[j+2]) | int16(b[j+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		out[i*2] = byte(m)
		out[i*2+1] = byte(m >> 8)
	}
	return out
}

// monoToStereo duplicates each mono PCM16 sample into both channels.
func monoToStereo(b []byte) []byte {
	samples := len(b) / 2
	out := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		s0, s1 := b[i*2], b[i*2+1]
		j := i * 4
		out[j], out[j+1] = s0, s1
		out[j+2], out[j+3] = s0, s1
	}
	return out
}
