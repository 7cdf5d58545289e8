package resampler_test

import (
	"testing"

	"github.com/earshothq/earshot/pkg/audio/pcm"
	"github.com/earshothq/earshot/pkg/audio/resampler"
)

func TestConvertIdentity(t *testing.T) {
	in := pcm.Bytes16([]int16{1, 2, 3, 4})
	f := resampler.Format{SampleRate: 16000}
	out, err := resampler.Convert(in, f, f)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if string(out) != string(in) {
		t.Fatal("identity conversion changed data")
	}
	// Must be a copy, not an alias.
	out[0] ^= 0xff
	if in[0] == out[0] {
		t.Fatal("identity conversion aliased input")
	}
}

func TestStereoToMonoAverages(t *testing.T) {
	// L=1000, R=3000 → mono 2000; L=-500, R=500 → 0.
	in := pcm.Bytes16([]int16{1000, 3000, -500, 500})
	out, err := resampler.Convert(in,
		resampler.Format{SampleRate: 16000, Stereo: true},
		resampler.Model16KMono)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got := pcm.Samples16(out)
	if len(got) != 2 || got[0] != 2000 || got[1] != 0 {
		t.Fatalf("downmix = %v, want [2000 0]", got)
	}
}

func TestMonoToStereoDuplicates(t *testing.T) {
	in := pcm.Bytes16([]int16{7, -7})
	out, err := resampler.Convert(in,
		resampler.Format{SampleRate: 8000},
		resampler.Format{SampleRate: 8000, Stereo: true})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got := pcm.Samples16(out)
	want := []int16{7, 7, -7, -7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("upmix = %v, want %v", got, want)
		}
	}
}

func TestResampleHalvesSampleCount(t *testing.T) {
	// One second of 32 kHz audio downsampled to 16 kHz should yield
	// roughly 16000 samples.
	in := make([]int16, 32000)
	for i := range in {
		in[i] = int16(i % 1000)
	}
	out, err := resampler.Convert(pcm.Bytes16(in),
		resampler.Format{SampleRate: 32000},
		resampler.Model16KMono)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	n := len(out) / 2
	if n < 15000 || n > 17000 {
		t.Fatalf("resampled to %d samples, want ~16000", n)
	}
}
