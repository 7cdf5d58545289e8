package pcm_test

import (
	"testing"
	"time"

	"github.com/earshothq/earshot/pkg/audio/pcm"
)

func TestFormatMath(t *testing.T) {
	tests := []struct {
		format    pcm.Format
		rate      int
		bytesRate int
	}{
		{pcm.L16Mono16K, 16000, 32000},
		{pcm.L16Mono24K, 24000, 48000},
		{pcm.L16Mono48K, 48000, 96000},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.SampleRate(); got != tt.rate {
				t.Fatalf("SampleRate() = %d, want %d", got, tt.rate)
			}
			if got := tt.format.Channels(); got != 1 {
				t.Fatalf("Channels() = %d, want 1", got)
			}
			if got := tt.format.Depth(); got != 16 {
				t.Fatalf("Depth() = %d, want 16", got)
			}
			if got := tt.format.BytesRate(); got != tt.bytesRate {
				t.Fatalf("BytesRate() = %d, want %d", got, tt.bytesRate)
			}

			// One second of audio must round-trip through every conversion.
			oneSec := tt.format.BytesInDuration(time.Second)
			if oneSec != int64(tt.bytesRate) {
				t.Fatalf("BytesInDuration(1s) = %d, want %d", oneSec, tt.bytesRate)
			}
			if got := tt.format.Duration(oneSec); got != time.Second {
				t.Fatalf("Duration(%d) = %v, want 1s", oneSec, got)
			}
			if got := tt.format.Samples(oneSec); got != int64(tt.rate) {
				t.Fatalf("Samples(%d) = %d, want %d", oneSec, got, tt.rate)
			}
			if got := tt.format.SamplesInDuration(time.Second); got != int64(tt.rate) {
				t.Fatalf("SamplesInDuration(1s) = %d, want %d", got, tt.rate)
			}
		})
	}
}

func TestFormatDurationPartial(t *testing.T) {
	// 480 bytes at 16 kHz mono is 240 samples, 15 ms.
	if got := pcm.L16Mono16K.Duration(480); got != 15*time.Millisecond {
		t.Fatalf("Duration(480) = %v, want 15ms", got)
	}
	if got := pcm.L16Mono16K.BytesInDuration(30 * time.Millisecond); got != 960 {
		t.Fatalf("BytesInDuration(30ms) = %d, want 960", got)
	}
}
