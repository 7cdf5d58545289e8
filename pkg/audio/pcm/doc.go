// Package pcm provides format math and sample helpers for 16-bit PCM audio.
//
// Format captures the fixed configurations the pipeline works with
// (16-bit mono at 16, 24 or 48 kHz) and converts between byte counts,
// sample counts and durations. The sample helpers convert raw bytes to
// int16 samples and back and compute RMS energy, dBFS levels, gain and
// fades for the clip slicer.
//
// Example usage:
//
//	// Calculate bytes needed for a 30ms analysis frame
//	frame := pcm.L16Mono16K.BytesInDuration(30 * time.Millisecond)
//
//	// Compute the energy of a window of samples
//	level := pcm.RMS(pcm.Samples16(audioData))
package pcm
