// Package audio provides audio processing utilities.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - pcm: PCM (Pulse Code Modulation) format math and sample helpers
//   - wav: minimal RIFF/WAVE PCM16 codec for recordings and exported clips
//   - resampler: sample-rate and channel conversion to the 16 kHz mono
//     format the diarization and embedding models expect
package audio
