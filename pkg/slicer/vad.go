package slicer

import "github.com/earshothq/earshot/pkg/audio/pcm"

// VoiceActivity scores a fixed-size frame of PCM16 samples for speech
// content.
//
// Implementations backed by an acoustic model should return Available()
// false when the model could not be loaded; the slicer then drops to the
// energy-based path instead of failing.
type VoiceActivity interface {
	// Score returns the speech probability of the frame in [0, 1].
	Score(frame []int16) float32

	// Available reports whether the scorer can actually score.
	Available() bool
}

// EnergyVAD is a model-free VoiceActivity scorer based on frame energy.
// It is deliberately simple: frames well above the floor score high,
// frames near silence score zero. It exists so the voice-activity path
// works without an acoustic model; a real model gives better clusters.
type EnergyVAD struct {
	// Floor is the RMS level treated as silence. Zero means 0.005
	// (about -46 dBFS).
	Floor float64
}

func (v *EnergyVAD) floor() float64 {
	if v.Floor > 0 {
		return v.Floor
	}
	return 0.005
}

// Score implements VoiceActivity.
func (v *EnergyVAD) Score(frame []int16) float32 {
	level := pcm.RMS(frame)
	floor := v.floor()
	if level < floor {
		return 0
	}
	// Scale so that 4x the floor saturates at 1.0.
	score := (level - floor) / (3 * floor)
	if score > 1 {
		score = 1
	}
	return float32(score)
}

// Available implements VoiceActivity. The energy scorer always works.
func (v *EnergyVAD) Available() bool { return true }
