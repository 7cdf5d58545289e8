package slicer

import (
	"math"

	"github.com/earshothq/earshot/pkg/audio/fbank"
	"github.com/earshothq/earshot/pkg/audio/pcm"
)

// SpectralVAD scores frames by how much of their energy falls inside the
// speech band, computed from log mel filterbank features. Unlike
// EnergyVAD it keeps scoring loud broadband noise and high hiss low.
type SpectralVAD struct {
	// Floor is the RMS level treated as silence. Zero means 0.005.
	Floor float64

	ext    *fbank.Extractor
	lo, hi int // mel bins covering the speech band
}

// Speech band limits in Hz. Voiced speech energy concentrates here;
// rumble sits below, hiss and fricative splash above.
const (
	speechBandLow  = 200.0
	speechBandHigh = 3500.0
)

// NewSpectralVAD returns a SpectralVAD for 16 kHz mono frames.
func NewSpectralVAD() *SpectralVAD {
	cfg := fbank.DefaultConfig()
	v := &SpectralVAD{ext: fbank.New(cfg)}
	v.lo, v.hi = melBinRange(cfg, speechBandLow, speechBandHigh)
	return v
}

func (v *SpectralVAD) floor() float64 {
	if v.Floor > 0 {
		return v.Floor
	}
	return 0.005
}

// Score implements VoiceActivity.
func (v *SpectralVAD) Score(frame []int16) float32 {
	if pcm.RMS(frame) < v.floor() {
		return 0
	}

	samples := make([]float32, len(frame))
	for i, s := range frame {
		samples[i] = float32(s) / 32768.0
	}
	feats := v.ext.Extract(samples)
	if len(feats) == 0 {
		// Frame shorter than the analysis window.
		return 0
	}

	var speech, total float64
	for _, row := range feats {
		for m, lv := range row {
			e := math.Exp(float64(lv))
			total += e
			if m >= v.lo && m <= v.hi {
				speech += e
			}
		}
	}
	if total == 0 {
		return 0
	}
	ratio := speech / total

	// Below a quarter of the energy in band is noise; three quarters or
	// more saturates.
	score := (ratio - 0.25) / 0.5
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return float32(score)
}

// Available implements VoiceActivity.
func (v *SpectralVAD) Available() bool { return true }

// melBinRange returns the first and last mel bin whose center frequency
// lies inside [loHz, hiHz] for the given filterbank layout.
func melBinRange(cfg fbank.Config, loHz, hiHz float64) (int, int) {
	mel := func(hz float64) float64 { return 2595.0 * math.Log10(1.0+hz/700.0) }
	hz := func(m float64) float64 { return 700.0 * (math.Pow(10.0, m/2595.0) - 1.0) }

	lowMel := mel(cfg.LowFreq)
	step := (mel(cfg.HighFreq) - lowMel) / float64(cfg.NumMels+1)

	lo, hi := 0, cfg.NumMels-1
	for m := 0; m < cfg.NumMels; m++ {
		center := hz(lowMel + float64(m+1)*step)
		if center < loHz {
			lo = m + 1
		}
		if center <= hiHz {
			hi = m
		}
	}
	return lo, hi
}
