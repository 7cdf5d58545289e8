// Package slicer extracts a short, clean voice clip for one speaker from a
// diarized recording, for human-in-the-loop identification.
//
// Given one speaker's turns plus every other speaker's turns (for overlap
// avoidance), the slicer tries an ordered chain of strategies:
//
//  1. Voice-activity clustering: frame-level speech scoring, micro-pause
//     bridging, contiguous clustering, best cluster by duration × ratio.
//  2. Energy check: a strictly weaker RMS-windowed pass/fail substitute,
//     used when no voice-activity scorer is available.
//  3. Brute force: after too many failed turn attempts, a fixed-length
//     window from the speaker's longest turn, regardless of confidence.
//
// Whatever window wins is expanded to the target duration, shrunk inward
// away from competing speakers' turns, re-checked for speech content,
// loudness-normalized, faded, and exported as WAV. If every strategy fails
// the speaker simply cannot be sampled this round: Slice returns nil, which
// is an expected outcome, not an error.
package slicer

import (
	"bytes"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/earshothq/earshot/pkg/audio/pcm"
	"github.com/earshothq/earshot/pkg/audio/wav"
	"github.com/earshothq/earshot/pkg/diarize"
)

// Tier reports how the winning window was found, best first.
type Tier string

const (
	// TierVADHigh is a voice-activity cluster with a high speech ratio.
	TierVADHigh Tier = "vad-high"

	// TierVADLow is a voice-activity cluster that passed the minimum
	// ratio but not the high bar.
	TierVADLow Tier = "vad-low"

	// TierRMS is an energy-based window (no voice-activity scorer).
	TierRMS Tier = "rms"

	// TierFallback is a brute-force window from the longest turn.
	TierFallback Tier = "fallback"
)

// Clip is an exported voice sample.
type Clip struct {
	// WAV is the encoded 16-bit PCM mono clip.
	WAV []byte

	// Start and End locate the clip within the source recording.
	Start, End time.Duration

	// Tier reports the confidence tier achieved.
	Tier Tier
}

// Dur returns the clip duration.
func (c *Clip) Dur() time.Duration { return c.End - c.Start }

// Config holds the slicing constants. The zero value uses the defaults
// below; deployments can override any field.
type Config struct {
	FrameDur        time.Duration // voice-activity frame size
	TargetDur       time.Duration // preferred clip length
	MinClipDur      time.Duration // absolute floor, never go below
	MaxScanWindow   time.Duration // max audio scanned per turn
	GapTolerance    int           // frames of silence bridged between speech
	MinClusterDur   time.Duration // shortest acceptable speech cluster
	MinSpeechRatio  float64       // cluster speech-frame ratio floor
	HighSpeechRatio float64       // ratio at or above which a cluster is vad-high
	FinalRatio      float64       // speech ratio floor for the finished slice
	MaxVADRetries   int           // failed turn attempts before brute force
	SafetyMargin    time.Duration // keep-out padding around other speakers
	TargetDBFS      float64       // loudness normalization target
	GainMin         float64       // minimum allowed gain
	GainMax         float64       // maximum allowed gain (avoid amplifying noise)
	FadeDur         time.Duration // fade-in/out length
	RMSFloor        float64       // mean level floor for the energy check
	RMSLoudRatio    float64       // fraction of windows that must be loud
	RMSWindow       time.Duration // energy check window size
}

// DefaultConfig returns the default slicing constants.
func DefaultConfig() Config {
	return Config{
		FrameDur:        30 * time.Millisecond,
		TargetDur:       6 * time.Second,
		MinClipDur:      1500 * time.Millisecond,
		MaxScanWindow:   30 * time.Second,
		GapTolerance:    3,
		MinClusterDur:   1500 * time.Millisecond,
		MinSpeechRatio:  0.40,
		HighSpeechRatio: 0.60,
		FinalRatio:      0.20,
		MaxVADRetries:   2,
		SafetyMargin:    250 * time.Millisecond,
		TargetDBFS:      -20,
		GainMin:         0.5,
		GainMax:         4.0,
		FadeDur:         20 * time.Millisecond,
		RMSFloor:        0.01,
		RMSLoudRatio:    0.5,
		RMSWindow:       100 * time.Millisecond,
	}
}

// Slicer slices clips out of 16 kHz mono PCM16 recordings.
type Slicer struct {
	cfg    Config
	vad    VoiceActivity
	logger *slog.Logger
}

// Option configures a Slicer.
type Option func(*Slicer)

// WithConfig replaces the default slicing constants.
func WithConfig(cfg Config) Option {
	return func(s *Slicer) { s.cfg = cfg }
}

// WithVoiceActivity sets the frame-level voice-activity scorer.
// Pass nil to force the energy-based path.
func WithVoiceActivity(v VoiceActivity) Option {
	return func(s *Slicer) { s.vad = v }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Slicer) { s.logger = l }
}

// New creates a Slicer. By default it uses an EnergyVAD scorer and the
// default config.
func New(opts ...Option) *Slicer {
	s := &Slicer{
		cfg: DefaultConfig(),
		vad: &EnergyVAD{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

const sampleRate = 16000

func (s *Slicer) dur2samp(d time.Duration) int {
	return int(pcm.L16Mono16K.SamplesInDuration(d))
}

func samp2dur(n int) time.Duration {
	return pcm.L16Mono16K.Duration(int64(n * 2))
}

// candidate is a uniform slice proposal produced by any strategy.
type candidate struct {
	start, end time.Duration
	tier       Tier
}

// Slice finds and exports one clip for the speaker whose turns are given.
// audio is the whole recording as PCM16 16 kHz mono; others are every
// competing speaker's turns. Returns nil when no usable clip exists; the
// speaker is simply not identifiable this round.
func (s *Slicer) Slice(audio []byte, turns, others []diarize.Segment) *Clip {
	if len(turns) == 0 || len(audio) < 2 {
		return nil
	}
	samples := pcm.Samples16(audio)
	total := samp2dur(len(samples))

	// Longest-speech-first: the densest turns are the most promising.
	ordered := make([]diarize.Segment, len(turns))
	copy(ordered, turns)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Dur() > ordered[j].Dur()
	})

	useVAD := s.vad != nil && s.vad.Available()
	failed := 0

	for _, turn := range ordered {
		if failed >= s.cfg.MaxVADRetries {
			break
		}
		var cand *candidate
		if useVAD {
			cand = s.vadCandidate(samples, turn)
		} else {
			cand = s.rmsCandidate(samples, turn)
		}
		if cand == nil {
			failed++
			continue
		}
		if clip := s.finish(samples, total, *cand, others); clip != nil {
			return clip
		}
		failed++
	}

	// Brute force: a fixed window from the single longest turn.
	cand := s.bruteForceCandidate(ordered[0], total)
	if cand == nil {
		return nil
	}
	return s.finish(samples, total, *cand, others)
}

// vadCandidate runs frame-level voice-activity clustering over one turn.
func (s *Slicer) vadCandidate(samples []int16, turn diarize.Segment) *candidate {
	start, end := s.scanWindow(turn, len(samples))
	if end-start < s.dur2samp(s.cfg.MinClusterDur) {
		return nil
	}

	frameLen := s.dur2samp(s.cfg.FrameDur)
	n := (end - start) / frameLen
	if n == 0 {
		return nil
	}

	raw := make([]bool, n)
	for i := range n {
		off := start + i*frameLen
		raw[i] = s.vad.Score(samples[off:off+frameLen]) >= 0.5
	}
	smoothed := bridgeGaps(raw, s.cfg.GapTolerance)

	best := bestCluster(raw, smoothed, frameLen, s.dur2samp(s.cfg.MinClusterDur), s.cfg.MinSpeechRatio)
	if best == nil {
		return nil
	}

	tier := TierVADLow
	if best.ratio >= s.cfg.HighSpeechRatio {
		tier = TierVADHigh
	}
	return &candidate{
		start: samp2dur(start + best.from*frameLen),
		end:   samp2dur(start + best.to*frameLen),
		tier:  tier,
	}
}

// rmsCandidate applies the energy-windowed pass/fail check to one turn.
// It is a strictly weaker substitute for voice-activity clustering: the
// whole scan window passes or fails as a unit.
func (s *Slicer) rmsCandidate(samples []int16, turn diarize.Segment) *candidate {
	start, end := s.scanWindow(turn, len(samples))
	if end-start < s.dur2samp(s.cfg.MinClipDur) {
		return nil
	}

	win := s.dur2samp(s.cfg.RMSWindow)
	if win == 0 {
		return nil
	}
	var sum float64
	loud, count := 0, 0
	for off := start; off+win <= end; off += win {
		level := pcm.RMS(samples[off : off+win])
		sum += level
		count++
		if level >= s.cfg.RMSFloor {
			loud++
		}
	}
	if count == 0 {
		return nil
	}
	mean := sum / float64(count)
	if mean < s.cfg.RMSFloor || float64(loud)/float64(count) < s.cfg.RMSLoudRatio {
		return nil
	}
	return &candidate{start: samp2dur(start), end: samp2dur(end), tier: TierRMS}
}

// bruteForceCandidate takes a fixed-length window from the longest turn,
// with no confidence check at all.
func (s *Slicer) bruteForceCandidate(longest diarize.Segment, total time.Duration) *candidate {
	if longest.Dur() < s.cfg.MinClipDur {
		return nil
	}
	end := longest.Start + s.cfg.TargetDur
	if end > longest.End {
		end = longest.End
	}
	if end > total {
		end = total
	}
	if end-longest.Start < s.cfg.MinClipDur {
		return nil
	}
	return &candidate{start: longest.Start, end: end, tier: TierFallback}
}

// scanWindow clamps a turn to the audio bounds and the max scan length,
// in samples.
func (s *Slicer) scanWindow(turn diarize.Segment, totalSamples int) (int, int) {
	start := s.dur2samp(turn.Start)
	end := s.dur2samp(turn.End)
	if limit := start + s.dur2samp(s.cfg.MaxScanWindow); end > limit {
		end = limit
	}
	if start < 0 {
		start = 0
	}
	if end > totalSamples {
		end = totalSamples
	}
	if start > end {
		start = end
	}
	return start, end
}

// finish turns a candidate window into an exported clip: expand to target,
// avoid other speakers, re-check speech, normalize, fade, encode.
// Returns nil if the candidate cannot produce a clip of minimum duration.
func (s *Slicer) finish(samples []int16, total time.Duration, cand candidate, others []diarize.Segment) *Clip {
	start, end := expandWindow(cand.start, cand.end, s.cfg.TargetDur, total)
	start, end, ok := avoidOthers(start, end, others, s.cfg.SafetyMargin)
	if !ok || end-start < s.cfg.MinClipDur {
		return nil
	}

	from, to := s.dur2samp(start), s.dur2samp(end)
	if to > len(samples) {
		to = len(samples)
	}
	if to-from < s.dur2samp(s.cfg.MinClipDur) {
		return nil
	}

	// One last sanity pass over the finished slice: a clip that is mostly
	// silence helps nobody name a voice.
	if s.speechRatio(samples[from:to]) < s.cfg.FinalRatio {
		s.logger.Debug("slice rejected by final speech check",
			"start", start, "end", end, "tier", cand.tier)
		return nil
	}

	out := make([]int16, to-from)
	copy(out, samples[from:to])
	normalizeLoudness(out, s.cfg.TargetDBFS, s.cfg.GainMin, s.cfg.GainMax)
	pcm.Fade(out, s.dur2samp(s.cfg.FadeDur))

	var buf bytes.Buffer
	if err := wav.Encode(&buf, wav.Format{SampleRate: sampleRate, Channels: 1}, pcm.Bytes16(out)); err != nil {
		s.logger.Error("clip encode failed", "err", err)
		return nil
	}
	return &Clip{WAV: buf.Bytes(), Start: start, End: end, Tier: cand.tier}
}

// speechRatio scores the finished slice with whatever scorer is on hand.
func (s *Slicer) speechRatio(slice []int16) float64 {
	frameLen := s.dur2samp(s.cfg.FrameDur)
	n := len(slice) / frameLen
	if n == 0 {
		return 0
	}
	speech := 0
	for i := range n {
		frame := slice[i*frameLen : (i+1)*frameLen]
		if s.vad != nil && s.vad.Available() {
			if s.vad.Score(frame) >= 0.5 {
				speech++
			}
		} else if pcm.RMS(frame) >= s.cfg.RMSFloor {
			speech++
		}
	}
	return float64(speech) / float64(n)
}

// normalizeLoudness applies a clamped gain toward the target level.
func normalizeLoudness(samples []int16, targetDBFS, gainMin, gainMax float64) {
	level := pcm.RMS(samples)
	if level <= 0 {
		return
	}
	current := pcm.DBFS(level)
	gain := math.Pow(10, (targetDBFS-current)/20)
	if gain < gainMin {
		gain = gainMin
	}
	if gain > gainMax {
		gain = gainMax
	}
	pcm.ApplyGain(samples, gain)
}
