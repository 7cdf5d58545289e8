package slicer

import (
	"sort"
	"time"

	"github.com/earshothq/earshot/pkg/diarize"
)

// cluster is a run of speech frames surviving the filters.
type cluster struct {
	from, to int     // frame indices, half-open
	ratio    float64 // raw (unsmoothed) speech-frame ratio within the span
}

// bridgeGaps reclassifies short silent runs flanked by speech on both
// sides as speech, bridging the micro-pauses inside a phrase.
func bridgeGaps(frames []bool, tolerance int) []bool {
	out := make([]bool, len(frames))
	copy(out, frames)
	if tolerance <= 0 {
		return out
	}
	i := 0
	for i < len(out) {
		if out[i] {
			i++
			continue
		}
		// Measure the silent run starting at i.
		j := i
		for j < len(out) && !out[j] {
			j++
		}
		if i > 0 && j < len(out) && j-i <= tolerance {
			for k := i; k < j; k++ {
				out[k] = true
			}
		}
		i = j
	}
	return out
}

// bestCluster clusters contiguous speech frames (after smoothing), filters
// by minimum duration and raw speech ratio, and returns the cluster with
// the highest duration × ratio score. Returns nil when nothing survives.
func bestCluster(raw, smoothed []bool, frameLen, minSamples int, minRatio float64) *cluster {
	minFrames := minSamples / frameLen
	var best *cluster
	bestScore := -1.0

	i := 0
	for i < len(smoothed) {
		if !smoothed[i] {
			i++
			continue
		}
		j := i
		for j < len(smoothed) && smoothed[j] {
			j++
		}
		length := j - i
		if length >= minFrames {
			speech := 0
			for k := i; k < j; k++ {
				if raw[k] {
					speech++
				}
			}
			ratio := float64(speech) / float64(length)
			if ratio >= minRatio {
				score := float64(length) * ratio
				if score > bestScore {
					bestScore = score
					best = &cluster{from: i, to: j, ratio: ratio}
				}
			}
		}
		i = j
	}
	return best
}

// expandWindow centers a window on the target duration: short windows grow
// symmetrically, long windows are trimmed around their midpoint. The result
// is clamped to the recording bounds.
func expandWindow(start, end, target, total time.Duration) (time.Duration, time.Duration) {
	if end-start > target {
		mid := start + (end-start)/2
		return mid - target/2, mid + target/2
	}
	pad := (target - (end - start)) / 2
	start -= pad
	end += pad
	if start < 0 {
		end -= start // shift right by the underflow
		start = 0
	}
	if end > total {
		start -= end - total
		end = total
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// avoidOthers shrinks the window inward so it never intersects any other
// speaker's turn, inflated by the safety margin on both sides. When the
// forbidden ranges split the window, the longest remaining free interval
// wins. Returns ok=false when nothing is left.
func avoidOthers(start, end time.Duration, others []diarize.Segment, margin time.Duration) (time.Duration, time.Duration, bool) {
	if end <= start {
		return 0, 0, false
	}

	type span struct{ from, to time.Duration }
	var forbidden []span
	for _, o := range others {
		f := span{o.Start - margin, o.End + margin}
		if f.to <= start || f.from >= end {
			continue
		}
		forbidden = append(forbidden, f)
	}
	if len(forbidden) == 0 {
		return start, end, true
	}
	sort.Slice(forbidden, func(i, j int) bool { return forbidden[i].from < forbidden[j].from })

	// Walk the forbidden spans, collecting free gaps inside [start, end].
	bestFrom, bestTo := time.Duration(0), time.Duration(0)
	cursor := start
	consider := func(from, to time.Duration) {
		if to-from > bestTo-bestFrom {
			bestFrom, bestTo = from, to
		}
	}
	for _, f := range forbidden {
		if f.from > cursor {
			consider(cursor, minDur(f.from, end))
		}
		if f.to > cursor {
			cursor = f.to
		}
	}
	if cursor < end {
		consider(cursor, end)
	}
	if bestTo <= bestFrom {
		return 0, 0, false
	}
	return bestFrom, bestTo, true
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
