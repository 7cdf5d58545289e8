package voicedb

// MatchStatus classifies a probe match result.
type MatchStatus int

const (
	// StatusUnknown means no centroid scored above the suggest threshold.
	StatusUnknown MatchStatus = iota

	// StatusSuggested means the best score cleared the suggest threshold
	// but not the auto threshold: report the candidate, do not apply it.
	StatusSuggested

	// StatusIdentified means the best score cleared the auto threshold.
	StatusIdentified
)

func (s MatchStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusSuggested:
		return "suggested"
	case StatusIdentified:
		return "identified"
	default:
		return "MatchStatus(?)"
	}
}

// Default matching thresholds. Cosine similarity of normalized speech
// embeddings effectively lives in [0, 1]; these cut that range into
// identified / suggested / unknown tiers.
const (
	DefaultAutoThreshold    = 0.80
	DefaultSuggestThreshold = 0.65
)

// Matcher scores probe embeddings against person centroids.
// The zero value uses the default thresholds. Matcher is pure: no I/O,
// no state, safe for concurrent use.
type Matcher struct {
	// AutoThreshold is the minimum score for StatusIdentified.
	// Zero means DefaultAutoThreshold.
	AutoThreshold float32

	// SuggestThreshold is the minimum score for StatusSuggested.
	// Zero means DefaultSuggestThreshold.
	SuggestThreshold float32
}

func (m Matcher) auto() float32 {
	if m.AutoThreshold > 0 {
		return m.AutoThreshold
	}
	return DefaultAutoThreshold
}

func (m Matcher) suggest() float32 {
	if m.SuggestThreshold > 0 {
		return m.SuggestThreshold
	}
	return DefaultSuggestThreshold
}

// Match scores the probe against every centroid and returns the best
// person ID with its cosine similarity. The result is deterministic for a
// fixed centroid set: the highest score wins, and equal scores break to
// the lexicographically smallest person ID. An empty centroid map returns
// ("", 0, StatusUnknown).
func (m Matcher) Match(probe []float32, centroids map[string][]float32) (string, float32, MatchStatus) {
	var (
		bestID    string
		bestScore float32 = -1
	)
	for id, c := range centroids {
		score := Cosine(probe, c)
		if score > bestScore || (score == bestScore && id < bestID) {
			bestID = id
			bestScore = score
		}
	}
	if bestID == "" {
		return "", 0, StatusUnknown
	}
	switch {
	case bestScore >= m.auto():
		return bestID, bestScore, StatusIdentified
	case bestScore >= m.suggest():
		return bestID, bestScore, StatusSuggested
	default:
		return "", bestScore, StatusUnknown
	}
}

// Cosine returns the cosine similarity of two vectors of equal length.
// For unit-norm vectors this is the plain dot product. Mismatched lengths
// score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
