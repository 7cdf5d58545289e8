package slicer

import (
	"testing"
	"time"

	"github.com/earshothq/earshot/pkg/diarize"
)

func TestBridgeGaps(t *testing.T) {
	tests := []struct {
		name      string
		in        []bool
		tolerance int
		want      []bool
	}{
		{
			name:      "bridges short gap",
			in:        []bool{true, false, false, true},
			tolerance: 2,
			want:      []bool{true, true, true, true},
		},
		{
			name:      "leaves long gap",
			in:        []bool{true, false, false, false, true},
			tolerance: 2,
			want:      []bool{true, false, false, false, true},
		},
		{
			name:      "leading silence untouched",
			in:        []bool{false, false, true, true},
			tolerance: 3,
			want:      []bool{false, false, true, true},
		},
		{
			name:      "trailing silence untouched",
			in:        []bool{true, true, false, false},
			tolerance: 3,
			want:      []bool{true, true, false, false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bridgeGaps(tt.in, tt.tolerance)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("frame %d = %v, want %v (got %v)", i, got[i], tt.want[i], got)
				}
			}
			// Input must not be mutated.
			if &got[0] == &tt.in[0] {
				t.Fatal("bridgeGaps returned the input slice")
			}
		})
	}
}

func TestBestCluster(t *testing.T) {
	frameLen := 480 // 30ms at 16kHz

	// Two clusters: frames 0-9 (10 frames, all speech) and 20-49
	// (30 frames, all speech). Both pass; the longer one must win.
	raw := make([]bool, 60)
	for i := 0; i < 10; i++ {
		raw[i] = true
	}
	for i := 20; i < 50; i++ {
		raw[i] = true
	}
	got := bestCluster(raw, raw, frameLen, 5*frameLen, 0.4)
	if got == nil {
		t.Fatal("no cluster found")
	}
	if got.from != 20 || got.to != 50 {
		t.Fatalf("cluster = [%d,%d), want [20,50)", got.from, got.to)
	}
	if got.ratio != 1.0 {
		t.Fatalf("ratio = %v, want 1.0", got.ratio)
	}
}

func TestBestClusterRatioFilter(t *testing.T) {
	frameLen := 480

	// Smoothing bridged a sparse region: smoothed says one long cluster
	// but only 3 of 10 raw frames are speech. Ratio 0.3 < 0.4 → rejected.
	raw := []bool{true, false, false, true, false, false, false, true, false, false}
	smoothed := make([]bool, len(raw))
	for i := range smoothed {
		smoothed[i] = true
	}
	if got := bestCluster(raw, smoothed, frameLen, 2*frameLen, 0.4); got != nil {
		t.Fatalf("low-ratio cluster should be rejected, got %+v", got)
	}
}

func TestExpandWindowCenters(t *testing.T) {
	sec := time.Second
	tests := []struct {
		name                 string
		start, end           time.Duration
		target, total        time.Duration
		wantStart, wantEnd   time.Duration
	}{
		{"grow symmetric", 10 * sec, 12 * sec, 6 * sec, 60 * sec, 8 * sec, 14 * sec},
		{"trim long window", 0, 20 * sec, 6 * sec, 60 * sec, 7 * sec, 13 * sec},
		{"clamp at start", 0, 2 * sec, 6 * sec, 60 * sec, 0, 6 * sec},
		{"clamp at end", 58 * sec, 60 * sec, 6 * sec, 60 * sec, 54 * sec, 60 * sec},
		{"short recording", 0, 1 * sec, 6 * sec, 3 * sec, 0, 3 * sec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e := expandWindow(tt.start, tt.end, tt.target, tt.total)
			if s != tt.wantStart || e != tt.wantEnd {
				t.Fatalf("expandWindow = [%v,%v], want [%v,%v]", s, e, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestAvoidOthers(t *testing.T) {
	sec := time.Second
	margin := 250 * time.Millisecond

	others := []diarize.Segment{
		{Speaker: "B", Start: 3 * sec, End: 5 * sec},
	}

	// Window [0,10s] split by B at [2.75,5.25]: free gaps [0,2.75] and
	// [5.25,10]. The second is longer.
	s, e, ok := avoidOthers(0, 10*sec, others, margin)
	if !ok {
		t.Fatal("expected a free interval")
	}
	if s != 5*sec+margin || e != 10*sec {
		t.Fatalf("free interval = [%v,%v], want [5.25s,10s]", s, e)
	}

	// Fully covered window → no interval.
	_, _, ok = avoidOthers(3*sec, 5*sec, others, margin)
	if ok {
		t.Fatal("expected no free interval inside a competing turn")
	}

	// No competitors → unchanged.
	s, e, ok = avoidOthers(1*sec, 2*sec, nil, margin)
	if !ok || s != 1*sec || e != 2*sec {
		t.Fatalf("unchanged window = [%v,%v,%v]", s, e, ok)
	}
}
