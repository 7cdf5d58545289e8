// Package pipeline runs a recording through diarization, speaker
// matching, and the human confirmation loop, producing a per-speaker
// report.
//
// The flow per recording: decode and resample to 16 kHz mono, diarize,
// then for each diarized speaker embed the longest turn and match it
// against the enrolled voice database. Speakers the matcher cannot place
// get a voice clip cut from their turns and sent out as an
// identification question. One speaker failing never aborts the
// recording; the failure is logged and that speaker is reported as
// unidentifiable.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/earshothq/earshot/pkg/audio/pcm"
	"github.com/earshothq/earshot/pkg/audio/resampler"
	"github.com/earshothq/earshot/pkg/audio/wav"
	"github.com/earshothq/earshot/pkg/diarize"
	"github.com/earshothq/earshot/pkg/session"
	"github.com/earshothq/earshot/pkg/slicer"
	"github.com/earshothq/earshot/pkg/voicedb"
)

// Diarizer is the model surface the pipeline needs. *diarize.Adapter
// implements it.
type Diarizer interface {
	Diarize(ctx context.Context, audio []byte) ([]diarize.Segment, error)
	Embed(ctx context.Context, audio []byte, start, end time.Duration) ([]float32, error)
}

// Status is the per-speaker outcome of a pipeline run.
type Status int

const (
	// StatusUnidentifiable means no match and no usable clip, or a
	// per-speaker failure along the way.
	StatusUnidentifiable Status = iota

	// StatusAsked means a clip went out and a question is pending.
	StatusAsked

	// StatusSuggested means the matcher found a likely but unconfirmed
	// candidate.
	StatusSuggested

	// StatusIdentified means the matcher placed the speaker outright.
	StatusIdentified
)

func (s Status) String() string {
	switch s {
	case StatusIdentified:
		return "identified"
	case StatusSuggested:
		return "suggested"
	case StatusAsked:
		return "asked"
	case StatusUnidentifiable:
		return "unidentifiable"
	default:
		return "Status(?)"
	}
}

// SpeakerResult is the outcome for one diarized speaker label.
type SpeakerResult struct {
	Speaker string
	Status  Status

	// PersonID and PersonName are set for identified and suggested.
	PersonID   string
	PersonName string

	// Score is the best cosine similarity against the database.
	Score float32

	// Tier is the clip confidence tier when Status is StatusAsked.
	Tier slicer.Tier

	// Speech is the speaker's total diarized speech time.
	Speech time.Duration

	// Err carries the per-speaker failure for unidentifiable outcomes.
	Err error
}

// Report summarizes one recording.
type Report struct {
	Recording string
	Duration  time.Duration
	Speakers  []SpeakerResult
}

// Pipeline wires the stages together. Construct with New; the exported
// fields can be adjusted before the first Process call.
type Pipeline struct {
	// Matcher scores probes. The zero value uses default thresholds.
	Matcher voicedb.Matcher

	// Slicer cuts confirmation clips. Nil means slicer.New().
	Slicer *slicer.Slicer

	// Logger receives per-speaker failures. Nil means slog.Default.
	Logger *slog.Logger

	model   Diarizer
	people  *voicedb.Store
	session *session.Session
}

// New returns a Pipeline using model for diarization and embeddings,
// people for matching and sess for the confirmation loop.
func New(model Diarizer, people *voicedb.Store, sess *session.Session) *Pipeline {
	return &Pipeline{
		model:   model,
		people:  people,
		session: sess,
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) slicer() *slicer.Slicer {
	if p.Slicer != nil {
		return p.Slicer
	}
	return slicer.New()
}

// Process runs the recording at path through the pipeline.
//
// Cancellation is honored between speakers: the returned Report keeps
// every outcome decided before the context fired, alongside the context
// error.
func (p *Pipeline) Process(ctx context.Context, path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read recording: %w", err)
	}
	format, data, err := wav.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode %s: %w", path, err)
	}
	audio, err := resampler.Convert(data,
		resampler.Format{SampleRate: format.SampleRate, Stereo: format.Channels == 2},
		resampler.Model16KMono)
	if err != nil {
		return nil, fmt.Errorf("pipeline: resample %s: %w", path, err)
	}

	ref := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	report := &Report{
		Recording: ref,
		Duration:  pcm.L16Mono16K.Duration(int64(len(audio))),
	}

	segments, err := p.model.Diarize(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("pipeline: diarize %s: %w", ref, err)
	}
	if len(segments) == 0 {
		return report, nil
	}

	turns := groupBySpeaker(segments)
	labels := make([]string, 0, len(turns))
	for label := range turns {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	centroids, err := p.people.Centroids(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load centroids: %w", err)
	}

	type askJob struct {
		result *SpeakerResult
		probe  []float32
	}
	var jobs []askJob

	// Full capacity up front: jobs hold pointers into this slice, so it
	// must not reallocate while speakers are appended.
	report.Speakers = make([]SpeakerResult, 0, len(labels))

	for _, label := range labels {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		res := SpeakerResult{Speaker: label, Speech: totalSpeech(turns[label])}

		longest := longestTurn(turns[label])
		probe, err := p.model.Embed(ctx, audio, longest.Start, longest.End)
		if err != nil {
			p.logger().Warn("pipeline: embedding failed",
				"recording", ref, "speaker", label, "err", err)
			res.Err = err
			report.Speakers = append(report.Speakers, res)
			continue
		}

		id, score, status := p.Matcher.Match(voicedb.Normalize(probe), centroids)
		res.Score = score
		switch status {
		case voicedb.StatusIdentified, voicedb.StatusSuggested:
			person, err := p.people.Get(ctx, id)
			if err != nil {
				p.logger().Warn("pipeline: matched person missing",
					"recording", ref, "person", id, "err", err)
				res.Err = err
				report.Speakers = append(report.Speakers, res)
				continue
			}
			res.PersonID = person.ID
			res.PersonName = person.Name
			if status == voicedb.StatusIdentified {
				res.Status = StatusIdentified
			} else {
				res.Status = StatusSuggested
			}
			report.Speakers = append(report.Speakers, res)
		default:
			report.Speakers = append(report.Speakers, res)
			jobs = append(jobs, askJob{
				result: &report.Speakers[len(report.Speakers)-1],
				probe:  probe,
			})
		}
	}

	// Unknown speakers are sliced concurrently. Each goroutine reads the
	// shared audio and turn data and writes only its own result slot.
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job askJob) {
			defer wg.Done()
			label := job.result.Speaker
			clip := p.slicer().Slice(audio, turns[label], othersOf(segments, label))
			if clip == nil {
				p.logger().Info("pipeline: no usable clip",
					"recording", ref, "speaker", label)
				return
			}
			if err := p.session.Ask(ctx, clip, job.probe, label, ref); err != nil {
				p.logger().Warn("pipeline: question not sent",
					"recording", ref, "speaker", label, "err", err)
				job.result.Err = err
				return
			}
			job.result.Status = StatusAsked
			job.result.Tier = clip.Tier
		}(job)
	}
	wg.Wait()

	return report, ctx.Err()
}

func groupBySpeaker(segments []diarize.Segment) map[string][]diarize.Segment {
	turns := make(map[string][]diarize.Segment)
	for _, seg := range segments {
		turns[seg.Speaker] = append(turns[seg.Speaker], seg)
	}
	return turns
}

func othersOf(segments []diarize.Segment, speaker string) []diarize.Segment {
	others := make([]diarize.Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.Speaker != speaker {
			others = append(others, seg)
		}
	}
	return others
}

func longestTurn(turns []diarize.Segment) diarize.Segment {
	best := turns[0]
	for _, t := range turns[1:] {
		if t.Dur() > best.Dur() {
			best = t
		}
	}
	return best
}

func totalSpeech(turns []diarize.Segment) time.Duration {
	var total time.Duration
	for _, t := range turns {
		total += t.Dur()
	}
	return total
}
