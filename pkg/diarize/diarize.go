// Package diarize provides speaker diarization and voice embedding for
// complete recordings.
//
// A [Model] turns a recording into speaker-attributed time segments and
// computes speaker embeddings for arbitrary windows of it. Models are
// expensive to load and may be remote, so the [Adapter] wraps a model
// loader with single-load semantics and a failure cache: a missing
// capability is permanent and never retried, while auth/network failures
// are retried after a cooldown window.
//
// # Audio Requirements
//
//   - Format: PCM16 signed little-endian
//   - Sample rate: 16000 Hz
//   - Channels: 1 (mono)
//
// Speaker labels in segments ("SPEAKER_00", "SPEAKER_01", ...) are
// per-recording tokens, not durable identities. Durable identities live in
// pkg/voicedb.
package diarize

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Segment is one speaker-attributed stretch of a recording.
type Segment struct {
	// Speaker is the per-recording speaker label (e.g., "SPEAKER_00").
	Speaker string `json:"speaker"`

	// Start is the segment start offset from the beginning of the recording.
	Start time.Duration `json:"start"`

	// End is the segment end offset.
	End time.Duration `json:"end"`
}

// Dur returns the segment duration.
func (s Segment) Dur() time.Duration {
	return s.End - s.Start
}

// Model performs diarization and embedding extraction.
//
// Implementations must be safe for concurrent use; multiple recordings may
// be processed at once.
type Model interface {
	// Diarize partitions a complete recording (PCM16 16kHz mono) into
	// speaker-attributed segments.
	Diarize(ctx context.Context, audio []byte) ([]Segment, error)

	// Embed computes a unit-norm speaker embedding for the given window
	// of the recording.
	Embed(ctx context.Context, audio []byte, start, end time.Duration) ([]float32, error)

	// Close releases model resources.
	Close() error
}

// ErrModelUnavailable is the sentinel wrapped by all model-load failures.
var ErrModelUnavailable = errors.New("diarize: model unavailable")

// UnavailableError reports why the model could not be loaded and whether
// the condition is permanent.
type UnavailableError struct {
	// Permanent is true for missing-capability failures that will never
	// succeed without a redeploy (model files absent, backend not linked).
	// False for auth/network/timeout failures which may clear on their own.
	Permanent bool

	// Err is the underlying cause.
	Err error
}

func (e *UnavailableError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("diarize: model unavailable (%s): %v", kind, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause, so
// errors.Is works against either.
func (e *UnavailableError) Unwrap() []error { return []error{ErrModelUnavailable, e.Err} }

// Permanent wraps err as a permanent model-load failure.
func Permanent(err error) error {
	return &UnavailableError{Permanent: true, Err: err}
}

// Transient wraps err as a transient model-load failure.
func Transient(err error) error {
	return &UnavailableError{Permanent: false, Err: err}
}

// IsPermanent reports whether err is a permanent model-load failure.
func IsPermanent(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && ue.Permanent
}
