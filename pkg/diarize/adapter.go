package diarize

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultCooldown is how long a transient load failure is cached before
// the next load attempt is allowed.
const DefaultCooldown = 120 * time.Second

// DefaultCallTimeout bounds a single Diarize or Embed call.
const DefaultCallTimeout = 5 * time.Minute

// Loader constructs a Model. It is called at most once at a time, on first
// use, and again only after a transient failure's cooldown expires.
type Loader func(ctx context.Context) (Model, error)

// Adapter wraps a model Loader with lazy single-load semantics, failure
// caching, and per-call timeouts.
//
// A successfully loaded model stays resident for the adapter's lifetime.
// A permanent load failure is cached forever; a transient one is cached
// until Cooldown elapses, so a flapping model host is probed at most once
// per cooldown window instead of once per recording.
type Adapter struct {
	// Cooldown overrides DefaultCooldown when positive.
	Cooldown time.Duration

	// CallTimeout overrides DefaultCallTimeout when positive.
	CallTimeout time.Duration

	// Logger receives load state changes. Defaults to slog.Default().
	Logger *slog.Logger

	load Loader

	mu        sync.Mutex
	model     Model
	permErr   error
	lastErr   error
	retryAt   time.Time
	now       func() time.Time // test hook
}

// NewAdapter creates an Adapter around the given loader.
func NewAdapter(load Loader) *Adapter {
	return &Adapter{load: load, now: time.Now}
}

func (a *Adapter) cooldown() time.Duration {
	if a.Cooldown > 0 {
		return a.Cooldown
	}
	return DefaultCooldown
}

func (a *Adapter) callTimeout() time.Duration {
	if a.CallTimeout > 0 {
		return a.CallTimeout
	}
	return DefaultCallTimeout
}

func (a *Adapter) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// acquire returns the loaded model, loading it if allowed.
// The load itself runs under the lock: concurrent first use must trigger
// exactly one load attempt.
func (a *Adapter) acquire(ctx context.Context) (Model, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.model != nil {
		return a.model, nil
	}
	if a.permErr != nil {
		return nil, a.permErr
	}
	if !a.retryAt.IsZero() && a.now().Before(a.retryAt) {
		return nil, a.lastErr
	}

	m, err := a.load(ctx)
	if err != nil {
		// Unclassified errors (including ctx timeout) count as transient.
		var ue *UnavailableError
		if !errors.As(err, &ue) {
			err = Transient(err)
			errors.As(err, &ue)
		}
		if ue.Permanent {
			a.permErr = err
			a.logger().Error("model load failed permanently", "err", err)
		} else {
			a.lastErr = err
			a.retryAt = a.now().Add(a.cooldown())
			a.logger().Warn("model load failed, cooling down",
				"err", err, "retry_at", a.retryAt)
		}
		return nil, err
	}

	a.model = m
	a.retryAt = time.Time{}
	a.lastErr = nil
	a.logger().Info("diarization model loaded")
	return m, nil
}

// Diarize partitions a recording into speaker segments.
func (a *Adapter) Diarize(ctx context.Context, audio []byte) ([]Segment, error) {
	m, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout())
	defer cancel()
	segs, err := m.Diarize(ctx, audio)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, Transient(err)
	}
	return segs, err
}

// Embed computes a speaker embedding for a window of the recording.
func (a *Adapter) Embed(ctx context.Context, audio []byte, start, end time.Duration) ([]float32, error) {
	m, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout())
	defer cancel()
	vec, err := m.Embed(ctx, audio, start, end)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, Transient(err)
	}
	return vec, err
}

// Close releases the loaded model, if any.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.model == nil {
		return nil
	}
	err := a.model.Close()
	a.model = nil
	return err
}
