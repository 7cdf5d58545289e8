// Package session tracks identification questions that are waiting on a
// human answer.
//
// When the pipeline cannot identify a speaker it sends a voice clip to a
// chat channel and asks who is talking. The answer can arrive seconds or
// days later, possibly after the process has restarted. Session keeps one
// Pending record per outstanding question, addressable by every message
// key the channel assigned to the question, and mirrors each record to a
// durable kv store so Load can rebuild the map after a crash.
//
// The in-memory map is authoritative. If a kv write fails the session
// keeps serving from memory and logs the durability gap; only a crash in
// that window loses the record.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/earshothq/earshot/pkg/kv"
	"github.com/earshothq/earshot/pkg/msgr"
	"github.com/earshothq/earshot/pkg/slicer"
	"github.com/earshothq/earshot/pkg/storage"
	"github.com/earshothq/earshot/pkg/voicedb"
)

// DefaultTTL is how long a question stays open before Sweep discards it.
const DefaultTTL = 10 * time.Minute

// Pending is one outstanding identification question. The same record is
// stored under every message key in Keys, so a reply to either the clip
// or its caption resolves the whole set.
type Pending struct {
	Keys         []string  `msgpack:"keys"`
	Speaker      string    `msgpack:"speaker"`
	RecordingRef string    `msgpack:"recording_ref"`
	ClipPath     string    `msgpack:"clip_path"`
	Tier         string    `msgpack:"tier"`
	Probe        []float32 `msgpack:"probe"`
	CreatedAt    time.Time `msgpack:"created_at"`
}

// Session is the confirmation state machine. Safe for concurrent use.
type Session struct {
	// TTL is the maximum age of a pending question. Zero means DefaultTTL.
	TTL time.Duration

	// Logger receives durability warnings. Nil means slog.Default.
	Logger *slog.Logger

	store  kv.Store
	files  storage.FileStore
	msgr   msgr.Messenger
	people *voicedb.Store

	mu      sync.Mutex
	pending map[string]*Pending

	now func() time.Time
}

// New returns a Session persisting to store, writing clips to files,
// talking to humans through m, and enrolling confirmed voices in people.
func New(store kv.Store, files storage.FileStore, m msgr.Messenger, people *voicedb.Store) *Session {
	return &Session{
		store:   store,
		files:   files,
		msgr:    m,
		people:  people,
		pending: make(map[string]*Pending),
		now:     time.Now,
	}
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Session) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}

func pendingKey(key string) kv.Key { return kv.Key{"pending", key} }

// Load rebuilds the pending map from the kv store. Entries past the TTL
// are dropped and their kv records removed. Call once at startup, before
// inbound replies are routed in.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []kv.Key
	cutoff := s.now().Add(-s.ttl())
	for entry, err := range s.store.List(ctx, kv.Key{"pending"}) {
		if err != nil {
			return fmt.Errorf("session: load pending: %w", err)
		}
		var rec Pending
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			s.logger().Warn("session: dropping undecodable pending record",
				"key", entry.Key.String(), "err", err)
			stale = append(stale, entry.Key)
			continue
		}
		if rec.CreatedAt.Before(cutoff) {
			stale = append(stale, entry.Key)
			continue
		}
		key := entry.Key[len(entry.Key)-1]
		// Sibling keys share one record in memory, as they did before
		// the restart.
		if prev := s.sibling(&rec); prev != nil {
			s.pending[key] = prev
		} else {
			s.pending[key] = &rec
		}
	}

	if len(stale) > 0 {
		if err := s.store.BatchDelete(ctx, stale); err != nil {
			s.logger().Warn("session: purge of stale pending records failed", "err", err)
		}
	}
	s.logger().Info("session: recovered pending questions", "records", len(s.pending))
	return nil
}

// sibling returns the already-loaded record sharing a key with rec, if any.
// Caller holds s.mu.
func (s *Session) sibling(rec *Pending) *Pending {
	for _, k := range rec.Keys {
		if prev, ok := s.pending[k]; ok {
			return prev
		}
	}
	return nil
}

// Ask stores the clip, sends it with a question caption, and registers
// every message key the channel acked. A second Ask for the same
// (recording, speaker) replaces the earlier question.
func (s *Session) Ask(ctx context.Context, clip *slicer.Clip, probe []float32, speaker, recordingRef string) error {
	if clip == nil || len(clip.WAV) == 0 {
		return errors.New("session: empty clip")
	}

	clipPath := path.Join("clips", recordingRef, speaker+".wav")
	if err := storage.WriteAll(ctx, s.files, clipPath, clip.WAV); err != nil {
		return fmt.Errorf("session: store clip: %w", err)
	}

	caption := fmt.Sprintf(
		"Who is speaking in this clip? (recording %s, speaker %s) Reply to this message with their name.",
		recordingRef, speaker)
	keys, err := s.msgr.SendClip(ctx, clip.WAV, caption)
	if err != nil {
		// No pending record will reference the clip, so the sweep
		// would never reclaim it.
		if derr := s.files.Delete(ctx, clipPath); derr != nil {
			s.logger().Warn("session: orphaned clip not deleted", "path", clipPath, "err", derr)
		}
		return fmt.Errorf("session: send clip: %w", err)
	}

	rec := &Pending{
		Keys:         keys,
		Speaker:      speaker,
		RecordingRef: recordingRef,
		ClipPath:     clipPath,
		Tier:         string(clip.Tier),
		Probe:        probe,
		CreatedAt:    s.now().UTC(),
	}

	s.mu.Lock()
	s.dropMatchingLocked(ctx, func(p *Pending) bool {
		return p.RecordingRef == recordingRef && p.Speaker == speaker
	})
	for _, k := range keys {
		s.pending[k] = rec
	}
	s.mu.Unlock()

	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode pending: %w", err)
	}
	entries := make([]kv.Entry, len(keys))
	for i, k := range keys {
		entries[i] = kv.Entry{Key: pendingKey(k), Value: raw}
	}
	if err := s.store.BatchSet(ctx, entries); err != nil {
		s.logger().Warn("session: pending record not persisted, a restart will lose it",
			"recording", recordingRef, "speaker", speaker, "err", err)
	}
	return nil
}

// HandleReply resolves an inbound reply against the pending map.
//
// It reports handled=false when the reply does not reference an open
// question, which includes the second delivery of an already-confirmed
// answer. A blank reply keeps the question open and asks for
// clarification. A name enrolls the stored probe embedding and closes
// the question under all of its keys.
func (s *Session) HandleReply(ctx context.Context, in msgr.Inbound) (bool, error) {
	s.mu.Lock()
	rec, ok := s.pending[in.RepliedTo]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}

	name := strings.TrimSpace(in.Text)
	if name == "" {
		s.mu.Unlock()
		err := s.msgr.SendText(ctx, fmt.Sprintf(
			"I could not read a name in that reply. Who is speaking in the clip for speaker %s?",
			rec.Speaker))
		return true, err
	}

	person, err := s.people.Enroll(ctx, name, rec.Probe, rec.ClipPath)
	if err != nil {
		// Enrollment failed; keep the question open so the human can
		// answer again once the store recovers.
		s.mu.Unlock()
		return true, fmt.Errorf("session: enroll %q: %w", name, err)
	}
	s.removeLocked(ctx, rec)
	s.mu.Unlock()

	s.logger().Info("session: speaker confirmed",
		"person", person.ID, "name", person.Name,
		"recording", rec.RecordingRef, "speaker", rec.Speaker)
	if err := s.msgr.SendText(ctx, fmt.Sprintf("Thanks, saved that voice as %s.", person.Name)); err != nil {
		s.logger().Warn("session: confirmation text failed", "err", err)
	}
	return true, nil
}

// Sweep drops questions older than the TTL and deletes their clips.
// Stale questions vanish silently; the human simply never hears back.
func (s *Session) Sweep(ctx context.Context) int {
	s.mu.Lock()
	cutoff := s.now().Add(-s.ttl())
	dropped := s.dropMatchingLocked(ctx, func(p *Pending) bool {
		return p.CreatedAt.Before(cutoff)
	})
	s.mu.Unlock()

	for _, rec := range dropped {
		if err := s.files.Delete(ctx, rec.ClipPath); err != nil {
			s.logger().Warn("session: expired clip not deleted", "path", rec.ClipPath, "err", err)
		}
		s.logger().Info("session: question expired",
			"recording", rec.RecordingRef, "speaker", rec.Speaker, "age", s.now().Sub(rec.CreatedAt))
	}
	return len(dropped)
}

// Len reports the number of open questions (distinct records).
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[*Pending]struct{})
	for _, rec := range s.pending {
		seen[rec] = struct{}{}
	}
	return len(seen)
}

// dropMatchingLocked removes every record matching the predicate from
// memory and kv, returning the distinct records removed. Caller holds s.mu.
func (s *Session) dropMatchingLocked(ctx context.Context, match func(*Pending) bool) []*Pending {
	var dropped []*Pending
	seen := make(map[*Pending]struct{})
	for _, rec := range s.pending {
		if _, done := seen[rec]; done || !match(rec) {
			continue
		}
		seen[rec] = struct{}{}
		s.removeLocked(ctx, rec)
		dropped = append(dropped, rec)
	}
	return dropped
}

// removeLocked deletes rec under all of its keys. Caller holds s.mu.
func (s *Session) removeLocked(ctx context.Context, rec *Pending) {
	keys := make([]kv.Key, 0, len(rec.Keys))
	for _, k := range rec.Keys {
		delete(s.pending, k)
		keys = append(keys, pendingKey(k))
	}
	if err := s.store.BatchDelete(ctx, keys); err != nil {
		s.logger().Warn("session: pending record not removed from store, "+
			"a restart may resurrect it briefly", "keys", rec.Keys, "err", err)
	}
}
