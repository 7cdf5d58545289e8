package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/earshothq/earshot/pkg/kv"
	"github.com/earshothq/earshot/pkg/msgr"
	"github.com/earshothq/earshot/pkg/slicer"
	"github.com/earshothq/earshot/pkg/storage"
	"github.com/earshothq/earshot/pkg/voicedb"
)

type fixture struct {
	kv     kv.Store
	files  storage.FileStore
	chat   *msgr.ChanMessenger
	people *voicedb.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	store := kv.NewMemory(nil)
	return &fixture{
		kv:     store,
		files:  files,
		chat:   &msgr.ChanMessenger{},
		people: voicedb.NewStore(store),
	}
}

func (f *fixture) session() *Session {
	return New(f.kv, f.files, f.chat, f.people)
}

func testClip() *slicer.Clip {
	return &slicer.Clip{
		WAV:  []byte("RIFF fake wav payload"),
		End:  6 * time.Second,
		Tier: slicer.TierVADHigh,
	}
}

func testProbe() []float32 { return []float32{0.6, 0.8} }

func TestAskSendsClipWithCaption(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	if err := s.Ask(ctx, testClip(), testProbe(), "SPEAKER_01", "rec_42"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(f.chat.Clips) != 1 {
		t.Fatalf("clips sent = %d, want 1", len(f.chat.Clips))
	}
	c := f.chat.Clips[0]
	if !strings.Contains(c.Caption, "rec_42") || !strings.Contains(c.Caption, "SPEAKER_01") {
		t.Errorf("caption %q missing recording or speaker ref", c.Caption)
	}
	if len(c.Keys) != 2 {
		t.Fatalf("message keys = %d, want 2", len(c.Keys))
	}
	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	// The clip is stored for later review.
	data, err := storage.ReadAll(ctx, f.files, "clips/rec_42/SPEAKER_01.wav")
	if err != nil {
		t.Fatalf("stored clip unreadable: %v", err)
	}
	if string(data) != string(testClip().WAV) {
		t.Error("stored clip does not match sent clip")
	}
}

func TestReplyToEitherKeyConfirms(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	if err := s.Ask(ctx, testClip(), testProbe(), "SPEAKER_00", "rec_1"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	keys := f.chat.Clips[0].Keys

	// Replying to the caption key (the second one) works too.
	handled, err := s.HandleReply(ctx, msgr.Inbound{Text: "Dana", RepliedTo: keys[1]})
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if !handled {
		t.Fatal("reply not handled")
	}

	p, err := f.people.Resolve(ctx, "dana")
	if err != nil {
		t.Fatalf("Resolve after confirm: %v", err)
	}
	if len(p.Profiles) != 1 {
		t.Fatalf("profiles = %d, want 1", len(p.Profiles))
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after confirm, want 0", s.Len())
	}
	if len(f.chat.Texts) != 1 || !strings.Contains(f.chat.Texts[0], "Dana") {
		t.Errorf("confirmation texts = %v", f.chat.Texts)
	}

	// Second delivery of the same reply is a no-op.
	handled, err = s.HandleReply(ctx, msgr.Inbound{Text: "Dana", RepliedTo: keys[1]})
	if err != nil {
		t.Fatalf("duplicate HandleReply: %v", err)
	}
	if handled {
		t.Error("duplicate delivery reported handled")
	}
	p, _ = f.people.Resolve(ctx, "Dana")
	if len(p.Profiles) != 1 {
		t.Errorf("duplicate delivery enrolled a second profile: %d", len(p.Profiles))
	}
}

func TestReplyToUnknownKeyIgnored(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	handled, err := s.HandleReply(context.Background(), msgr.Inbound{Text: "Dana", RepliedTo: "msg_999"})
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if handled {
		t.Error("unrelated reply reported handled")
	}
	if len(f.chat.Texts) != 0 {
		t.Errorf("unexpected outbound texts: %v", f.chat.Texts)
	}
}

func TestBlankReplyAsksForClarification(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	if err := s.Ask(ctx, testClip(), testProbe(), "SPEAKER_00", "rec_1"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	key := f.chat.Clips[0].Keys[0]

	handled, err := s.HandleReply(ctx, msgr.Inbound{Text: "   ", RepliedTo: key})
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if !handled {
		t.Fatal("blank reply not handled")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, question should stay open", s.Len())
	}
	if len(f.chat.Texts) != 1 {
		t.Fatalf("clarification texts = %d, want 1", len(f.chat.Texts))
	}

	// The question is still answerable.
	if handled, err = s.HandleReply(ctx, msgr.Inbound{Text: "Eve", RepliedTo: key}); err != nil || !handled {
		t.Fatalf("follow-up reply: handled=%v err=%v", handled, err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after confirm, want 0", s.Len())
	}
}

func TestReaskReplacesPreviousQuestion(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	if err := s.Ask(ctx, testClip(), testProbe(), "SPEAKER_00", "rec_1"); err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	oldKey := f.chat.Clips[0].Keys[0]
	if err := s.Ask(ctx, testClip(), testProbe(), "SPEAKER_00", "rec_1"); err != nil {
		t.Fatalf("second Ask: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after re-ask", s.Len())
	}
	if handled, _ := s.HandleReply(ctx, msgr.Inbound{Text: "Dana", RepliedTo: oldKey}); handled {
		t.Error("reply to replaced question was handled")
	}
	newKey := f.chat.Clips[1].Keys[0]
	if handled, err := s.HandleReply(ctx, msgr.Inbound{Text: "Dana", RepliedTo: newKey}); err != nil || !handled {
		t.Fatalf("reply to new question: handled=%v err=%v", handled, err)
	}
}

func TestLoadRecoversAfterRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1 := f.session()
	for _, sp := range []string{"SPEAKER_00", "SPEAKER_01", "SPEAKER_02"} {
		if err := s1.Ask(ctx, testClip(), testProbe(), sp, "rec_7"); err != nil {
			t.Fatalf("Ask %s: %v", sp, err)
		}
	}
	key := f.chat.Clips[1].Keys[0]

	// New Session over the same stores stands in for a restarted process.
	s2 := f.session()
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.Len() != 3 {
		t.Fatalf("Len() after Load = %d, want 3", s2.Len())
	}

	handled, err := s2.HandleReply(ctx, msgr.Inbound{Text: "Frank", RepliedTo: key})
	if err != nil {
		t.Fatalf("HandleReply after restart: %v", err)
	}
	if !handled {
		t.Fatal("recovered question not answerable")
	}
	p, err := f.people.Resolve(ctx, "Frank")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(p.Profiles) != 1 {
		t.Fatalf("profiles = %d, want 1", len(p.Profiles))
	}
	if s2.Len() != 2 {
		t.Errorf("Len() = %d after confirm, want 2", s2.Len())
	}
}

func TestLoadDropsExpiredRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1 := f.session()
	s1.now = func() time.Time { return time.Now().Add(-time.Hour) }
	if err := s1.Ask(ctx, testClip(), testProbe(), "SPEAKER_00", "rec_old"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	s2 := f.session()
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.Len() != 0 {
		t.Errorf("Len() = %d, expired record survived restart", s2.Len())
	}
}

func TestSweepExpiresOldQuestions(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.Ask(ctx, testClip(), testProbe(), "SPEAKER_00", "rec_1"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	s.now = func() time.Time { return base.Add(5 * time.Minute) }
	if n := s.Sweep(ctx); n != 0 {
		t.Fatalf("Sweep at 5m dropped %d, want 0", n)
	}

	s.now = func() time.Time { return base.Add(11 * time.Minute) }
	if n := s.Sweep(ctx); n != 1 {
		t.Fatalf("Sweep at 11m dropped %d, want 1", n)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after sweep, want 0", s.Len())
	}
	if ok, _ := f.files.Exists(ctx, "clips/rec_1/SPEAKER_00.wav"); ok {
		t.Error("expired clip not deleted")
	}
}

func TestAskSurvivesKVWriteFailure(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	broken := &failingStore{Store: f.kv}
	s.store = broken

	if err := s.Ask(ctx, testClip(), testProbe(), "SPEAKER_00", "rec_1"); err != nil {
		t.Fatalf("Ask with failing kv: %v", err)
	}
	key := f.chat.Clips[0].Keys[0]
	if handled, err := s.HandleReply(ctx, msgr.Inbound{Text: "Dana", RepliedTo: key}); err != nil || !handled {
		t.Fatalf("memory map not authoritative: handled=%v err=%v", handled, err)
	}
}

// failingStore fails every batch write while delegating reads.
type failingStore struct {
	kv.Store
}

func (f *failingStore) BatchSet(context.Context, []kv.Entry) error {
	return errors.New("kv unavailable")
}

func (f *failingStore) BatchDelete(context.Context, []kv.Key) error {
	return errors.New("kv unavailable")
}

func TestAskDeletesClipWhenSendFails(t *testing.T) {
	f := newFixture(t)
	f.chat.FailSends = true
	s := f.session()
	ctx := context.Background()

	if err := s.Ask(ctx, testClip(), testProbe(), "SPEAKER_01", "rec_42"); err == nil {
		t.Fatal("Ask: want error when the send fails")
	}
	if got := s.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
	ok, err := f.files.Exists(ctx, "clips/rec_42/SPEAKER_01.wav")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("failed send left the clip behind")
	}
}
