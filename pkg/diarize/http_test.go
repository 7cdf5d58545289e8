package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/earshothq/earshot/pkg/audio/wav"
)

// modelHost is a fake model host. Each handler receives the parsed
// multipart request so tests can assert the wire shape.
type modelHost struct {
	diarize func(t *testing.T, r *http.Request) any
	embed   func(t *testing.T, r *http.Request) any
}

func (h *modelHost) serve(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/diarize", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(h.diarize(t, r))
	})
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(h.embed(t, r))
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// formFile parses the multipart body and returns the uploaded file bytes.
func formFile(t *testing.T, r *http.Request) []byte {
	t.Helper()
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		t.Fatalf("FormFile: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read file part: %v", err)
	}
	return data
}

func loadModel(t *testing.T, url string) Model {
	t.Helper()
	m, err := NewHTTPLoader(url, nil)(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

func TestHTTPModelDiarizeWireShape(t *testing.T) {
	// 100ms of PCM16 16kHz mono with a recognizable first sample.
	pcm := make([]byte, 3200)
	pcm[0], pcm[1] = 0x34, 0x12

	host := &modelHost{
		diarize: func(t *testing.T, r *http.Request) any {
			upload := formFile(t, r)
			format, data, err := wav.Decode(bytes.NewReader(upload))
			if err != nil {
				t.Fatalf("uploaded file is not WAV: %v", err)
			}
			if format.SampleRate != 16000 || format.Channels != 1 {
				t.Fatalf("format = %+v, want 16kHz mono", format)
			}
			// The data chunk must be the caller's samples, not a
			// second WAV container wrapped inside the first.
			if bytes.HasPrefix(data, []byte("RIFF")) {
				t.Fatalf("data chunk starts with a nested RIFF header")
			}
			if !bytes.Equal(data, pcm) {
				t.Fatalf("data chunk differs from input PCM (len %d vs %d)", len(data), len(pcm))
			}
			return map[string]any{"segments": []map[string]any{
				{"speaker": "SPEAKER_00", "start": 0.0, "end": 1.5},
				{"speaker": "SPEAKER_01", "start": 1.5, "end": 2.25},
			}}
		},
	}
	s := host.serve(t)

	segs, err := loadModel(t, s.URL).Diarize(context.Background(), pcm)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	want := []Segment{
		{Speaker: "SPEAKER_00", Start: 0, End: 1500 * time.Millisecond},
		{Speaker: "SPEAKER_01", Start: 1500 * time.Millisecond, End: 2250 * time.Millisecond},
	}
	if len(segs) != len(want) {
		t.Fatalf("got %d segments, want %d", len(segs), len(want))
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Fatalf("segment %d = %+v, want %+v", i, segs[i], want[i])
		}
	}
}

func TestHTTPModelEmbedSendsWindow(t *testing.T) {
	pcm := make([]byte, 6400)

	host := &modelHost{
		embed: func(t *testing.T, r *http.Request) any {
			upload := formFile(t, r)
			if _, data, err := wav.Decode(bytes.NewReader(upload)); err != nil {
				t.Fatalf("uploaded file is not WAV: %v", err)
			} else if !bytes.Equal(data, pcm) {
				t.Fatalf("data chunk differs from input PCM")
			}
			if got := r.FormValue("start_ms"); got != "1500" {
				t.Fatalf("start_ms = %q, want 1500", got)
			}
			if got := r.FormValue("end_ms"); got != "4000" {
				t.Fatalf("end_ms = %q, want 4000", got)
			}
			return map[string]any{"embedding": []float32{0.6, 0.8}}
		},
	}
	s := host.serve(t)

	vec, err := loadModel(t, s.URL).Embed(context.Background(), pcm,
		1500*time.Millisecond, 4*time.Second)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.6 || vec[1] != 0.8 {
		t.Fatalf("embedding = %v, want [0.6 0.8]", vec)
	}
}

func TestHTTPModelErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/diarize", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)

	_, err := loadModel(t, s.URL).Diarize(context.Background(), make([]byte, 320))
	if err == nil {
		t.Fatal("Diarize: want error on 500")
	}
	if !strings.Contains(err.Error(), "model crashed") {
		t.Fatalf("error %q does not carry the host message", err)
	}
}

func TestHTTPLoaderClassifiesProbe(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusNotFound, true},
		{http.StatusNotImplemented, true},
		{http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(s.Close)

			_, err := NewHTTPLoader(s.URL, nil)(context.Background())
			var ue *UnavailableError
			if !errors.As(err, &ue) {
				t.Fatalf("err = %v, want *UnavailableError", err)
			}
			if ue.Permanent != tt.permanent {
				t.Fatalf("Permanent = %v, want %v", ue.Permanent, tt.permanent)
			}
		})
	}
}
