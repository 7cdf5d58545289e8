package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/earshothq/earshot/pkg/audio/wav"
)

// HTTPModel talks to an external model host over JSON/HTTP.
//
// Endpoints:
//
//	GET  /healthz          → 200 when both models are loaded
//	POST /diarize          → multipart "file" (WAV) → {"segments": [...]}
//	POST /embed            → multipart "file" (WAV) + "start_ms"/"end_ms"
//	                         → {"embedding": [...]}
//
// The host owns the acoustic models; this client only moves audio and JSON.
type HTTPModel struct {
	base   string
	client *http.Client
}

// NewHTTPLoader returns a Loader that probes the model host's health
// endpoint and, on success, returns an HTTPModel. A 404 or 501 from the
// probe means the host lacks the capability entirely (permanent); network
// errors and non-OK statuses are transient.
func NewHTTPLoader(baseURL string, client *http.Client) Loader {
	if client == nil {
		client = defaultHTTPClient()
	}
	base := strings.TrimRight(baseURL, "/")
	return func(ctx context.Context) (Model, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
		if err != nil {
			return nil, Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, Transient(err)
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
			return &HTTPModel{base: base, client: client}, nil
		case resp.StatusCode == http.StatusNotFound ||
			resp.StatusCode == http.StatusNotImplemented:
			return nil, Permanent(fmt.Errorf("model host has no diarization capability: %s", resp.Status))
		default:
			return nil, Transient(fmt.Errorf("model host not ready: %s", resp.Status))
		}
	}
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 2 * time.Minute,
			}).DialContext,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     2 * time.Minute,
		},
	}
}

type diarizeResponse struct {
	Segments []struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"segments"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Diarize implements Model.
func (m *HTTPModel) Diarize(ctx context.Context, audio []byte) ([]Segment, error) {
	body, contentType, err := audioForm(audio, nil)
	if err != nil {
		return nil, err
	}
	var out diarizeResponse
	if err := m.post(ctx, "/diarize", body, contentType, &out); err != nil {
		return nil, err
	}
	segs := make([]Segment, len(out.Segments))
	for i, s := range out.Segments {
		segs[i] = Segment{
			Speaker: s.Speaker,
			Start:   time.Duration(s.Start * float64(time.Second)),
			End:     time.Duration(s.End * float64(time.Second)),
		}
	}
	return segs, nil
}

// Embed implements Model.
func (m *HTTPModel) Embed(ctx context.Context, audio []byte, start, end time.Duration) ([]float32, error) {
	body, contentType, err := audioForm(audio, map[string]string{
		"start_ms": strconv.FormatInt(start.Milliseconds(), 10),
		"end_ms":   strconv.FormatInt(end.Milliseconds(), 10),
	})
	if err != nil {
		return nil, err
	}
	var out embedResponse
	if err := m.post(ctx, "/embed", body, contentType, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// Close implements Model. The HTTP client keeps no per-model state.
func (m *HTTPModel) Close() error { return nil }

func (m *HTTPModel) post(ctx context.Context, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("diarize: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("diarize: %s %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("diarize: decode %s response: %w", path, err)
	}
	return nil
}

// audioForm builds a multipart body carrying the PCM16 16kHz mono audio
// as a WAV file plus any extra form fields.
func audioForm(audio []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "recording.wav")
	if err != nil {
		return nil, "", err
	}
	if err := wav.Encode(fw, wav.Format{SampleRate: 16000, Channels: 1}, audio); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
