package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-wabot/core/config"
)

// transcribeServer answers every request as the provider's transcription
// endpoint would, recording the multipart filename of each attempt. The
// statuses queue drives the outcome per request; after it drains the
// server answers 200.
type transcribeServer struct {
	mu        sync.Mutex
	statuses  []int
	filenames []string
	requests  int
}

func (s *transcribeServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	status := http.StatusOK
	if len(s.statuses) > 0 {
		status = s.statuses[0]
		s.statuses = s.statuses[1:]
	}
	if err := r.ParseMultipartForm(64 << 20); err == nil {
		if files := r.MultipartForm.File["file"]; len(files) > 0 {
			s.filenames = append(s.filenames, files[0].Filename)
		}
	}
	s.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":{"message":"upstream failure"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"text":"transcribed"}`))
}

func (s *transcribeServer) seen() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests, append([]string(nil), s.filenames...)
}

func newTranscribeClient(t *testing.T, srv *httptest.Server) (*Client, *[]time.Duration) {
	t.Helper()
	c := NewClient(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL + "/"})
	var sleeps []time.Duration
	c.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return c, &sleeps
}

func mp3Payload(size int) []byte {
	data := make([]byte, size)
	copy(data, "ID3")
	return data
}

func TestTranscribe_AcceptsExactlyMaxAudioBytes(t *testing.T) {
	ts := &transcribeServer{}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()
	c, _ := newTranscribeClient(t, srv)

	text, err := c.Transcribe(context.Background(), "whisper-1", mp3Payload(MaxAudioBytes), "")
	if err != nil {
		t.Fatalf("Transcribe() at the size limit: %v", err)
	}
	if text != "transcribed" {
		t.Fatalf("text = %q", text)
	}
	if reqs, _ := ts.seen(); reqs != 1 {
		t.Fatalf("requests = %d, want 1", reqs)
	}
}

func TestTranscribe_RejectsOneByteOverLimit(t *testing.T) {
	ts := &transcribeServer{}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()
	c, sleeps := newTranscribeClient(t, srv)

	_, err := c.Transcribe(context.Background(), "whisper-1", mp3Payload(MaxAudioBytes+1), "")
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindTooLarge {
		t.Fatalf("error = %v, want TooLarge", err)
	}
	if reqs, _ := ts.seen(); reqs != 0 {
		t.Fatalf("oversize audio must be rejected before any upload, got %d requests", reqs)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("size rejection must not retry, slept %v", *sleeps)
	}
}

func TestTranscribe_RetriesTransientWithBackoffAndFreshFilenames(t *testing.T) {
	ts := &transcribeServer{statuses: []int{500, 503}}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()
	c, sleeps := newTranscribeClient(t, srv)

	text, err := c.Transcribe(context.Background(), "whisper-1", mp3Payload(64), "")
	if err != nil {
		t.Fatalf("Transcribe() should succeed on the third attempt: %v", err)
	}
	if text != "transcribed" {
		t.Fatalf("text = %q", text)
	}

	reqs, names := ts.seen()
	if reqs != 3 {
		t.Fatalf("requests = %d, want 3", reqs)
	}
	if len(*sleeps) != 2 || (*sleeps)[0] != 2*time.Second || (*sleeps)[1] != 4*time.Second {
		t.Fatalf("backoff = %v, want [2s 4s]", *sleeps)
	}
	if len(names) != 3 {
		t.Fatalf("captured %d filenames, want 3", len(names))
	}
	if names[0] == names[1] || names[1] == names[2] || names[0] == names[2] {
		t.Fatalf("each attempt must upload under a fresh filename, got %v", names)
	}
}

func TestTranscribe_GivesUpAfterThreeTransientFailures(t *testing.T) {
	ts := &transcribeServer{statuses: []int{500, 500, 500}}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()
	c, sleeps := newTranscribeClient(t, srv)

	_, err := c.Transcribe(context.Background(), "whisper-1", mp3Payload(64), "")
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindTransient {
		t.Fatalf("error = %v, want Transient after exhausting attempts", err)
	}
	if reqs, _ := ts.seen(); reqs != 3 {
		t.Fatalf("requests = %d, want exactly 3 attempts", reqs)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("slept %d times, want 2", len(*sleeps))
	}
}

func TestTranscribe_PermanentFailureDoesNotRetry(t *testing.T) {
	ts := &transcribeServer{statuses: []int{400}}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()
	c, sleeps := newTranscribeClient(t, srv)

	_, err := c.Transcribe(context.Background(), "whisper-1", mp3Payload(64), "")
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindPermanent {
		t.Fatalf("error = %v, want Permanent", err)
	}
	if reqs, _ := ts.seen(); reqs != 1 {
		t.Fatalf("requests = %d, a 4xx must not be retried", reqs)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("slept %v, want no backoff", *sleeps)
	}
}

func TestTranscribe_UnknownFormatRejectedLocally(t *testing.T) {
	ts := &transcribeServer{}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()
	c, _ := newTranscribeClient(t, srv)

	_, err := c.Transcribe(context.Background(), "whisper-1", []byte("plain text, no audio header"), "")
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindUnsupported {
		t.Fatalf("error = %v, want Unsupported", err)
	}
	if reqs, _ := ts.seen(); reqs != 0 {
		t.Fatalf("unrecognized format must be rejected before upload, got %d requests", reqs)
	}
}
