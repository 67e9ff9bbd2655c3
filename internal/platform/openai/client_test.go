package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, temp *float64) Client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		Model:       "test-model",
		SpeechModel: "test-tts",
		Timeout:     5 * time.Second,
		MaxRetries:  2,
		Temperature: temp,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateJSONParsesOutputText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path: want=/v1/responses got=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header: got=%q", got)
		}
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"exchanges\":[]}"}]}]}`))
	}))
	defer srv.Close()

	obj, err := newTestClient(t, srv, nil).GenerateJSON(context.Background(), "sys", "user", "dialogue", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if _, ok := obj["exchanges"]; !ok {
		t.Fatalf("GenerateJSON: want exchanges key got=%v", obj)
	}
}

func TestGenerateJSONRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{}"}]}]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, nil).GenerateJSON(context.Background(), "s", "u", "x", map[string]any{}); err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls: want=2 got=%d", got)
	}
}

func TestGenerateJSONDropsRejectedTemperature(t *testing.T) {
	var sawWithout int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["temperature"]; ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature'"}}`))
			return
		}
		atomic.StoreInt32(&sawWithout, 1)
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{}"}]}]}`))
	}))
	defer srv.Close()

	temp := 0.2
	if _, err := newTestClient(t, srv, &temp).GenerateJSON(context.Background(), "s", "u", "x", map[string]any{}); err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if atomic.LoadInt32(&sawWithout) != 1 {
		t.Fatalf("expected a retry without temperature")
	}
}

func TestSpeechReturnsRawAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body speechRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.ResponseFormat != "wav" || body.Voice != "alloy" {
			t.Errorf("speech body: got=%+v", body)
		}
		_, _ = w.Write([]byte("RIFFfake"))
	}))
	defer srv.Close()

	audio, err := newTestClient(t, srv, nil).Speech(context.Background(), SpeechRequest{Text: "hola", Voice: "alloy", Speed: 1})
	if err != nil {
		t.Fatalf("Speech: %v", err)
	}
	if !strings.HasPrefix(string(audio), "RIFF") {
		t.Fatalf("Speech: want raw bytes got=%q", audio)
	}
}

func TestSpeechDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, nil).Speech(context.Background(), SpeechRequest{Text: "x", Voice: "alloy"}); err == nil {
		t.Fatalf("Speech: expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls: want=1 got=%d", got)
	}
}

func TestSpeechMakesOneRequestOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil).Speech(context.Background(), SpeechRequest{Text: "x", Voice: "alloy"})
	var he *openAIHTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Speech: want 503 error got=%v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls: want=1 got=%d", got)
	}
}
