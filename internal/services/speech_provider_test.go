package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/convolab-backend/internal/data/repos/testutil"
	"github.com/yungbote/convolab-backend/internal/modules/course/audio"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/openai"
)

type speechServer struct {
	calls  int32
	voices chan string
	status int
}

func (s *speechServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		var body struct {
			Voice string `json:"voice"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		select {
		case s.voices <- body.Voice:
		default:
		}
		if s.status != 0 {
			w.WriteHeader(s.status)
			return
		}
		wav, err := audio.Tone(300, 440, audio.DefaultFormat)
		if err != nil {
			t.Errorf("Tone: %v", err)
		}
		_, _ = w.Write(wav)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOpenAISpeech(t *testing.T, srv *httptest.Server) audio.Synthesizer {
	t.Helper()
	log := testutil.Logger(t)
	client, err := openai.NewClient(log, openai.Config{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		SpeechModel: "test-tts",
		Timeout:     5 * time.Second,
		MaxRetries:  4,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	voices, err := NewVoiceCatalog(log, time.Minute)
	if err != nil {
		t.Fatalf("NewVoiceCatalog: %v", err)
	}
	return NewOpenAISpeechProvider(log, client, voices)
}

func TestOpenAISpeechRetriesOnlyInOrchestrator(t *testing.T) {
	s := &speechServer{status: http.StatusServiceUnavailable, voices: make(chan string, 8)}
	synth := newOpenAISpeech(t, s.start(t))
	orch := audio.NewOrchestrator(testutil.Logger(t), synth, audio.OrchestratorOptions{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	_, err := orch.SynthesizeOne(context.Background(), audio.SynthesisRequest{Text: "hola", VoiceID: "es-ES-Neural2-A", Speed: 1})
	if !apierr.Is(err, apierr.KindExternalService) {
		t.Fatalf("SynthesizeOne: want external error got=%v", err)
	}
	if got := atomic.LoadInt32(&s.calls); got != 2 {
		t.Fatalf("provider calls: want=2 got=%d", got)
	}
}

func TestOpenAISpeechUsesCatalogPreset(t *testing.T) {
	s := &speechServer{voices: make(chan string, 1)}
	synth := newOpenAISpeech(t, s.start(t))

	seg, err := synth.Synthesize(context.Background(), audio.SynthesisRequest{Text: "hola", VoiceID: "es-ES-Neural2-A", Speed: 1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if seg.DurationMs != 300 {
		t.Fatalf("duration: want=300 got=%d", seg.DurationMs)
	}
	if got := <-s.voices; got != "nova" {
		t.Fatalf("voice: want=nova got=%q", got)
	}
}

func TestOpenAISpeechRejectsUnknownVoice(t *testing.T) {
	s := &speechServer{voices: make(chan string, 1)}
	synth := newOpenAISpeech(t, s.start(t))

	_, err := synth.Synthesize(context.Background(), audio.SynthesisRequest{Text: "hola", VoiceID: "no-such-voice", Speed: 1})
	if !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("Synthesize: want not_found got=%v", err)
	}
	if got := atomic.LoadInt32(&s.calls); got != 0 {
		t.Fatalf("provider calls: want=0 got=%d", got)
	}
}
