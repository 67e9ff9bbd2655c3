package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/convolab-backend/internal/modules/course/audio"
	"github.com/yungbote/convolab-backend/internal/modules/course/stages"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/gcp"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/platform/openai"
)

const (
	SpeechProviderGoogle = "google"
	SpeechProviderOpenAI = "openai"
	SpeechProviderMock   = "mock"
)

// wavSegment measures a provider's WAV reply so the timeline uses the real
// audio length.
func wavSegment(wav []byte) (audio.Segment, error) {
	samples, f, err := audio.DecodeWAV(wav)
	if err != nil {
		return audio.Segment{}, err
	}
	return audio.Segment{Audio: wav, DurationMs: f.DurationMs(len(samples))}, nil
}

func clampSpeed(s, lo, hi float64) float64 {
	if s <= 0 {
		return 1
	}
	if s < lo {
		return lo
	}
	if s > hi {
		return hi
	}
	return s
}

type googleSpeech struct {
	log *logger.Logger
	tts *gcp.TTS
}

func NewGoogleSpeechProvider(log *logger.Logger, tts *gcp.TTS) audio.Synthesizer {
	return &googleSpeech{log: log.With("provider", SpeechProviderGoogle), tts: tts}
}

func (g *googleSpeech) Synthesize(ctx context.Context, req audio.SynthesisRequest) (audio.Segment, error) {
	wav, err := g.tts.Synthesize(ctx, req.Text, req.VoiceID, clampSpeed(req.Speed, 0.25, 4))
	if err != nil {
		return audio.Segment{}, err
	}
	seg, err := wavSegment(wav)
	if err != nil {
		return audio.Segment{}, fmt.Errorf("google tts returned unreadable audio: %w", err)
	}
	return seg, nil
}

type openAISpeech struct {
	log    *logger.Logger
	client openai.Client
	voices VoiceCatalog
}

// NewOpenAISpeechProvider maps catalog voice ids onto OpenAI presets. A voice
// outside the catalog, or one without a preset, fails the request.
func NewOpenAISpeechProvider(log *logger.Logger, client openai.Client, voices VoiceCatalog) audio.Synthesizer {
	return &openAISpeech{log: log.With("provider", SpeechProviderOpenAI), client: client, voices: voices}
}

func (o *openAISpeech) Synthesize(ctx context.Context, req audio.SynthesisRequest) (audio.Segment, error) {
	v, err := o.voices.Find(ctx, req.VoiceID)
	if err != nil {
		return audio.Segment{}, err
	}
	if v.OpenAIVoice == "" {
		return audio.Segment{}, apierr.Validation(string(stages.StageAudio), fmt.Errorf("voice %q has no openai mapping", req.VoiceID))
	}
	wav, err := o.client.Speech(ctx, openai.SpeechRequest{
		Text:   req.Text,
		Voice:  v.OpenAIVoice,
		Speed:  clampSpeed(req.Speed, 0.25, 4),
		Format: "wav",
	})
	if err != nil {
		return audio.Segment{}, err
	}
	seg, err := wavSegment(wav)
	if err != nil {
		return audio.Segment{}, fmt.Errorf("openai speech returned unreadable audio: %w", err)
	}
	return seg, nil
}

// mockSpeech renders a tone whose length follows the text, so a course can be
// generated end to end without a speech vendor.
type mockSpeech struct {
	format  audio.Format
	msPerCh int64
}

func NewMockSpeechProvider(format audio.Format) audio.Synthesizer {
	if format.IsZero() {
		format = audio.DefaultFormat
	}
	return &mockSpeech{format: format, msPerCh: 60}
}

func (m *mockSpeech) Synthesize(ctx context.Context, req audio.SynthesisRequest) (audio.Segment, error) {
	if err := ctx.Err(); err != nil {
		return audio.Segment{}, err
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1
	}
	n := int64(utf8.RuneCountInString(strings.TrimSpace(req.Text)))
	if n == 0 {
		n = 1
	}
	ms := int64(float64(200+n*m.msPerCh) / speed)

	h := fnv.New32a()
	_, _ = h.Write([]byte(req.VoiceID))
	freq := 220 + float64(h.Sum32()%220)

	wav, err := audio.Tone(ms, freq, m.format)
	if err != nil {
		return audio.Segment{}, err
	}
	return wavSegment(wav)
}
