package gcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/yungbote/convolab-backend/internal/platform/httpx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

// TTS wraps the Cloud Text-to-Speech REST API. Audio comes back as LINEAR16
// with a WAV header.
type TTS struct {
	log        *logger.Logger
	svc        *texttospeech.Service
	sampleRate int64
}

func NewTTS(ctx context.Context, log *logger.Logger, sampleRate int, extra ...option.ClientOption) (*TTS, error) {
	opts := append(ClientOptionsFromEnv(), extra...)
	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create texttospeech service: %w", err)
	}
	return &TTS{
		log:        log.With("client", "GoogleTTS"),
		svc:        svc,
		sampleRate: int64(sampleRate),
	}, nil
}

// Synthesize returns WAV bytes for text spoken by voiceName at speakingRate.
// Non-2xx responses surface as *httpx.StatusError so callers can classify
// them for retry.
func (t *TTS) Synthesize(ctx context.Context, text, voiceName string, speakingRate float64) ([]byte, error) {
	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: LanguageCodeForVoice(voiceName),
			Name:         voiceName,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SpeakingRate:    speakingRate,
			SampleRateHertz: t.sampleRate,
		},
	}
	resp, err := t.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			return nil, &httpx.StatusError{Provider: "google_tts", StatusCode: gErr.Code, Body: gErr.Message}
		}
		return nil, err
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode google tts audio: %w", err)
	}
	return audio, nil
}

// LanguageCodeForVoice derives "es-ES" from a voice name like "es-ES-Neural2-A".
func LanguageCodeForVoice(voiceName string) string {
	parts := strings.SplitN(strings.TrimSpace(voiceName), "-", 3)
	if len(parts) < 2 {
		return strings.TrimSpace(voiceName)
	}
	return parts[0] + "-" + parts[1]
}
