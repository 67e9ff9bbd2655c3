package app

import (
	"context"
	"fmt"

	"github.com/yungbote/convolab-backend/internal/modules/course/audio"
	"github.com/yungbote/convolab-backend/internal/platform/gcp"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/platform/openai"
	"github.com/yungbote/convolab-backend/internal/services"
)

type Clients struct {
	// OpenAI is nil when OPENAI_API_KEY is unset; dialogue extraction then
	// fails with an external_service error instead of blocking startup.
	OpenAI      openai.Client
	TTS         *gcp.TTS
	Store       services.ObjectStore
	MediaDir    string
	StatusCache services.JobStatusCache

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Openai
	ai, err := openai.NewClient(log, openai.ConfigFromEnv())
	if err != nil {
		if cfg.SpeechProvider == SpeechProviderOpenAI {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		log.Warn("OpenAI client disabled", "error", err)
	} else {
		out.OpenAI = ai
	}

	// Google TTS
	if cfg.SpeechProvider == SpeechProviderGoogle {
		tts, err := gcp.NewTTS(ctx, log, cfg.SampleRate)
		if err != nil {
			return Clients{}, fmt.Errorf("init google tts: %w", err)
		}
		out.TTS = tts
	}

	// Object store
	st, err := resolveObjectStore(ctx, log, cfg)
	if err != nil {
		return Clients{}, err
	}
	out.Store = st.store
	out.MediaDir = st.mediaDir
	out.closers = append(out.closers, st.close)

	// Redis
	if cfg.RedisAddr != "" {
		cache, err := services.NewJobStatusCache(log, cfg.RedisAddr, cfg.StatusCacheTTL)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis status cache: %w", err)
		}
		out.StatusCache = cache
	} else {
		out.StatusCache = services.NewMemoryJobStatusCache(cfg.StatusCacheTTL)
	}
	return out, nil
}

func (c Clients) Close() {
	for _, fn := range c.closers {
		if fn != nil {
			_ = fn()
		}
	}
}

// speechProvider picks the synthesizer named by SPEECH_PROVIDER.
func speechProvider(log *logger.Logger, cfg Config, clients Clients, voices services.VoiceCatalog) (audio.Synthesizer, error) {
	switch cfg.SpeechProvider {
	case SpeechProviderOpenAI:
		if clients.OpenAI == nil {
			return nil, fmt.Errorf("speech provider %q requires OPENAI_API_KEY", cfg.SpeechProvider)
		}
		return services.NewOpenAISpeechProvider(log, clients.OpenAI, voices), nil
	case SpeechProviderGoogle:
		if clients.TTS == nil {
			return nil, fmt.Errorf("speech provider %q requires a google tts client", cfg.SpeechProvider)
		}
		return services.NewGoogleSpeechProvider(log, clients.TTS), nil
	case SpeechProviderMock:
		return services.NewMockSpeechProvider(audio.Format{SampleRate: cfg.SampleRate, Channels: 1, BitDepth: 16}), nil
	default:
		return nil, fmt.Errorf("unsupported SPEECH_PROVIDER %q (allowed: %q, %q, %q)",
			cfg.SpeechProvider, SpeechProviderOpenAI, SpeechProviderGoogle, SpeechProviderMock)
	}
}
