package app

import (
	"strings"
	"time"

	"github.com/yungbote/convolab-backend/internal/data/db"
	"github.com/yungbote/convolab-backend/internal/jobs/worker"
	"github.com/yungbote/convolab-backend/internal/platform/envutil"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

const (
	SpeechProviderOpenAI = "openai"
	SpeechProviderGoogle = "google"
	SpeechProviderMock   = "mock"

	ObjectStoreGCS   = "gcs"
	ObjectStoreLocal = "local"
)

type Config struct {
	Port        string
	LogMode     string
	ServiceName string
	Environment string
	Version     string

	Database db.Config
	Worker   worker.Config

	SpeechProvider          string
	SampleRate              int
	SynthesisConcurrency    int
	SynthesisMaxRetries     int
	SynthesisInitialBackoff time.Duration
	PlaybackSpeeds          []float64

	ObjectStore       string
	LocalMediaDir     string
	LocalMediaBaseURL string

	RedisAddr      string
	VoiceCacheTTL  time.Duration
	StatusCacheTTL time.Duration
	PollIntervalMs int
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "convolab-backend"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", ""),

		Database: db.ConfigFromEnv(),
		Worker:   worker.ConfigFromEnv(),

		SpeechProvider:          strings.ToLower(envutil.String("SPEECH_PROVIDER", SpeechProviderOpenAI)),
		SampleRate:              envutil.Int("SPEECH_SAMPLE_RATE", 24000),
		SynthesisConcurrency:    envutil.Int("SYNTHESIS_CONCURRENCY", 4),
		SynthesisMaxRetries:     envutil.Int("SYNTHESIS_MAX_RETRIES", 3),
		SynthesisInitialBackoff: envutil.Duration("SYNTHESIS_INITIAL_BACKOFF_MS", time.Millisecond, 500*time.Millisecond),
		PlaybackSpeeds:          envutil.Floats("PLAYBACK_SPEEDS", []float64{0.75, 1.0}),

		ObjectStore:       strings.ToLower(envutil.String("OBJECT_STORE", ObjectStoreGCS)),
		LocalMediaDir:     envutil.String("LOCAL_MEDIA_DIR", "./media"),
		LocalMediaBaseURL: envutil.String("LOCAL_MEDIA_BASE_URL", "http://localhost:8080/media"),

		RedisAddr:      envutil.String("REDIS_ADDR", ""),
		VoiceCacheTTL:  envutil.Duration("VOICE_CACHE_TTL_SECONDS", time.Second, 10*time.Minute),
		StatusCacheTTL: envutil.Duration("STATUS_CACHE_TTL_SECONDS", time.Second, 5*time.Second),
		PollIntervalMs: envutil.Int("JOB_POLL_INTERVAL_MS", 2000),
	}
	cfg.PlaybackSpeeds = validSpeeds(log, cfg.PlaybackSpeeds)
	log.Info("Config loaded",
		"port", cfg.Port,
		"db_driver", cfg.Database.Driver,
		"speech_provider", cfg.SpeechProvider,
		"object_store", cfg.ObjectStore,
		"playback_speeds", cfg.PlaybackSpeeds,
		"worker_concurrency", cfg.Worker.Concurrency,
	)
	return cfg
}

// validSpeeds drops speeds outside (0, 4]; an empty result falls back to 1.0.
func validSpeeds(log *logger.Logger, speeds []float64) []float64 {
	out := make([]float64, 0, len(speeds))
	for _, s := range speeds {
		if s <= 0 || s > 4 {
			log.Warn("Ignoring playback speed", "speed", s)
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return []float64{1}
	}
	return out
}
