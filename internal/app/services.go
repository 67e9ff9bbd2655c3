package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/jobs/pipeline/course_audio"
	jobruntime "github.com/yungbote/convolab-backend/internal/jobs/runtime"
	"github.com/yungbote/convolab-backend/internal/jobs/worker"
	"github.com/yungbote/convolab-backend/internal/modules/course/audio"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/services"
)

type Services struct {
	Voices       services.VoiceCatalog
	Jobs         services.JobService
	Course       services.CourseService
	Pipeline     services.CoursePipelineService
	Lines        services.LineRenderingService
	Orchestrator *audio.Orchestrator
	JobWorker    *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	voices, err := services.NewVoiceCatalog(log, cfg.VoiceCacheTTL)
	if err != nil {
		return Services{}, fmt.Errorf("init voice catalog: %w", err)
	}

	synth, err := speechProvider(log, cfg, clients, voices)
	if err != nil {
		return Services{}, err
	}
	orch := audio.NewOrchestrator(log, synth, audio.OrchestratorOptions{
		Concurrency:    cfg.SynthesisConcurrency,
		MaxRetries:     cfg.SynthesisMaxRetries,
		InitialBackoff: cfg.SynthesisInitialBackoff,
	})

	notify := services.NewStatusCacheNotifier(clients.StatusCache, cfg.PollIntervalMs)
	jobs := services.NewJobService(db, log, repos.JobRun, notify, clients.StatusCache, cfg.PollIntervalMs)
	extractor := services.NewDialogueExtractor(log, clients.OpenAI, voices)

	registry := jobruntime.NewRegistry()
	if err := registry.Register(course_audio.New(db, log, repos.Course, repos.StageSnapshot, orch, clients.Store, course_audio.Options{
		Speeds: cfg.PlaybackSpeeds,
		Format: audio.Format{SampleRate: cfg.SampleRate, Channels: 1, BitDepth: 16},
	})); err != nil {
		return Services{}, fmt.Errorf("register course_audio handler: %w", err)
	}

	return Services{
		Voices:       voices,
		Jobs:         jobs,
		Course:       services.NewCourseService(db, log, repos.Course),
		Pipeline:     services.NewCoursePipelineService(db, log, repos.Course, repos.StageSnapshot, repos.JobRun, jobs, extractor, voices),
		Lines:        services.NewLineRenderingService(db, log, repos.Course, repos.LineRendering, voices, orch, clients.Store),
		Orchestrator: orch,
		JobWorker:    worker.NewWorker(db, log, repos.JobRun, registry, notify, cfg.Worker),
	}, nil
}
