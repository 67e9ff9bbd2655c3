package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/domain/courses"
	jobstatus "github.com/yungbote/convolab-backend/internal/domain/jobs"
	"github.com/yungbote/convolab-backend/internal/modules/course/scriptcfg"
	"github.com/yungbote/convolab-backend/internal/modules/course/stages"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

const (
	JobTypeCourseAudio = "course_audio"
	EntityTypeCourse   = "course"
)

// Versioned pairs a stored snapshot with its version number.
type Versioned[T any] struct {
	Version  int `json:"version"`
	Snapshot T   `json:"snapshot"`
}

type CourseStages struct {
	Course *domain.Course       `json:"course"`
	Stages []stages.StageStatus `json:"stages"`
	Job    *JobStatus           `json:"job,omitempty"`
}

type CoursePipelineService interface {
	BuildPrompt(ctx context.Context, courseID uuid.UUID) (Versioned[stages.PromptSnapshot], error)
	GenerateDialogue(ctx context.Context, courseID uuid.UUID, customPrompt string) (Versioned[stages.ExchangesSnapshot], error)
	UpdateExchange(ctx context.Context, courseID uuid.UUID, order int, edited courses.DialogueExchange) (Versioned[stages.ExchangesSnapshot], error)
	BuildScriptConfig(ctx context.Context, courseID uuid.UUID) (Versioned[stages.ConfigSnapshot], error)
	UpdateScriptConfig(ctx context.Context, courseID uuid.UUID, patch scriptcfg.Patch) (Versioned[stages.ConfigSnapshot], error)
	ResetScriptConfig(ctx context.Context, courseID uuid.UUID) (Versioned[stages.ConfigSnapshot], error)
	GenerateScript(ctx context.Context, courseID uuid.UUID) (Versioned[stages.ScriptSnapshot], error)
	GenerateAudio(ctx context.Context, courseID uuid.UUID) (uuid.UUID, error)
	RetryAudio(ctx context.Context, courseID uuid.UUID) (uuid.UUID, error)
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (JobStatus, error)
	GetCourseStages(ctx context.Context, courseID uuid.UUID) (CourseStages, error)
	GetSnapshot(ctx context.Context, courseID uuid.UUID, stage stages.Stage) (Versioned[json.RawMessage], error)
}

type coursePipelineService struct {
	db        *gorm.DB
	log       *logger.Logger
	courses   repos.CourseRepo
	snapshots repos.StageSnapshotRepo
	jobRuns   repos.JobRunRepo
	jobs      JobService
	extractor DialogueExtractor
	voices    VoiceCatalog

	// serializes audio enqueues per course inside this process; the row lock
	// and runnable-job check cover other processes
	audioLocks sync.Map
}

func NewCoursePipelineService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	snapshotRepo repos.StageSnapshotRepo,
	jobRunRepo repos.JobRunRepo,
	jobs JobService,
	extractor DialogueExtractor,
	voices VoiceCatalog,
) CoursePipelineService {
	return &coursePipelineService{
		db:        db,
		log:       baseLog.With("service", "CoursePipelineService"),
		courses:   courseRepo,
		snapshots: snapshotRepo,
		jobRuns:   jobRunRepo,
		jobs:      jobs,
		extractor: extractor,
		voices:    voices,
	}
}

func appendSnapshot[T any](ctx context.Context, repo repos.StageSnapshotRepo, courseID uuid.UUID, stage stages.Stage, snap T) (Versioned[T], error) {
	payload, err := stages.Encode(snap)
	if err != nil {
		return Versioned[T]{}, err
	}
	row, err := repo.Append(dbctx.Context{Ctx: ctx}, courseID, string(stage), payload)
	if err != nil {
		return Versioned[T]{}, fmt.Errorf("store %s snapshot: %w", stage, err)
	}
	return Versioned[T]{Version: row.Version, Snapshot: snap}, nil
}

// latestSnapshot loads the current snapshot of stage. A missing snapshot is
// reported as a validation error against the stage that needed it.
func latestSnapshot[T any](ctx context.Context, repo repos.StageSnapshotRepo, courseID uuid.UUID, stage, neededBy stages.Stage) (Versioned[T], error) {
	row, err := repo.Latest(dbctx.Context{Ctx: ctx}, courseID, string(stage))
	if err != nil {
		return Versioned[T]{}, fmt.Errorf("load %s snapshot: %w", stage, err)
	}
	if row == nil {
		return Versioned[T]{}, apierr.Validation(string(neededBy), fmt.Errorf("%s stage has not run yet", stage))
	}
	snap, err := stages.Decode[T](row.Payload)
	if err != nil {
		return Versioned[T]{}, err
	}
	return Versioned[T]{Version: row.Version, Snapshot: snap}, nil
}

func (s *coursePipelineService) BuildPrompt(ctx context.Context, courseID uuid.UUID) (Versioned[stages.PromptSnapshot], error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return Versioned[stages.PromptSnapshot]{}, err
	}
	snap, err := stages.BuildPrompt(*course)
	if err != nil {
		return Versioned[stages.PromptSnapshot]{}, err
	}
	return appendSnapshot(ctx, s.snapshots, courseID, stages.StagePrompt, snap)
}

func (s *coursePipelineService) GenerateDialogue(ctx context.Context, courseID uuid.UUID, customPrompt string) (Versioned[stages.ExchangesSnapshot], error) {
	var zero Versioned[stages.ExchangesSnapshot]
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return zero, err
	}
	prompt, err := latestSnapshot[stages.PromptSnapshot](ctx, s.snapshots, courseID, stages.StagePrompt, stages.StageExchanges)
	if err != nil {
		return zero, err
	}
	text := prompt.Snapshot.Prompt
	customPrompt = strings.TrimSpace(customPrompt)
	if customPrompt != "" {
		text = customPrompt
	}
	exchanges, err := s.extractor.Extract(ctx, course, text)
	if err != nil {
		return zero, apierr.WithStage(err, string(stages.StageExchanges))
	}
	snap, err := stages.AdvanceToExchanges(prompt.Version, customPrompt, exchanges)
	if err != nil {
		return zero, err
	}
	out, err := appendSnapshot(ctx, s.snapshots, courseID, stages.StageExchanges, snap)
	if err != nil {
		return zero, err
	}
	s.log.Info("dialogue generated", "course_id", courseID, "version", out.Version, "exchanges", len(snap.Exchanges))
	return out, nil
}

func (s *coursePipelineService) UpdateExchange(ctx context.Context, courseID uuid.UUID, order int, edited courses.DialogueExchange) (Versioned[stages.ExchangesSnapshot], error) {
	var zero Versioned[stages.ExchangesSnapshot]
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return zero, err
	}
	prev, err := latestSnapshot[stages.ExchangesSnapshot](ctx, s.snapshots, courseID, stages.StageExchanges, stages.StageExchanges)
	if err != nil {
		return zero, err
	}
	if strings.TrimSpace(edited.SpeakerVoiceID) == "" {
		for _, ex := range prev.Snapshot.Exchanges {
			if ex.Order == order {
				edited.SpeakerVoiceID = ex.SpeakerVoiceID
			}
		}
	} else if _, err := s.voices.Lookup(ctx, course.TargetLanguage, edited.SpeakerVoiceID); err != nil {
		return zero, err
	}
	snap, err := stages.ReplaceExchange(prev.Snapshot, order, edited)
	if err != nil {
		return zero, err
	}
	return appendSnapshot(ctx, s.snapshots, courseID, stages.StageExchanges, snap)
}

// checkVoices rejects a script whose speech units name a voice missing from
// the catalog, so synthesis never starts with an unresolvable voice.
func (s *coursePipelineService) checkVoices(ctx context.Context, stage stages.Stage, units []courses.ScriptUnit) error {
	seen := map[string]bool{}
	for i, u := range units {
		if !u.IsSpeech() || seen[u.VoiceID] {
			continue
		}
		seen[u.VoiceID] = true
		if strings.TrimSpace(u.VoiceID) == "" {
			return apierr.Validationf(string(stage), "unit %d has no voice assigned", i)
		}
		if _, err := s.voices.Find(ctx, u.VoiceID); err != nil {
			if apierr.Is(err, apierr.KindNotFound) {
				return apierr.Validationf(string(stage), "unit %d: voice %q is not in the catalog", i, u.VoiceID)
			}
			return err
		}
	}
	return nil
}

// narratorFor picks the catalog narrator for the learner's native language,
// falling back to the preset narrator.
func (s *coursePipelineService) narratorFor(ctx context.Context, course *domain.Course) string {
	v, err := s.voices.DefaultNarrator(ctx, course.NativeLanguage)
	if err != nil {
		s.log.Warn("no catalog narrator, using preset", "course_id", course.ID, "error", err)
		return ""
	}
	return v.ID
}

func (s *coursePipelineService) BuildScriptConfig(ctx context.Context, courseID uuid.UUID) (Versioned[stages.ConfigSnapshot], error) {
	var zero Versioned[stages.ConfigSnapshot]
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return zero, err
	}
	ex, err := latestSnapshot[stages.ExchangesSnapshot](ctx, s.snapshots, courseID, stages.StageExchanges, stages.StageConfig)
	if err != nil {
		return zero, err
	}
	snap, err := stages.AdvanceToConfig(*course, ex.Version, s.narratorFor(ctx, course))
	if err != nil {
		return zero, err
	}
	return appendSnapshot(ctx, s.snapshots, courseID, stages.StageConfig, snap)
}

func (s *coursePipelineService) UpdateScriptConfig(ctx context.Context, courseID uuid.UUID, patch scriptcfg.Patch) (Versioned[stages.ConfigSnapshot], error) {
	var zero Versioned[stages.ConfigSnapshot]
	prev, err := latestSnapshot[stages.ConfigSnapshot](ctx, s.snapshots, courseID, stages.StageConfig, stages.StageConfig)
	if err != nil {
		return zero, err
	}
	if patch.NarratorVoiceID != nil {
		if _, err := s.voices.Find(ctx, *patch.NarratorVoiceID); err != nil {
			return zero, err
		}
	}
	cfg, err := scriptcfg.ApplyPatch(prev.Snapshot.Config, patch)
	if err != nil {
		return zero, err
	}
	cfg.Version = prev.Snapshot.Config.Version + 1
	snap := stages.ConfigSnapshot{Config: cfg, ExchangesVersion: prev.Snapshot.ExchangesVersion}
	return appendSnapshot(ctx, s.snapshots, courseID, stages.StageConfig, snap)
}

func (s *coursePipelineService) ResetScriptConfig(ctx context.Context, courseID uuid.UUID) (Versioned[stages.ConfigSnapshot], error) {
	var zero Versioned[stages.ConfigSnapshot]
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return zero, err
	}
	prev, err := latestSnapshot[stages.ConfigSnapshot](ctx, s.snapshots, courseID, stages.StageConfig, stages.StageConfig)
	if err != nil {
		return zero, err
	}
	base := prev.Snapshot.Config
	base.NarratorVoiceID = s.narratorFor(ctx, course)
	cfg, err := scriptcfg.Reset(base)
	if err != nil {
		return zero, err
	}
	if t := strings.TrimSpace(course.Title); t != "" {
		cfg.ScenarioIntroPrompt = t
	}
	snap := stages.ConfigSnapshot{Config: cfg, ExchangesVersion: prev.Snapshot.ExchangesVersion}
	return appendSnapshot(ctx, s.snapshots, courseID, stages.StageConfig, snap)
}

func (s *coursePipelineService) GenerateScript(ctx context.Context, courseID uuid.UUID) (Versioned[stages.ScriptSnapshot], error) {
	var zero Versioned[stages.ScriptSnapshot]
	if _, err := loadCourse(ctx, s.courses, courseID); err != nil {
		return zero, err
	}
	ex, err := latestSnapshot[stages.ExchangesSnapshot](ctx, s.snapshots, courseID, stages.StageExchanges, stages.StageScript)
	if err != nil {
		return zero, err
	}
	cfg, err := latestSnapshot[stages.ConfigSnapshot](ctx, s.snapshots, courseID, stages.StageConfig, stages.StageScript)
	if err != nil {
		return zero, err
	}
	snap, err := stages.AdvanceToScript(ex.Snapshot, ex.Version, cfg.Snapshot, cfg.Version)
	if err != nil {
		return zero, err
	}
	if err := s.checkVoices(ctx, stages.StageScript, snap.Units); err != nil {
		return zero, err
	}
	out, err := appendSnapshot(ctx, s.snapshots, courseID, stages.StageScript, snap)
	if err != nil {
		return zero, err
	}
	s.log.Info("script compiled",
		"course_id", courseID,
		"version", out.Version,
		"units", len(snap.Units),
		"estimated_seconds", snap.EstimatedDurationSeconds,
	)
	return out, nil
}

func (s *coursePipelineService) GenerateAudio(ctx context.Context, courseID uuid.UUID) (uuid.UUID, error) {
	return s.enqueueAudio(ctx, courseID, false)
}

// RetryAudio enqueues a fresh audio job after a failure. The stored script
// snapshot is reused as is.
func (s *coursePipelineService) RetryAudio(ctx context.Context, courseID uuid.UUID) (uuid.UUID, error) {
	return s.enqueueAudio(ctx, courseID, true)
}

func (s *coursePipelineService) lockCourse(courseID uuid.UUID) func() {
	v, _ := s.audioLocks.LoadOrStore(courseID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *coursePipelineService) enqueueAudio(ctx context.Context, courseID uuid.UUID, retry bool) (uuid.UUID, error) {
	script, err := latestSnapshot[stages.ScriptSnapshot](ctx, s.snapshots, courseID, stages.StageScript, stages.StageAudio)
	if err != nil {
		return uuid.Nil, err
	}
	if len(script.Snapshot.Units) == 0 {
		return uuid.Nil, apierr.Validationf(string(stages.StageAudio), "script has no units")
	}
	if err := s.checkVoices(ctx, stages.StageAudio, script.Snapshot.Units); err != nil {
		return uuid.Nil, err
	}

	unlock := s.lockCourse(courseID)
	defer unlock()

	var job *domain.JobRun
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		course, err := s.courses.LockByID(dbc, courseID)
		if err != nil {
			return fmt.Errorf("lock course: %w", err)
		}
		if course == nil {
			return apierr.NotFound("course_not_found", fmt.Errorf("course %s not found", courseID))
		}
		busy, err := s.jobRuns.HasRunnableForEntity(dbc, EntityTypeCourse, courseID, JobTypeCourseAudio)
		if err != nil {
			return fmt.Errorf("check active audio job: %w", err)
		}
		if busy {
			return apierr.Conflict(fmt.Errorf("course %s already has an audio job in progress", courseID))
		}
		if retry {
			if err := s.checkRetryable(dbc, course); err != nil {
				return err
			}
		}
		job, err = s.jobs.Enqueue(dbc, course.OwnerUserID, JobTypeCourseAudio, EntityTypeCourse, &course.ID, map[string]any{
			"course_id":      course.ID.String(),
			"script_version": script.Version,
		})
		if err != nil {
			return err
		}
		return s.courses.UpdateFields(dbc, course.ID, map[string]interface{}{
			"status":        courses.CourseStatusGenerating,
			"active_job_id": job.ID,
			"last_error":    "",
			"failed_stage":  "",
		})
	})
	if err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("enqueue audio job: %w", err)
	}
	s.jobs.Announce(ctx, job)
	s.log.Info("audio job enqueued",
		"course_id", courseID,
		"job_id", job.ID,
		"script_version", script.Version,
		"retry", retry,
	)
	return job.ID, nil
}

func (s *coursePipelineService) checkRetryable(dbc dbctx.Context, course *domain.Course) error {
	if course.Status == courses.CourseStatusError {
		return nil
	}
	last, err := s.jobRuns.GetLatestByEntity(dbc, EntityTypeCourse, course.ID, JobTypeCourseAudio)
	if err != nil {
		return fmt.Errorf("load last audio job: %w", err)
	}
	if last != nil && (last.Status == jobstatus.StatusFailed || last.Status == jobstatus.StatusCanceled) {
		return nil
	}
	return apierr.Validationf(string(stages.StageAudio), "no failed audio job to retry")
}

func (s *coursePipelineService) GetJobStatus(ctx context.Context, jobID uuid.UUID) (JobStatus, error) {
	return s.jobs.GetStatus(ctx, jobID)
}

func (s *coursePipelineService) GetCourseStages(ctx context.Context, courseID uuid.UUID) (CourseStages, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return CourseStages{}, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	versions, err := s.snapshots.LatestVersions(dbc, courseID)
	if err != nil {
		return CourseStages{}, fmt.Errorf("load stage versions: %w", err)
	}
	latest := map[stages.Stage]int{}
	basedOn := map[stages.Stage]int{}
	for name, v := range versions {
		st := stages.Stage(name)
		if !st.Valid() {
			continue
		}
		latest[st] = v
		if _, ok := st.Prev(); !ok {
			continue
		}
		row, err := s.snapshots.GetVersion(dbc, courseID, name, v)
		if err != nil {
			return CourseStages{}, fmt.Errorf("load %s snapshot: %w", name, err)
		}
		if row == nil {
			continue
		}
		b, err := stages.BasedOn(st, row.Payload)
		if err != nil {
			return CourseStages{}, err
		}
		basedOn[st] = b
	}
	out := CourseStages{Course: course, Stages: stages.Statuses(latest, basedOn)}
	jobID := course.ActiveJobID
	if jobID == nil {
		// surface the last finished run so a failed course shows why
		if last, err := s.jobs.LatestForEntity(ctx, EntityTypeCourse, course.ID, JobTypeCourseAudio); err == nil && last != nil {
			jobID = &last.ID
		}
	}
	if jobID != nil {
		if st, err := s.jobs.GetStatus(ctx, *jobID); err == nil {
			out.Job = &st
		}
	}
	return out, nil
}

func (s *coursePipelineService) GetSnapshot(ctx context.Context, courseID uuid.UUID, stage stages.Stage) (Versioned[json.RawMessage], error) {
	if _, err := loadCourse(ctx, s.courses, courseID); err != nil {
		return Versioned[json.RawMessage]{}, err
	}
	row, err := s.snapshots.Latest(dbctx.Context{Ctx: ctx}, courseID, string(stage))
	if err != nil {
		return Versioned[json.RawMessage]{}, fmt.Errorf("load %s snapshot: %w", stage, err)
	}
	if row == nil {
		return Versioned[json.RawMessage]{}, apierr.NotFound("snapshot_not_found", fmt.Errorf("%s stage has not run yet", stage))
	}
	return Versioned[json.RawMessage]{Version: row.Version, Snapshot: json.RawMessage(row.Payload)}, nil
}
