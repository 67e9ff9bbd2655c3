package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/domain"
	jobstatus "github.com/yungbote/convolab-backend/internal/domain/jobs"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/ctxutil"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

// Client-facing job states.
const (
	JobStateQueued    = "queued"
	JobStateRunning   = "running"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
)

type JobStatus struct {
	JobID          uuid.UUID  `json:"jobId"`
	JobType        string     `json:"jobType"`
	EntityID       *uuid.UUID `json:"entityId,omitempty"`
	State          string     `json:"state"`
	Progress       int        `json:"progress"`
	Stage          string     `json:"stage"`
	Message        string     `json:"message,omitempty"`
	Error          string     `json:"error,omitempty"`
	Attempts       int        `json:"attempts"`
	PollIntervalMs int        `json:"pollIntervalMs"`
	Terminal       bool       `json:"terminal"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func StatusFromJob(job *domain.JobRun, pollIntervalMs int) JobStatus {
	st := JobStatus{
		JobID:          job.ID,
		JobType:        job.JobType,
		EntityID:       job.EntityID,
		Progress:       job.Progress,
		Stage:          job.Stage,
		Message:        job.Message,
		Error:          job.Error,
		Attempts:       job.Attempts,
		PollIntervalMs: pollIntervalMs,
		Terminal:       job.IsTerminal(),
		UpdatedAt:      job.UpdatedAt,
	}
	switch job.Status {
	case jobstatus.StatusQueued:
		st.State = JobStateQueued
	case jobstatus.StatusRunning:
		st.State = JobStateRunning
	case jobstatus.StatusSucceeded:
		st.State = JobStateCompleted
		st.Progress = 100
	default:
		st.State = JobStateFailed
	}
	if st.Terminal {
		st.PollIntervalMs = 0
	}
	return st
}

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*domain.JobRun, error)
	// Announce publishes a job created inside a transaction once it commits.
	Announce(ctx context.Context, job *domain.JobRun)
	GetStatus(ctx context.Context, jobID uuid.UUID) (JobStatus, error)
	LatestForEntity(ctx context.Context, entityType string, entityID uuid.UUID, jobType string) (*domain.JobRun, error)
}

type jobService struct {
	db             *gorm.DB
	log            *logger.Logger
	repo           repos.JobRunRepo
	notify         JobNotifier
	cache          JobStatusCache
	pollIntervalMs int
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, notify JobNotifier, cache JobStatusCache, pollIntervalMs int) JobService {
	if pollIntervalMs <= 0 {
		pollIntervalMs = 2000
	}
	return &jobService{
		db:             db,
		log:            baseLog.With("service", "JobService"),
		repo:           repo,
		notify:         notify,
		cache:          cache,
		pollIntervalMs: pollIntervalMs,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*domain.JobRun, error) {
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	now := time.Now().UTC()
	job := &domain.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      jobstatus.StatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbc, []*domain.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	// inside a transaction the job is not visible yet; the caller announces it
	// after commit
	if !isDBTransaction(dbc.Tx) {
		s.Announce(dbc.Ctx, job)
	}
	return job, nil
}

func (s *jobService) Announce(ctx context.Context, job *domain.JobRun) {
	if s.notify != nil && job != nil {
		s.notify.JobCreated(ctxutil.Default(ctx), job)
	}
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

// isDBTransaction checks the connection pool rather than pointer identity,
// since gorm clones *gorm.DB on every chain call.
func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

func (s *jobService) GetStatus(ctx context.Context, jobID uuid.UUID) (JobStatus, error) {
	if s.cache != nil {
		if st, ok := s.cache.Get(ctx, jobID); ok {
			return st, nil
		}
	}
	job, err := s.repo.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return JobStatus{}, apierr.NotFound("job_not_found", fmt.Errorf("job %s not found", jobID))
	}
	st := StatusFromJob(job, s.pollIntervalMs)
	if s.cache != nil {
		s.cache.Set(ctx, st)
	}
	return st, nil
}

func (s *jobService) LatestForEntity(ctx context.Context, entityType string, entityID uuid.UUID, jobType string) (*domain.JobRun, error) {
	return s.repo.GetLatestByEntity(dbctx.Context{Ctx: ctx}, entityType, entityID, jobType)
}
