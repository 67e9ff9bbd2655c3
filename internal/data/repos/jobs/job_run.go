package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/convolab-backend/internal/domain"
	jobstatus "github.com/yungbote/convolab-backend/internal/domain/jobs"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

var runnableStatuses = []string{jobstatus.StatusQueued, jobstatus.StatusRunning}

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*domain.JobRun) ([]*domain.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error)
	GetLatestByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*domain.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, staleRunning time.Duration) (*domain.JobRun, error)
	FailExhaustedStale(dbc dbctx.Context, maxAttempts int, staleRunning time.Duration) ([]*domain.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	HasRunnableForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (bool, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*domain.JobRun) ([]*domain.JobRun, error) {
	if len(jobs) == 0 {
		return []*domain.JobRun{}, nil
	}
	now := time.Now().UTC()
	for _, j := range jobs {
		if j.ID == uuid.Nil {
			j.ID = uuid.New()
		}
		if j.CreatedAt.IsZero() {
			j.CreatedAt = now
		}
		if j.UpdatedAt.IsZero() {
			j.UpdatedAt = j.CreatedAt
		}
	}
	if err := dbc.DB(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job domain.JobRun
	err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRunRepo) GetLatestByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*domain.JobRun, error) {
	if entityID == uuid.Nil || entityType == "" || jobType == "" {
		return nil, nil
	}
	var job domain.JobRun
	err := dbc.DB(r.db).
		Where("entity_type = ? AND entity_id = ? AND job_type = ?", entityType, entityID, jobType).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ClaimNextRunnable takes the oldest queued job, or a running job whose
// heartbeat went stale and still has attempts left, and marks it running.
// Failed jobs are terminal and never reclaimed.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, staleRunning time.Duration) (*domain.JobRun, error) {
	now := time.Now().UTC()
	staleCutoff := now.Add(-staleRunning)
	var claimed *domain.JobRun
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var job domain.JobRun
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, jobstatus.StatusQueued, jobstatus.StatusRunning, maxAttempts, staleCutoff).
			Order("created_at ASC").
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		res := txx.Model(&domain.JobRun{}).
			Where("id = ? AND status = ?", job.ID, job.Status).
			Updates(map[string]interface{}{
				"status":       jobstatus.StatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// another worker got there first
			return nil
		}
		job.Status = jobstatus.StatusRunning
		job.Attempts++
		job.LockedAt = &now
		job.HeartbeatAt = &now
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// FailExhaustedStale fails running jobs whose heartbeat went stale after they
// used their last attempt. ClaimNextRunnable skips such rows, so without this
// they would stay running and block their entity for good.
func (r *jobRunRepo) FailExhaustedStale(dbc dbctx.Context, maxAttempts int, staleRunning time.Duration) ([]*domain.JobRun, error) {
	now := time.Now().UTC()
	staleCutoff := now.Add(-staleRunning)
	var failed []*domain.JobRun
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var stale []*domain.JobRun
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND attempts >= ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?",
				jobstatus.StatusRunning, maxAttempts, staleCutoff,
			).
			Order("created_at ASC").
			Limit(50).
			Find(&stale).Error
		if qErr != nil {
			return qErr
		}
		for _, job := range stale {
			msg := fmt.Sprintf("no heartbeat since %s after %d of %d attempts",
				job.HeartbeatAt.UTC().Format(time.RFC3339), job.Attempts, maxAttempts)
			res := txx.Model(&domain.JobRun{}).
				Where("id = ? AND status = ?", job.ID, jobstatus.StatusRunning).
				Updates(map[string]interface{}{
					"status":        jobstatus.StatusFailed,
					"error":         msg,
					"message":       "",
					"last_error_at": now,
					"locked_at":     nil,
					"updated_at":    now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			job.Status = jobstatus.StatusFailed
			job.Error = msg
			job.Message = ""
			job.LastErrorAt = &now
			job.LockedAt = nil
			job.UpdatedAt = now
			failed = append(failed, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&domain.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateFieldsUnlessStatus applies updates only while the job is not in one
// of disallowedStatuses, and reports whether a row changed.
func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}

	q := dbc.DB(r.db).
		Model(&domain.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return dbc.DB(r.db).
		Model(&domain.JobRun{}).
		Where("id = ? AND status = ?", id, jobstatus.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *jobRunRepo) HasRunnableForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (bool, error) {
	if entityID == uuid.Nil || entityType == "" || jobType == "" {
		return false, nil
	}
	var count int64
	err := dbc.DB(r.db).
		Model(&domain.JobRun{}).
		Where("entity_type = ? AND entity_id = ? AND job_type = ? AND status IN ?",
			entityType, entityID, jobType, runnableStatuses,
		).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
