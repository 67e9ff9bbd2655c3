package courses

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type CourseRepo interface {
	Create(dbc dbctx.Context, course *domain.Course) (*domain.Course, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Course, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Course, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsIfActiveJob(dbc dbctx.Context, id uuid.UUID, jobID uuid.UUID, updates map[string]interface{}) (bool, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) Create(dbc dbctx.Context, course *domain.Course) (*domain.Course, error) {
	if course == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	if course.UpdatedAt.IsZero() {
		course.UpdatedAt = course.CreatedAt
	}
	if err := dbc.DB(r.db).Create(course).Error; err != nil {
		return nil, err
	}
	return course, nil
}

func (r *courseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Course, error) {
	return r.get(dbc.DB(r.db), id)
}

// LockByID reads the course with a row lock when the driver supports one, so
// callers inside a transaction serialize on the course.
func (r *courseRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Course, error) {
	q := dbc.DB(r.db)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.get(q, id)
}

func (r *courseRepo) get(q *gorm.DB, id uuid.UUID) (*domain.Course, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c domain.Course
	if err := q.Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *courseRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).
		Model(&domain.Course{}).
		Where("id = ?", id).
		Updates(withUpdatedAt(updates)).Error
}

// UpdateFieldsIfActiveJob applies updates only while jobID is still the
// course's active job, so a superseded run cannot overwrite newer state.
func (r *courseRepo) UpdateFieldsIfActiveJob(dbc dbctx.Context, id uuid.UUID, jobID uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || jobID == uuid.Nil {
		return false, nil
	}
	res := dbc.DB(r.db).
		Model(&domain.Course{}).
		Where("id = ? AND active_job_id = ?", id, jobID).
		Updates(withUpdatedAt(updates))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func withUpdatedAt(updates map[string]interface{}) map[string]interface{} {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return updates
}
