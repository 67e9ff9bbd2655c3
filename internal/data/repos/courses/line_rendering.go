package courses

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type LineRenderingRepo interface {
	Create(dbc dbctx.Context, lr *domain.LineRendering) (*domain.LineRendering, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.LineRendering, error)
	FindByCacheKey(dbc dbctx.Context, courseID uuid.UUID, cacheKey string) (*domain.LineRendering, error)
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*domain.LineRendering, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type lineRenderingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLineRenderingRepo(db *gorm.DB, baseLog *logger.Logger) LineRenderingRepo {
	return &lineRenderingRepo{db: db, log: baseLog.With("repo", "LineRenderingRepo")}
}

func (r *lineRenderingRepo) Create(dbc dbctx.Context, lr *domain.LineRendering) (*domain.LineRendering, error) {
	if lr == nil {
		return nil, nil
	}
	if lr.ID == uuid.Nil {
		lr.ID = uuid.New()
	}
	if lr.CreatedAt.IsZero() {
		lr.CreatedAt = time.Now().UTC()
	}
	if err := dbc.DB(r.db).Create(lr).Error; err != nil {
		return nil, err
	}
	return lr, nil
}

func (r *lineRenderingRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.LineRendering, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var lr domain.LineRendering
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&lr).Error; err != nil {
		return nil, err
	}
	if lr.ID == uuid.Nil {
		return nil, nil
	}
	return &lr, nil
}

func (r *lineRenderingRepo) FindByCacheKey(dbc dbctx.Context, courseID uuid.UUID, cacheKey string) (*domain.LineRendering, error) {
	if courseID == uuid.Nil || cacheKey == "" {
		return nil, nil
	}
	var lr domain.LineRendering
	err := dbc.DB(r.db).
		Where("course_id = ? AND cache_key = ?", courseID, cacheKey).
		Order("created_at DESC").
		Limit(1).
		Find(&lr).Error
	if err != nil {
		return nil, err
	}
	if lr.ID == uuid.Nil {
		return nil, nil
	}
	return &lr, nil
}

func (r *lineRenderingRepo) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*domain.LineRendering, error) {
	var out []*domain.LineRendering
	if courseID == uuid.Nil {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("course_id = ?", courseID).
		Order("unit_index ASC, created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *lineRenderingRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).Where("id = ?", id).Delete(&domain.LineRendering{}).Error
}
