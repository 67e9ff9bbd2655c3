package courses

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type StageSnapshotRepo interface {
	Append(dbc dbctx.Context, courseID uuid.UUID, stage string, payload []byte) (*domain.CourseStageSnapshot, error)
	Latest(dbc dbctx.Context, courseID uuid.UUID, stage string) (*domain.CourseStageSnapshot, error)
	GetVersion(dbc dbctx.Context, courseID uuid.UUID, stage string, version int) (*domain.CourseStageSnapshot, error)
	LatestVersions(dbc dbctx.Context, courseID uuid.UUID) (map[string]int, error)
}

type stageSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStageSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) StageSnapshotRepo {
	return &stageSnapshotRepo{db: db, log: baseLog.With("repo", "StageSnapshotRepo")}
}

// Append stores payload as the next version of the stage. Earlier versions are
// never modified; the unique (course, stage, version) index rejects a racing
// writer that picked the same number.
func (r *stageSnapshotRepo) Append(dbc dbctx.Context, courseID uuid.UUID, stage string, payload []byte) (*domain.CourseStageSnapshot, error) {
	var out *domain.CourseStageSnapshot
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var maxVersion int
		if err := txx.Model(&domain.CourseStageSnapshot{}).
			Where("course_id = ? AND stage = ?", courseID, stage).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}
		snap := &domain.CourseStageSnapshot{
			ID:        uuid.New(),
			CourseID:  courseID,
			Stage:     stage,
			Version:   maxVersion + 1,
			Payload:   datatypes.JSON(payload),
			CreatedAt: time.Now().UTC(),
		}
		if err := txx.Create(snap).Error; err != nil {
			return err
		}
		out = snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stageSnapshotRepo) Latest(dbc dbctx.Context, courseID uuid.UUID, stage string) (*domain.CourseStageSnapshot, error) {
	var snap domain.CourseStageSnapshot
	err := dbc.DB(r.db).
		Where("course_id = ? AND stage = ?", courseID, stage).
		Order("version DESC").
		Limit(1).
		Find(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == uuid.Nil {
		return nil, nil
	}
	return &snap, nil
}

func (r *stageSnapshotRepo) GetVersion(dbc dbctx.Context, courseID uuid.UUID, stage string, version int) (*domain.CourseStageSnapshot, error) {
	var snap domain.CourseStageSnapshot
	err := dbc.DB(r.db).
		Where("course_id = ? AND stage = ? AND version = ?", courseID, stage, version).
		Limit(1).
		Find(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == uuid.Nil {
		return nil, nil
	}
	return &snap, nil
}

func (r *stageSnapshotRepo) LatestVersions(dbc dbctx.Context, courseID uuid.UUID) (map[string]int, error) {
	type row struct {
		Stage   string
		Version int
	}
	var rows []row
	err := dbc.DB(r.db).
		Model(&domain.CourseStageSnapshot{}).
		Select("stage, MAX(version) AS version").
		Where("course_id = ?", courseID).
		Group("stage").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Stage] = r.Version
	}
	return out, nil
}
