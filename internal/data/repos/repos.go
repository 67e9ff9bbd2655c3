package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos/courses"
	"github.com/yungbote/convolab-backend/internal/data/repos/jobs"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type CourseRepo = courses.CourseRepo
type StageSnapshotRepo = courses.StageSnapshotRepo
type LineRenderingRepo = courses.LineRenderingRepo

type JobRunRepo = jobs.JobRunRepo

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return courses.NewCourseRepo(db, baseLog)
}
func NewStageSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) StageSnapshotRepo {
	return courses.NewStageSnapshotRepo(db, baseLog)
}
func NewLineRenderingRepo(db *gorm.DB, baseLog *logger.Logger) LineRenderingRepo {
	return courses.NewLineRenderingRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
