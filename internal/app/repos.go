package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type Repos struct {
	Course        repos.CourseRepo
	StageSnapshot repos.StageSnapshotRepo
	LineRendering repos.LineRenderingRepo
	JobRun        repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Course:        repos.NewCourseRepo(db, log),
		StageSnapshot: repos.NewStageSnapshotRepo(db, log),
		LineRendering: repos.NewLineRenderingRepo(db, log),
		JobRun:        repos.NewJobRunRepo(db, log),
	}
}
