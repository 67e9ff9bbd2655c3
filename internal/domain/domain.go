package domain

import (
	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/domain/jobs"
)

type (
	Course              = courses.Course
	CourseStageSnapshot = courses.CourseStageSnapshot
	LineRendering       = courses.LineRendering

	DialogueExchange   = courses.DialogueExchange
	VocabularyItem     = courses.VocabularyItem
	ScriptConfig       = courses.ScriptConfig
	NarrationTemplates = courses.NarrationTemplates
	ScriptUnit         = courses.ScriptUnit
	UnitType           = courses.UnitType
	TimelineEntry      = courses.TimelineEntry

	JobRun = jobs.JobRun
)

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{
		&Course{},
		&CourseStageSnapshot{},
		&LineRendering{},
		&JobRun{},
	}
}
