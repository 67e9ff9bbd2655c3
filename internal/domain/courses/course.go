package courses

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	CourseStatusDraft      = "draft"
	CourseStatusGenerating = "generating"
	CourseStatusReady      = "ready"
	CourseStatusError      = "error"
)

type Course struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID      uuid.UUID  `gorm:"type:uuid;index" json:"owner_user_id"`
	Title            string     `gorm:"column:title;not null" json:"title"`
	SourceText       string     `gorm:"column:source_text;type:text" json:"source_text"`
	TargetLanguage   string     `gorm:"column:target_language;not null" json:"target_language"`
	NativeLanguage   string     `gorm:"column:native_language;not null" json:"native_language"`
	ProficiencyLevel string     `gorm:"column:proficiency_level" json:"proficiency_level"`
	Status           string     `gorm:"column:status;not null;index" json:"status"`
	AudioURL         string     `gorm:"column:audio_url" json:"audio_url,omitempty"`
	ActiveJobID      *uuid.UUID `gorm:"type:uuid;column:active_job_id;index" json:"active_job_id,omitempty"`
	LastError        string     `gorm:"column:last_error" json:"last_error,omitempty"`
	FailedStage      string     `gorm:"column:failed_stage" json:"failed_stage,omitempty"`
	CreatedAt        time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

// CourseStageSnapshot is append-only: the highest Version per (course, stage)
// is the current one.
type CourseStageSnapshot struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_course_stage_version" json:"course_id"`
	Stage     string         `gorm:"column:stage;not null;uniqueIndex:idx_course_stage_version" json:"stage"`
	Version   int            `gorm:"column:version;not null;uniqueIndex:idx_course_stage_version" json:"version"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (CourseStageSnapshot) TableName() string { return "course_stage_snapshot" }

type LineRendering struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	UnitIndex int       `gorm:"column:unit_index;not null" json:"unit_index"`
	Text      string    `gorm:"column:text;type:text;not null" json:"text"`
	Speed     float64   `gorm:"column:speed;not null" json:"speed"`
	VoiceID   string    `gorm:"column:voice_id;not null" json:"voice_id"`
	AudioURL  string    `gorm:"column:audio_url;not null" json:"audio_url"`
	ObjectKey string    `gorm:"column:object_key;not null" json:"-"`
	CacheKey  string    `gorm:"column:cache_key;not null;index" json:"-"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (LineRendering) TableName() string { return "line_rendering" }
