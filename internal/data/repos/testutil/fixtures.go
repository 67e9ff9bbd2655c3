package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/domain/jobs"
)

func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) *domain.Course {
	tb.Helper()
	now := time.Now().UTC()
	c := &domain.Course{
		ID:               uuid.New(),
		OwnerUserID:      ownerUserID,
		Title:            "Ordering coffee",
		SourceText:       "A customer orders a coffee.",
		TargetLanguage:   "es",
		NativeLanguage:   "en",
		ProficiencyLevel: "A1",
		Status:           courses.CourseStatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return c
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID uuid.UUID, status string, createdAt time.Time) *domain.JobRun {
	tb.Helper()
	id := courseID
	j := &domain.JobRun{
		ID:         uuid.New(),
		JobType:    "course_audio",
		EntityType: "course",
		EntityID:   &id,
		Status:     status,
		Stage:      status,
		Payload:    datatypes.JSON([]byte("{}")),
		Result:     datatypes.JSON([]byte("{}")),
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	if status == jobs.StatusRunning {
		hb := createdAt
		j.HeartbeatAt = &hb
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}
