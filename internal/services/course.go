package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/modules/course/scriptcfg"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type CreateCourseInput struct {
	Title            string `json:"title"`
	SourceText       string `json:"sourceText"`
	TargetLanguage   string `json:"targetLanguage"`
	NativeLanguage   string `json:"nativeLanguage"`
	ProficiencyLevel string `json:"proficiencyLevel"`
}

type CourseService interface {
	Create(ctx context.Context, ownerUserID uuid.UUID, in CreateCourseInput) (*domain.Course, error)
	Get(ctx context.Context, courseID uuid.UUID) (*domain.Course, error)
}

type courseService struct {
	db         *gorm.DB
	log        *logger.Logger
	courseRepo repos.CourseRepo
}

func NewCourseService(db *gorm.DB, baseLog *logger.Logger, courseRepo repos.CourseRepo) CourseService {
	return &courseService{
		db:         db,
		log:        baseLog.With("service", "CourseService"),
		courseRepo: courseRepo,
	}
}

func (s *courseService) Create(ctx context.Context, ownerUserID uuid.UUID, in CreateCourseInput) (*domain.Course, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.SourceText = strings.TrimSpace(in.SourceText)
	in.TargetLanguage = strings.ToLower(strings.TrimSpace(in.TargetLanguage))
	in.NativeLanguage = strings.ToLower(strings.TrimSpace(in.NativeLanguage))
	in.ProficiencyLevel = strings.TrimSpace(in.ProficiencyLevel)

	if in.Title == "" && in.SourceText == "" {
		return nil, apierr.Validationf("", "title or sourceText is required")
	}
	if _, ok := scriptcfg.SupportedLanguages()[in.TargetLanguage]; !ok {
		return nil, apierr.Validationf("", "unsupported target language %q", in.TargetLanguage)
	}
	if in.ProficiencyLevel != "" {
		if _, ok := scriptcfg.LevelBand(in.ProficiencyLevel); !ok {
			return nil, apierr.Validationf("", "unknown proficiency level %q", in.ProficiencyLevel)
		}
	}
	if in.NativeLanguage == "" {
		in.NativeLanguage = "en"
	}

	now := time.Now().UTC()
	course := &domain.Course{
		ID:               uuid.New(),
		OwnerUserID:      ownerUserID,
		Title:            in.Title,
		SourceText:       in.SourceText,
		TargetLanguage:   in.TargetLanguage,
		NativeLanguage:   in.NativeLanguage,
		ProficiencyLevel: in.ProficiencyLevel,
		Status:           courses.CourseStatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := s.courseRepo.Create(dbctx.Context{Ctx: ctx}, course); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	s.log.Info("course created", "course_id", course.ID, "owner_user_id", ownerUserID, "target_language", course.TargetLanguage)
	return course, nil
}

func (s *courseService) Get(ctx context.Context, courseID uuid.UUID) (*domain.Course, error) {
	return loadCourse(ctx, s.courseRepo, courseID)
}

func loadCourse(ctx context.Context, repo repos.CourseRepo, courseID uuid.UUID) (*domain.Course, error) {
	c, err := repo.GetByID(dbctx.Context{Ctx: ctx}, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if c == nil {
		return nil, apierr.NotFound("course_not_found", fmt.Errorf("course %s not found", courseID))
	}
	return c, nil
}
