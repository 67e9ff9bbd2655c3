package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/modules/course/audio"
	"github.com/yungbote/convolab-backend/internal/modules/course/compiler"
	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

const stageLines = "lines"

type SynthesizeLineInput struct {
	Text      string  `json:"text"`
	VoiceID   string  `json:"voiceId"`
	Speed     float64 `json:"speed"`
	UnitIndex int     `json:"unitIndex"`
}

// LineRenderingService renders single script lines on demand, e.g. when an
// operator previews an edited exchange.
type LineRenderingService interface {
	SynthesizeLine(ctx context.Context, courseID uuid.UUID, in SynthesizeLineInput) (*domain.LineRendering, error)
	ListLineRenderings(ctx context.Context, courseID uuid.UUID) ([]*domain.LineRendering, error)
	DeleteLineRendering(ctx context.Context, renderingID uuid.UUID) error
}

type lineRenderingService struct {
	db      *gorm.DB
	log     *logger.Logger
	courses repos.CourseRepo
	lines   repos.LineRenderingRepo
	voices  VoiceCatalog
	orch    *audio.Orchestrator
	store   ObjectStore
}

func NewLineRenderingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	lineRepo repos.LineRenderingRepo,
	voices VoiceCatalog,
	orch *audio.Orchestrator,
	store ObjectStore,
) LineRenderingService {
	return &lineRenderingService{
		db:      db,
		log:     baseLog.With("service", "LineRenderingService"),
		courses: courseRepo,
		lines:   lineRepo,
		voices:  voices,
		orch:    orch,
		store:   store,
	}
}

// LineCacheKey identifies a rendering by everything that affects its audio.
func LineCacheKey(unitIndex int, text, voiceID string, speed float64) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(unitIndex)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(voiceID))
	h.Write([]byte{0})
	h.Write([]byte(audio.SpeedKey(speed)))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *lineRenderingService) SynthesizeLine(ctx context.Context, courseID uuid.UUID, in SynthesizeLineInput) (*domain.LineRendering, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apierr.Validationf(stageLines, "text is required")
	}
	if in.Speed == 0 {
		in.Speed = 1
	}
	if in.Speed < 0 || in.Speed > 4 {
		return nil, apierr.Validationf(stageLines, "speed must be in (0, 4], got %v", in.Speed)
	}
	if in.UnitIndex < 0 {
		return nil, apierr.Validationf(stageLines, "unitIndex must be >= 0")
	}
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if _, err := s.voices.Find(ctx, in.VoiceID); err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	key := LineCacheKey(in.UnitIndex, text, in.VoiceID, in.Speed)
	if hit, err := s.lines.FindByCacheKey(dbc, course.ID, key); err != nil {
		return nil, fmt.Errorf("lookup line rendering: %w", err)
	} else if hit != nil {
		observability.Current().IncLineCache(true)
		s.log.Debug("line rendering cache hit", "course_id", course.ID, "rendering_id", hit.ID)
		return hit, nil
	}
	observability.Current().IncLineCache(false)

	seg, err := s.orch.SynthesizeOne(ctx, audio.SynthesisRequest{
		Text:    compiler.StripFurigana(text),
		VoiceID: in.VoiceID,
		Speed:   in.Speed,
	})
	if err != nil {
		return nil, apierr.WithStage(err, stageLines)
	}

	id := uuid.New()
	objectKey := LineRenderingKey(course.ID.String(), id.String())
	url, err := s.store.Put(ctx, objectKey, "audio/wav", bytes.NewReader(seg.Audio))
	if err != nil {
		return nil, apierr.External(stageLines, fmt.Errorf("upload line audio: %w", err))
	}
	row := &domain.LineRendering{
		ID:        id,
		CourseID:  course.ID,
		UnitIndex: in.UnitIndex,
		Text:      text,
		Speed:     in.Speed,
		VoiceID:   in.VoiceID,
		AudioURL:  url,
		ObjectKey: objectKey,
		CacheKey:  key,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.lines.Create(dbc, row); err != nil {
		_ = s.store.Delete(ctx, objectKey)
		return nil, fmt.Errorf("save line rendering: %w", err)
	}
	s.log.Info("line rendered",
		"course_id", course.ID,
		"rendering_id", id,
		"voice_id", in.VoiceID,
		"duration_ms", seg.DurationMs,
	)
	return row, nil
}

func (s *lineRenderingService) ListLineRenderings(ctx context.Context, courseID uuid.UUID) ([]*domain.LineRendering, error) {
	if _, err := loadCourse(ctx, s.courses, courseID); err != nil {
		return nil, err
	}
	return s.lines.ListByCourse(dbctx.Context{Ctx: ctx}, courseID)
}

func (s *lineRenderingService) DeleteLineRendering(ctx context.Context, renderingID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	row, err := s.lines.GetByID(dbc, renderingID)
	if err != nil {
		return fmt.Errorf("load line rendering: %w", err)
	}
	if row == nil {
		return apierr.NotFound("line_rendering_not_found", fmt.Errorf("line rendering %s not found", renderingID))
	}
	if err := s.store.Delete(ctx, row.ObjectKey); err != nil {
		return apierr.External(stageLines, fmt.Errorf("delete line audio: %w", err))
	}
	return s.lines.Delete(dbc, row.ID)
}
