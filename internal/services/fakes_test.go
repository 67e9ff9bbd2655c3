package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/data/repos/testutil"
	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/modules/course/audio"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	m.puts++
	return "https://media.test/" + key, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type fakeExtractor struct {
	exchanges []courses.DialogueExchange
	prompts   []string
}

func (f *fakeExtractor) Extract(_ context.Context, _ *domain.Course, prompt string) ([]courses.DialogueExchange, error) {
	f.prompts = append(f.prompts, prompt)
	out := make([]courses.DialogueExchange, len(f.exchanges))
	copy(out, f.exchanges)
	return out, nil
}

func coffeeExchanges() []courses.DialogueExchange {
	return []courses.DialogueExchange{
		{
			Order: 1, SpeakerName: "Lucia", RelationshipName: "barista", SpeakerVoiceID: "es-ES-Neural2-A",
			TextL2: "¿Qué quieres tomar?", TranslationL1: "What would you like?",
			VocabularyItems: []courses.VocabularyItem{{TextL2: "tomar", TranslationL1: "to have"}},
		},
		{
			Order: 2, SpeakerName: "Mateo", RelationshipName: "friend", SpeakerVoiceID: "es-ES-Neural2-B",
			TextL2: "Un café, por favor", TranslationL1: "A coffee, please",
			VocabularyItems: []courses.VocabularyItem{{TextL2: "café", TranslationL1: "coffee"}},
		},
	}
}

type harness struct {
	db        *gorm.DB
	log       *logger.Logger
	courses   repos.CourseRepo
	snapshots repos.StageSnapshotRepo
	jobRuns   repos.JobRunRepo
	lines     repos.LineRenderingRepo
	voices    VoiceCatalog
	cache     JobStatusCache
	jobs      JobService
	extractor *fakeExtractor
	store     *memStore
	pipeline  CoursePipelineService
	courseSvc CourseService
	lineSvc   LineRenderingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:        testutil.DB(t),
		log:       testutil.Logger(t),
		extractor: &fakeExtractor{exchanges: coffeeExchanges()},
		store:     newMemStore(),
	}
	h.courses = repos.NewCourseRepo(h.db, h.log)
	h.snapshots = repos.NewStageSnapshotRepo(h.db, h.log)
	h.jobRuns = repos.NewJobRunRepo(h.db, h.log)
	h.lines = repos.NewLineRenderingRepo(h.db, h.log)
	v, err := NewVoiceCatalog(h.log, time.Minute)
	if err != nil {
		t.Fatalf("NewVoiceCatalog: %v", err)
	}
	h.voices = v
	h.cache = NewMemoryJobStatusCache(time.Minute)
	h.jobs = NewJobService(h.db, h.log, h.jobRuns, NewStatusCacheNotifier(h.cache, 1000), h.cache, 1000)
	h.pipeline = NewCoursePipelineService(h.db, h.log, h.courses, h.snapshots, h.jobRuns, h.jobs, h.extractor, h.voices)
	h.courseSvc = NewCourseService(h.db, h.log, h.courses)
	orch := audio.NewOrchestrator(h.log, NewMockSpeechProvider(audio.DefaultFormat), audio.OrchestratorOptions{
		Concurrency:    2,
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})
	h.lineSvc = NewLineRenderingService(h.db, h.log, h.courses, h.lines, h.voices, orch, h.store)
	return h
}

func (h *harness) course(t *testing.T) *domain.Course {
	t.Helper()
	c, err := h.courseSvc.Create(context.Background(), uuid.New(), CreateCourseInput{
		Title:            "Ordering coffee",
		SourceText:       "A customer orders a coffee at a bar in Madrid.",
		TargetLanguage:   "es",
		ProficiencyLevel: "A2",
	})
	if err != nil {
		t.Fatalf("Create course: %v", err)
	}
	return c
}

// scripted runs every stage up to the script.
func (h *harness) scripted(t *testing.T) *domain.Course {
	t.Helper()
	ctx := context.Background()
	c := h.course(t)
	if _, err := h.pipeline.BuildPrompt(ctx, c.ID); err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if _, err := h.pipeline.GenerateDialogue(ctx, c.ID, ""); err != nil {
		t.Fatalf("GenerateDialogue: %v", err)
	}
	if _, err := h.pipeline.BuildScriptConfig(ctx, c.ID); err != nil {
		t.Fatalf("BuildScriptConfig: %v", err)
	}
	if _, err := h.pipeline.GenerateScript(ctx, c.ID); err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	return c
}
