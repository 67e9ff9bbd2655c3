package course_audio

import (
	"context"
	"io"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/data/repos/testutil"
	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/domain/courses"
	jobstatus "github.com/yungbote/convolab-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/convolab-backend/internal/jobs/runtime"
	"github.com/yungbote/convolab-backend/internal/jobs/worker"
	"github.com/yungbote/convolab-backend/internal/modules/course/audio"
	"github.com/yungbote/convolab-backend/internal/modules/course/stages"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/httpx"
	"github.com/yungbote/convolab-backend/internal/services"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return "https://media.test/" + key, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// rejectingSynth fails every request with a non-retryable provider error.
type rejectingSynth struct{}

func (rejectingSynth) Synthesize(context.Context, audio.SynthesisRequest) (audio.Segment, error) {
	return audio.Segment{}, &httpx.StatusError{Provider: "fake", StatusCode: http.StatusBadRequest, Body: "bad voice"}
}

type fixture struct {
	db        *gorm.DB
	courses   repos.CourseRepo
	snapshots repos.StageSnapshotRepo
	jobRuns   repos.JobRunRepo
	jobs      services.JobService
	cache     services.JobStatusCache
	store     *memStore
	worker    *worker.Worker
}

func newFixture(t *testing.T, synth audio.Synthesizer) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		db:        db,
		courses:   repos.NewCourseRepo(db, log),
		snapshots: repos.NewStageSnapshotRepo(db, log),
		jobRuns:   repos.NewJobRunRepo(db, log),
		cache:     services.NewMemoryJobStatusCache(time.Minute),
		store:     &memStore{objects: map[string][]byte{}},
	}
	notify := services.NewStatusCacheNotifier(f.cache, 1000)
	f.jobs = services.NewJobService(db, log, f.jobRuns, notify, f.cache, 1000)

	orch := audio.NewOrchestrator(log, synth, audio.OrchestratorOptions{
		Concurrency:    3,
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})
	reg := jobrt.NewRegistry()
	if err := reg.Register(New(db, log, f.courses, f.snapshots, orch, f.store, Options{Speeds: []float64{0.75, 1}})); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.worker = worker.NewWorker(db, log, f.jobRuns, reg, notify, worker.Config{Concurrency: 1, MaxAttempts: 3, StaleRunning: time.Minute})
	return f
}

func exchanges() []courses.DialogueExchange {
	return []courses.DialogueExchange{
		{Order: 1, SpeakerName: "Lucia", RelationshipName: "barista", SpeakerVoiceID: "es-ES-Neural2-A",
			TextL2: "¿Qué quieres?", TranslationL1: "What do you want?",
			VocabularyItems: []courses.VocabularyItem{{TextL2: "quieres", TranslationL1: "you want"}}},
		{Order: 2, SpeakerName: "Mateo", RelationshipName: "friend", SpeakerVoiceID: "es-ES-Neural2-B",
			TextL2: "Un café, por favor", TranslationL1: "A coffee, please"},
	}
}

// seedScripted stores exchanges, config and script snapshots for a new course.
func (f *fixture) seedScripted(t *testing.T) (*domain.Course, int) {
	t.Helper()
	ctx := context.Background()
	c := testutil.SeedCourse(t, ctx, f.db, uuid.New())
	dbc := dbctx.Context{Ctx: ctx}

	ex, err := stages.AdvanceToExchanges(1, "", exchanges())
	if err != nil {
		t.Fatalf("AdvanceToExchanges: %v", err)
	}
	cfg, err := stages.AdvanceToConfig(*c, 1, "")
	if err != nil {
		t.Fatalf("AdvanceToConfig: %v", err)
	}
	script, err := stages.AdvanceToScript(ex, 1, cfg, 1)
	if err != nil {
		t.Fatalf("AdvanceToScript: %v", err)
	}
	for stage, v := range map[stages.Stage]any{stages.StageExchanges: ex, stages.StageConfig: cfg} {
		b, _ := stages.Encode(v)
		if _, err := f.snapshots.Append(dbc, c.ID, string(stage), b); err != nil {
			t.Fatalf("Append %s: %v", stage, err)
		}
	}
	b, _ := stages.Encode(script)
	row, err := f.snapshots.Append(dbc, c.ID, string(stages.StageScript), b)
	if err != nil {
		t.Fatalf("Append script: %v", err)
	}
	return c, row.Version
}

func (f *fixture) enqueue(t *testing.T, c *domain.Course, scriptVersion int) *domain.JobRun {
	t.Helper()
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	job, err := f.jobs.Enqueue(dbc, c.OwnerUserID, services.JobTypeCourseAudio, services.EntityTypeCourse, &c.ID, map[string]any{
		"course_id":      c.ID.String(),
		"script_version": scriptVersion,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := f.courses.UpdateFields(dbc, c.ID, map[string]interface{}{
		"status":        courses.CourseStatusGenerating,
		"active_job_id": job.ID,
	}); err != nil {
		t.Fatalf("activate job: %v", err)
	}
	return job
}

func (f *fixture) runOne(t *testing.T) {
	t.Helper()
	ran, err := f.worker.RunOnce(context.Background(), 1)
	if err != nil || !ran {
		t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
	}
}

func (f *fixture) audioSnapshot(t *testing.T, courseID uuid.UUID) (stages.AudioSnapshot, bool) {
	t.Helper()
	row, err := f.snapshots.Latest(dbctx.Context{Ctx: context.Background()}, courseID, string(stages.StageAudio))
	if err != nil {
		t.Fatalf("Latest audio: %v", err)
	}
	if row == nil {
		return stages.AudioSnapshot{}, false
	}
	snap, err := stages.Decode[stages.AudioSnapshot](row.Payload)
	if err != nil {
		t.Fatalf("Decode audio: %v", err)
	}
	return snap, true
}

func TestCourseAudioRendersEverySpeed(t *testing.T) {
	f := newFixture(t, services.NewMockSpeechProvider(audio.DefaultFormat))
	ctx := context.Background()
	c, scriptVersion := f.seedScripted(t)
	job := f.enqueue(t, c, scriptVersion)

	f.runOne(t)

	got, _ := f.jobRuns.GetByID(dbctx.Context{Ctx: ctx}, job.ID)
	if got.Status != jobstatus.StatusSucceeded || got.Progress != 100 {
		t.Fatalf("job: status=%s progress=%d error=%s", got.Status, got.Progress, got.Error)
	}
	course, _ := f.courses.GetByID(dbctx.Context{Ctx: ctx}, c.ID)
	if course.Status != courses.CourseStatusReady || course.ActiveJobID != nil || course.AudioURL == "" {
		t.Fatalf("course: %+v", course)
	}

	snap, ok := f.audioSnapshot(t, c.ID)
	if !ok {
		t.Fatalf("audio snapshot missing")
	}
	if len(snap.Variants) != 2 || snap.ScriptVersion != scriptVersion || snap.JobID != job.ID.String() {
		t.Fatalf("snapshot: variants=%d script=%d job=%s", len(snap.Variants), snap.ScriptVersion, snap.JobID)
	}
	normal, slow := snap.Variants["1.00"], snap.Variants["0.75"]
	if snap.AudioURL != normal.AudioURL || course.AudioURL != normal.AudioURL {
		t.Fatalf("primary audio should be the 1.00 variant")
	}
	for key, v := range snap.Variants {
		if err := audio.CheckContiguous(v.Timeline); err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if audio.TotalDurationMs(v.Timeline) != v.TotalDurationMs {
			t.Fatalf("%s: total mismatch", key)
		}
	}
	if slow.TotalDurationMs <= normal.TotalDurationMs {
		t.Fatalf("slow variant should be longer: slow=%d normal=%d", slow.TotalDurationMs, normal.TotalDurationMs)
	}
	if f.store.count() != 2 {
		t.Fatalf("objects: want=2 got=%d", f.store.count())
	}

	st, err := f.jobs.GetStatus(ctx, job.ID)
	if err != nil || st.State != services.JobStateCompleted || !st.Terminal {
		t.Fatalf("status: %+v err=%v", st, err)
	}
}

func TestCourseAudioFailureLeavesSnapshotsAlone(t *testing.T) {
	f := newFixture(t, rejectingSynth{})
	ctx := context.Background()
	c, scriptVersion := f.seedScripted(t)
	job := f.enqueue(t, c, scriptVersion)

	f.runOne(t)

	got, _ := f.jobRuns.GetByID(dbctx.Context{Ctx: ctx}, job.ID)
	if got.Status != jobstatus.StatusFailed || got.Error == "" || got.Stage != "audio" {
		t.Fatalf("job: status=%s stage=%s error=%q", got.Status, got.Stage, got.Error)
	}
	course, _ := f.courses.GetByID(dbctx.Context{Ctx: ctx}, c.ID)
	if course.Status != courses.CourseStatusError || course.ActiveJobID != nil || course.FailedStage != "audio" {
		t.Fatalf("course: status=%s active=%v stage=%s", course.Status, course.ActiveJobID, course.FailedStage)
	}
	if _, ok := f.audioSnapshot(t, c.ID); ok {
		t.Fatalf("failed job must not write an audio snapshot")
	}
	versions, _ := f.snapshots.LatestVersions(dbctx.Context{Ctx: ctx}, c.ID)
	if versions[string(stages.StageScript)] != scriptVersion {
		t.Fatalf("script snapshot changed")
	}
	if f.store.count() != 0 {
		t.Fatalf("no audio should be uploaded")
	}

	// failed is terminal; nothing is left to claim
	ran, err := f.worker.RunOnce(ctx, 1)
	if err != nil || ran {
		t.Fatalf("failed job was reclaimed: ran=%v err=%v", ran, err)
	}
}

func TestCourseAudioRerunIsIdempotent(t *testing.T) {
	f := newFixture(t, services.NewMockSpeechProvider(audio.DefaultFormat))
	c, scriptVersion := f.seedScripted(t)

	f.enqueue(t, c, scriptVersion)
	f.runOne(t)
	first, _ := f.audioSnapshot(t, c.ID)

	f.enqueue(t, c, scriptVersion)
	f.runOne(t)
	second, _ := f.audioSnapshot(t, c.ID)

	for key := range first.Variants {
		if !reflect.DeepEqual(first.Variants[key].Timeline, second.Variants[key].Timeline) {
			t.Fatalf("%s: timelines differ between runs of the same script", key)
		}
	}
	if first.JobID == second.JobID {
		t.Fatalf("second run should record its own job")
	}
}

func TestSupersededJobDoesNotTouchCourse(t *testing.T) {
	f := newFixture(t, services.NewMockSpeechProvider(audio.DefaultFormat))
	ctx := context.Background()
	c, scriptVersion := f.seedScripted(t)
	job := f.enqueue(t, c, scriptVersion)
	other := uuid.New()
	if err := f.courses.UpdateFields(dbctx.Context{Ctx: ctx}, c.ID, map[string]interface{}{"active_job_id": other}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	f.runOne(t)

	got, _ := f.jobRuns.GetByID(dbctx.Context{Ctx: ctx}, job.ID)
	if got.Status != jobstatus.StatusFailed {
		t.Fatalf("job: want failed got=%s", got.Status)
	}
	course, _ := f.courses.GetByID(dbctx.Context{Ctx: ctx}, c.ID)
	if course.Status != courses.CourseStatusGenerating || course.ActiveJobID == nil || *course.ActiveJobID != other {
		t.Fatalf("course should be untouched: %+v", course)
	}
}

func TestAbandonedJobReleasesCourse(t *testing.T) {
	f := newFixture(t, services.NewMockSpeechProvider(audio.DefaultFormat))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	c, scriptVersion := f.seedScripted(t)
	job := f.enqueue(t, c, scriptVersion)

	// a worker claimed the last attempt and died without a heartbeat
	if err := f.jobRuns.UpdateFields(dbc, job.ID, map[string]interface{}{
		"status":       jobstatus.StatusRunning,
		"attempts":     3,
		"heartbeat_at": time.Now().UTC().Add(-24 * time.Hour),
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	ran, err := f.worker.RunOnce(ctx, 1)
	if err != nil || ran {
		t.Fatalf("RunOnce: want ran=false got ran=%v err=%v", ran, err)
	}
	got, _ := f.jobRuns.GetByID(dbc, job.ID)
	if got.Status != jobstatus.StatusFailed || got.Error == "" {
		t.Fatalf("job: status=%s error=%q", got.Status, got.Error)
	}
	course, _ := f.courses.GetByID(dbc, c.ID)
	if course.Status != courses.CourseStatusError || course.ActiveJobID != nil || course.FailedStage != "audio" || course.LastError == "" {
		t.Fatalf("course: status=%s active=%v stage=%s last_error=%q", course.Status, course.ActiveJobID, course.FailedStage, course.LastError)
	}
	busy, err := f.jobRuns.HasRunnableForEntity(dbc, services.EntityTypeCourse, c.ID, services.JobTypeCourseAudio)
	if err != nil || busy {
		t.Fatalf("HasRunnableForEntity: want=false got=%v err=%v", busy, err)
	}
	st, err := f.jobs.GetStatus(ctx, job.ID)
	if err != nil || st.State != services.JobStateFailed || !st.Terminal {
		t.Fatalf("status: %+v err=%v", st, err)
	}

	// the course can be generated again
	next := f.enqueue(t, c, scriptVersion)
	f.runOne(t)
	if got, _ := f.jobRuns.GetByID(dbc, next.ID); got.Status != jobstatus.StatusSucceeded {
		t.Fatalf("next job: status=%s error=%s", got.Status, got.Error)
	}
}
