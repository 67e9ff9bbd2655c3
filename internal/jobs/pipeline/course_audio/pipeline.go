package course_audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/domain/courses"
	jobrt "github.com/yungbote/convolab-backend/internal/jobs/runtime"
	"github.com/yungbote/convolab-backend/internal/modules/course/audio"
	"github.com/yungbote/convolab-backend/internal/modules/course/stages"
	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/services"
)

var errSuperseded = errors.New("audio job is no longer the course's active job")

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	ctx, span := observability.StartSpan(jc.Ctx, "job.course_audio",
		attribute.String("job_id", jc.Job.ID.String()),
		attribute.Int("attempt", jc.Job.Attempts),
	)
	courseID, ok := jc.PayloadUUID("course_id")
	if !ok {
		err := apierr.JobFailure(fmt.Errorf("payload is missing course_id"))
		observability.EndSpan(span, err)
		jc.Fail(string(stages.StageAudio), err)
		return nil
	}
	span.SetAttributes(attribute.String("course_id", courseID.String()))

	out, err := p.run(ctx, jc, courseID)
	observability.EndSpan(span, err)
	if err != nil {
		// shutdown: leave the run for a stale reclaim instead of failing it
		if jc.Ctx.Err() != nil && errors.Is(err, jc.Ctx.Err()) {
			p.log.Warn("audio job interrupted", "job_id", jc.Job.ID, "course_id", courseID)
			return nil
		}
		p.fail(jc, courseID, err)
		return nil
	}
	jc.Succeed("done", out)
	return nil
}

type result struct {
	AudioURL        string   `json:"audioUrl"`
	TotalDurationMs int64    `json:"totalDurationMs"`
	Variants        []string `json:"variants"`
	SnapshotVersion int      `json:"snapshotVersion"`
}

func (p *Pipeline) run(ctx context.Context, jc *jobrt.Context, courseID uuid.UUID) (*result, error) {
	jobID := jc.Job.ID
	dbc := dbctx.Context{Ctx: ctx}

	course, err := p.courses.GetByID(dbc, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, apierr.JobFailure(fmt.Errorf("course %s not found", courseID))
	}
	if course.ActiveJobID == nil || *course.ActiveJobID != jobID {
		return nil, apierr.JobFailure(errSuperseded)
	}

	jc.Progress("loading", 0, "Loading script")
	script, scriptVersion, err := p.loadScript(dbc, courseID, jc)
	if err != nil {
		return nil, err
	}

	stopHeartbeat := p.heartbeat(ctx, jc)
	defer stopHeartbeat()

	speech := courses.CountSpeech(script.Units)
	jc.Progress("synthesizing", 0, fmt.Sprintf("Synthesizing %d lines", speech))
	var (
		mu   sync.Mutex
		last = -1
	)
	assemblies, err := p.orch.AssembleVariants(ctx, script.Units, p.opts.Speeds, p.opts.Format, func(done, total int) {
		if total == 0 {
			return
		}
		pct := done * 100 / total
		mu.Lock()
		defer mu.Unlock()
		if pct <= last {
			return
		}
		last = pct
		jc.Progress("synthesizing", pct, fmt.Sprintf("Synthesized %d of %d lines", done, total))
	})
	if err != nil {
		return nil, err
	}

	jc.Progress("uploading", 100, "Uploading audio")
	snap, uploaded, err := p.upload(ctx, course, jobID, scriptVersion, assemblies)
	if err != nil {
		p.cleanup(uploaded)
		return nil, err
	}

	version, err := p.commit(ctx, course.ID, jobID, snap)
	if err != nil {
		p.cleanup(uploaded)
		return nil, err
	}
	p.log.Info("course audio ready",
		"course_id", course.ID,
		"job_id", jobID,
		"variants", len(snap.Variants),
		"total_duration_ms", snap.TotalDurationMs,
	)
	keys := make([]string, 0, len(snap.Variants))
	for k := range snap.Variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &result{
		AudioURL:        snap.AudioURL,
		TotalDurationMs: snap.TotalDurationMs,
		Variants:        keys,
		SnapshotVersion: version,
	}, nil
}

// loadScript prefers the version pinned in the payload, so a retry renders
// exactly the script it was enqueued for.
func (p *Pipeline) loadScript(dbc dbctx.Context, courseID uuid.UUID, jc *jobrt.Context) (stages.ScriptSnapshot, int, error) {
	var (
		row *domain.CourseStageSnapshot
		err error
	)
	if v, ok := jc.PayloadInt("script_version"); ok && v > 0 {
		row, err = p.snapshots.GetVersion(dbc, courseID, string(stages.StageScript), v)
	} else {
		row, err = p.snapshots.Latest(dbc, courseID, string(stages.StageScript))
	}
	if err != nil {
		return stages.ScriptSnapshot{}, 0, fmt.Errorf("load script snapshot: %w", err)
	}
	if row == nil {
		return stages.ScriptSnapshot{}, 0, apierr.JobFailure(fmt.Errorf("script snapshot not found"))
	}
	script, err := stages.Decode[stages.ScriptSnapshot](row.Payload)
	if err != nil {
		return stages.ScriptSnapshot{}, 0, apierr.JobFailure(err)
	}
	return script, row.Version, nil
}

func (p *Pipeline) heartbeat(ctx context.Context, jc *jobrt.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(p.opts.HeartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := jc.Heartbeat(); err != nil {
					p.log.Warn("heartbeat failed", "job_id", jc.Job.ID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Pipeline) upload(ctx context.Context, course *domain.Course, jobID uuid.UUID, scriptVersion int, assemblies map[string]audio.Assembly) (stages.AudioSnapshot, []string, error) {
	snap := stages.AudioSnapshot{
		Variants:      make(map[string]stages.AudioVariant, len(assemblies)),
		ScriptVersion: scriptVersion,
		JobID:         jobID.String(),
	}
	keys := make([]string, 0, len(assemblies))
	for k := range assemblies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var uploaded []string
	for _, speedKey := range keys {
		asm := assemblies[speedKey]
		if err := audio.CheckContiguous(asm.Timeline); err != nil {
			return snap, uploaded, apierr.JobFailure(fmt.Errorf("speed %s: %w", speedKey, err))
		}
		objectKey := services.CourseAudioKey(course.ID.String(), jobID.String(), speedKey)
		url, err := p.store.Put(ctx, objectKey, "audio/wav", bytes.NewReader(asm.Audio))
		if err != nil {
			return snap, uploaded, apierr.External(string(stages.StageAudio), fmt.Errorf("upload %s: %w", objectKey, err))
		}
		uploaded = append(uploaded, objectKey)
		snap.Variants[speedKey] = stages.AudioVariant{
			Speed:           asm.Speed,
			AudioURL:        url,
			TotalDurationMs: asm.TotalDurationMs,
			Timeline:        asm.Timeline,
		}
	}

	// the normal-speed rendering is the course's primary audio
	primary, ok := snap.Variants[audio.SpeedKey(1)]
	if !ok && len(keys) > 0 {
		primary = snap.Variants[keys[len(keys)-1]]
	}
	snap.AudioURL = primary.AudioURL
	snap.TotalDurationMs = primary.TotalDurationMs
	return snap, uploaded, nil
}

// commit stores the audio snapshot and flips the course to ready in one
// transaction, only while this job is still the active one.
func (p *Pipeline) commit(ctx context.Context, courseID, jobID uuid.UUID, snap stages.AudioSnapshot) (int, error) {
	payload, err := stages.Encode(snap)
	if err != nil {
		return 0, err
	}
	version := 0
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := p.courses.UpdateFieldsIfActiveJob(dbc, courseID, jobID, map[string]interface{}{
			"status":        courses.CourseStatusReady,
			"audio_url":     snap.AudioURL,
			"active_job_id": nil,
			"last_error":    "",
			"failed_stage":  "",
		})
		if err != nil {
			return fmt.Errorf("update course: %w", err)
		}
		if !ok {
			return apierr.JobFailure(errSuperseded)
		}
		row, err := p.snapshots.Append(dbc, courseID, string(stages.StageAudio), payload)
		if err != nil {
			return fmt.Errorf("store audio snapshot: %w", err)
		}
		version = row.Version
		return nil
	})
	return version, err
}

func (p *Pipeline) cleanup(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, k := range keys {
		if err := p.store.Delete(ctx, k); err != nil {
			p.log.Warn("delete partial audio failed", "key", k, "error", err)
		}
	}
}

// fail records the error on the job and, if the job still owns the course,
// moves the course to error. Stage snapshots are left as they were.
func (p *Pipeline) fail(jc *jobrt.Context, courseID uuid.UUID, err error) {
	stage := apierr.StageOf(err)
	if stage == "" {
		stage = string(stages.StageAudio)
	}
	p.log.Warn("audio job failed", "job_id", jc.Job.ID, "course_id", courseID, "stage", stage, "error", err)
	jc.Fail(stage, err)

	if errors.Is(err, errSuperseded) {
		return
	}
	p.markCourseFailed(context.Background(), courseID, jc.Job.ID, stage, err.Error())
}

// Abandon releases the course of a job the worker failed after it stopped
// heartbeating on its last attempt.
func (p *Pipeline) Abandon(ctx context.Context, job *domain.JobRun) {
	if job == nil || job.EntityID == nil {
		return
	}
	p.log.Warn("audio job abandoned", "job_id", job.ID, "course_id", *job.EntityID, "attempts", job.Attempts)
	p.markCourseFailed(ctx, *job.EntityID, job.ID, string(stages.StageAudio), job.Error)
}

// markCourseFailed only touches the course while jobID is still its active job.
func (p *Pipeline) markCourseFailed(ctx context.Context, courseID, jobID uuid.UUID, stage, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, uerr := p.courses.UpdateFieldsIfActiveJob(dbctx.Context{Ctx: ctx}, courseID, jobID, map[string]interface{}{
		"status":        courses.CourseStatusError,
		"active_job_id": nil,
		"last_error":    msg,
		"failed_stage":  stage,
	}); uerr != nil {
		p.log.Error("mark course failed", "course_id", courseID, "error", uerr)
	}
}
