package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/convolab-backend/internal/data/repos/testutil"
	jobstatus "github.com/yungbote/convolab-backend/internal/domain/jobs"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
)

func TestJobRunRepoClaimOrder(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	failed := testutil.SeedJob(t, ctx, db, uuid.New(), jobstatus.StatusFailed, now.Add(-4*time.Hour))
	staleRunning := testutil.SeedJob(t, ctx, db, uuid.New(), jobstatus.StatusRunning, now.Add(-3*time.Hour))
	queued := testutil.SeedJob(t, ctx, db, uuid.New(), jobstatus.StatusQueued, now.Add(-2*time.Hour))

	first, err := repo.ClaimNextRunnable(dbc, 3, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if first == nil || first.ID != staleRunning.ID {
		t.Fatalf("ClaimNextRunnable: want stale running job first got=%v", first)
	}
	if first.Attempts != 1 || first.Status != jobstatus.StatusRunning {
		t.Fatalf("claimed job: attempts=%d status=%s", first.Attempts, first.Status)
	}

	second, err := repo.ClaimNextRunnable(dbc, 3, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if second == nil || second.ID != queued.ID {
		t.Fatalf("ClaimNextRunnable: want queued job got=%v", second)
	}

	third, err := repo.ClaimNextRunnable(dbc, 3, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if third != nil {
		t.Fatalf("failed jobs must not be reclaimed, got=%v (failed=%v)", third.ID, failed.ID)
	}
}

func TestJobRunRepoStaleRunningRespectsMaxAttempts(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	j := testutil.SeedJob(t, ctx, db, uuid.New(), jobstatus.StatusRunning, time.Now().UTC().Add(-time.Hour))
	if err := repo.UpdateFields(dbc, j.ID, map[string]interface{}{"attempts": 3}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err := repo.ClaimNextRunnable(dbc, 3, time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if got != nil {
		t.Fatalf("exhausted job must not be reclaimed")
	}
}

func TestJobRunRepoFailExhaustedStale(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	courseID := uuid.New()
	exhausted := testutil.SeedJob(t, ctx, db, courseID, jobstatus.StatusRunning, now.Add(-24*time.Hour))
	retryable := testutil.SeedJob(t, ctx, db, uuid.New(), jobstatus.StatusRunning, now.Add(-24*time.Hour))
	fresh := testutil.SeedJob(t, ctx, db, uuid.New(), jobstatus.StatusRunning, now)
	for id, attempts := range map[uuid.UUID]int{exhausted.ID: 3, retryable.ID: 1, fresh.ID: 3} {
		if err := repo.UpdateFields(dbc, id, map[string]interface{}{"attempts": attempts}); err != nil {
			t.Fatalf("UpdateFields: %v", err)
		}
	}

	failed, err := repo.FailExhaustedStale(dbc, 3, time.Minute)
	if err != nil {
		t.Fatalf("FailExhaustedStale: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != exhausted.ID || failed[0].Status != jobstatus.StatusFailed {
		t.Fatalf("FailExhaustedStale: want only %s got=%v", exhausted.ID, failed)
	}
	got, err := repo.GetByID(dbc, exhausted.ID)
	if err != nil || got.Status != jobstatus.StatusFailed || got.Error == "" || got.LockedAt != nil {
		t.Fatalf("exhausted job after reap: job=%+v err=%v", got, err)
	}
	if ok, err := repo.HasRunnableForEntity(dbc, "course", courseID, "course_audio"); err != nil || ok {
		t.Fatalf("HasRunnableForEntity after reap: ok=%v err=%v", ok, err)
	}
	for _, id := range []uuid.UUID{retryable.ID, fresh.ID} {
		j, err := repo.GetByID(dbc, id)
		if err != nil || j.Status != jobstatus.StatusRunning {
			t.Fatalf("job %s: want running got=%v err=%v", id, j, err)
		}
	}

	again, err := repo.FailExhaustedStale(dbc, 3, time.Minute)
	if err != nil || len(again) != 0 {
		t.Fatalf("second FailExhaustedStale: want none got=%v err=%v", again, err)
	}
}

func TestJobRunRepoRunnableAndGuardedUpdates(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	courseID := uuid.New()
	if ok, err := repo.HasRunnableForEntity(dbc, "course", courseID, "course_audio"); err != nil || ok {
		t.Fatalf("HasRunnableForEntity(empty): ok=%v err=%v", ok, err)
	}
	j := testutil.SeedJob(t, ctx, db, courseID, jobstatus.StatusQueued, time.Now().UTC())
	if ok, err := repo.HasRunnableForEntity(dbc, "course", courseID, "course_audio"); err != nil || !ok {
		t.Fatalf("HasRunnableForEntity(queued): ok=%v err=%v", ok, err)
	}

	latest, err := repo.GetLatestByEntity(dbc, "course", courseID, "course_audio")
	if err != nil || latest == nil || latest.ID != j.ID {
		t.Fatalf("GetLatestByEntity: got=%v err=%v", latest, err)
	}

	changed, err := repo.UpdateFieldsUnlessStatus(dbc, j.ID, []string{jobstatus.StatusSucceeded, jobstatus.StatusFailed}, map[string]interface{}{
		"status": jobstatus.StatusFailed,
		"error":  "boom",
	})
	if err != nil || !changed {
		t.Fatalf("UpdateFieldsUnlessStatus: changed=%v err=%v", changed, err)
	}
	changed, err = repo.UpdateFieldsUnlessStatus(dbc, j.ID, []string{jobstatus.StatusFailed}, map[string]interface{}{"progress": 50})
	if err != nil || changed {
		t.Fatalf("UpdateFieldsUnlessStatus on terminal job: changed=%v err=%v", changed, err)
	}
	if ok, _ := repo.HasRunnableForEntity(dbc, "course", courseID, "course_audio"); ok {
		t.Fatalf("failed job must not count as runnable")
	}

	got, err := repo.GetByID(dbc, j.ID)
	if err != nil || got == nil || got.Error != "boom" || got.Progress != 0 {
		t.Fatalf("GetByID: got=%+v err=%v", got, err)
	}
	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID(missing): got=%v err=%v", missing, err)
	}
}
