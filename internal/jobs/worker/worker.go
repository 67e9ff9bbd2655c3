package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/jobs/runtime"
	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/platform/envutil"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/services"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	StaleRunning time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:  envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval: envutil.Duration("WORKER_POLL_INTERVAL_MS", time.Millisecond, time.Second),
		MaxAttempts:  envutil.Int("JOB_MAX_ATTEMPTS", 3),
		StaleRunning: envutil.Duration("JOB_STALE_RUNNING_MINUTES", time.Minute, 30*time.Minute),
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 30 * time.Minute
	}
	return c
}

// Worker polls job_run for claimable rows and dispatches them to handlers.
// One claim is one job; concurrency is the number of polling loops.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      Config
	wg       sync.WaitGroup
	lastReap atomic.Int64
}

const reapEvery = 30 * time.Second

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg.withDefaults(),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
		"job_types", w.registry.Types(),
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop has returned after ctx was canceled.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx, workerID); err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
			}
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context, workerID int) (bool, error) {
	w.reapExhausted(ctx)
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.StaleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type",
			"worker_id", workerID,
			"job_type", job.JobType,
			"job_id", job.ID,
		)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return true, nil
	}

	w.log.Info("Job claimed",
		"worker_id", workerID,
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempt", job.Attempts,
	)
	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"worker_id", workerID,
					"job_id", job.ID,
					"job_type", job.JobType,
					"panic", r,
				)
				jc.Fail("panic", errFromRecover(r))
			}
		}()
		if runErr := h.Run(jc); runErr != nil {
			// handlers usually fail the job themselves; this catches the rest
			jc.Fail("run", runErr)
		}
	}()
	observability.Current().ObserveJob(job.JobType, jc.Job.Status, time.Since(start))
	return true, nil
}

// reapExhausted fails running jobs that lost their heartbeat on their last
// attempt. Loops share one reap per reapEvery.
func (w *Worker) reapExhausted(ctx context.Context) {
	now := time.Now().UnixNano()
	last := w.lastReap.Load()
	if last != 0 && time.Duration(now-last) < reapEvery {
		return
	}
	if !w.lastReap.CompareAndSwap(last, now) {
		return
	}
	jobs, err := w.repo.FailExhaustedStale(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.StaleRunning)
	if err != nil {
		w.log.Warn("FailExhaustedStale failed", "error", err)
		return
	}
	for _, job := range jobs {
		w.log.Warn("Abandoned job failed",
			"job_id", job.ID,
			"job_type", job.JobType,
			"entity_id", job.EntityID,
			"attempts", job.Attempts,
		)
		if w.notify != nil {
			w.notify.JobFailed(ctx, job)
		}
		if a, ok := w.registry.AbandonerFor(job.JobType); ok {
			a.Abandon(ctx, job)
		}
		observability.Current().ObserveJob(job.JobType, job.Status, 0)
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
