package services

import (
	"context"

	"github.com/yungbote/convolab-backend/internal/domain"
)

// JobNotifier observes job lifecycle transitions.
type JobNotifier interface {
	JobCreated(ctx context.Context, job *domain.JobRun)
	JobProgress(ctx context.Context, job *domain.JobRun)
	JobFailed(ctx context.Context, job *domain.JobRun)
	JobDone(ctx context.Context, job *domain.JobRun)
}

type statusCacheNotifier struct {
	cache          JobStatusCache
	pollIntervalMs int
}

// NewStatusCacheNotifier mirrors every transition into the status cache so
// pollers see progress without a database read.
func NewStatusCacheNotifier(cache JobStatusCache, pollIntervalMs int) JobNotifier {
	return &statusCacheNotifier{cache: cache, pollIntervalMs: pollIntervalMs}
}

func (n *statusCacheNotifier) write(ctx context.Context, job *domain.JobRun) {
	if n == nil || n.cache == nil || job == nil {
		return
	}
	n.cache.Set(ctx, StatusFromJob(job, n.pollIntervalMs))
}

func (n *statusCacheNotifier) JobCreated(ctx context.Context, job *domain.JobRun)  { n.write(ctx, job) }
func (n *statusCacheNotifier) JobProgress(ctx context.Context, job *domain.JobRun) { n.write(ctx, job) }
func (n *statusCacheNotifier) JobFailed(ctx context.Context, job *domain.JobRun)   { n.write(ctx, job) }
func (n *statusCacheNotifier) JobDone(ctx context.Context, job *domain.JobRun)     { n.write(ctx, job) }
