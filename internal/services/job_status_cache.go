package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

// JobStatusCache keeps the latest JobStatus per job for cheap polling. Entries
// expire after the TTL; a miss always falls back to the database.
type JobStatusCache interface {
	Get(ctx context.Context, jobID uuid.UUID) (JobStatus, bool)
	Set(ctx context.Context, st JobStatus)
	Delete(ctx context.Context, jobID uuid.UUID)
}

// NewJobStatusCache uses Redis when addr is set and an in-process cache
// otherwise.
func NewJobStatusCache(log *logger.Logger, addr string, ttl time.Duration) (JobStatusCache, error) {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if addr == "" {
		return NewMemoryJobStatusCache(ttl), nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisJobStatusCache{
		log: log.With("service", "RedisJobStatusCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

type redisJobStatusCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func jobStatusKey(jobID uuid.UUID) string { return "convolab:job_status:" + jobID.String() }

func (c *redisJobStatusCache) Get(ctx context.Context, jobID uuid.UUID) (JobStatus, bool) {
	raw, err := c.rdb.Get(ctx, jobStatusKey(jobID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn("job status cache read failed", "job_id", jobID, "error", err)
		}
		return JobStatus{}, false
	}
	var st JobStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return JobStatus{}, false
	}
	return st, true
}

func (c *redisJobStatusCache) Set(ctx context.Context, st JobStatus) {
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, jobStatusKey(st.JobID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("job status cache write failed", "job_id", st.JobID, "error", err)
	}
}

func (c *redisJobStatusCache) Delete(ctx context.Context, jobID uuid.UUID) {
	_ = c.rdb.Del(ctx, jobStatusKey(jobID)).Err()
}

type memoryJobStatusCache struct {
	lru *expirable.LRU[uuid.UUID, JobStatus]
}

func NewMemoryJobStatusCache(ttl time.Duration) JobStatusCache {
	return &memoryJobStatusCache{lru: expirable.NewLRU[uuid.UUID, JobStatus](1024, nil, ttl)}
}

func (c *memoryJobStatusCache) Get(_ context.Context, jobID uuid.UUID) (JobStatus, bool) {
	return c.lru.Get(jobID)
}

func (c *memoryJobStatusCache) Set(_ context.Context, st JobStatus) {
	c.lru.Add(st.JobID, st)
}

func (c *memoryJobStatusCache) Delete(_ context.Context, jobID uuid.UUID) {
	c.lru.Remove(jobID)
}
