package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/domain"
	jobstatus "github.com/yungbote/convolab-backend/internal/domain/jobs"
	"github.com/yungbote/convolab-backend/internal/platform/ctxutil"
	"github.com/yungbote/convolab-backend/internal/platform/dbctx"
	"github.com/yungbote/convolab-backend/internal/services"
)

/*
Context is the execution handle for a single claimed job run.
It wraps:
  - the request-scoped context (cancellation, trace data),
  - the job_run row held in memory,
  - the notifier that mirrors transitions to pollers.

Handlers never write job_run directly; Progress, Fail and Succeed are the
only sanctioned transitions. Every write is guarded so a canceled job is
never overwritten.
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *domain.JobRun
	Repo    repos.JobRunRepo
	Notify  services.JobNotifier
	payload map[string]any
}

func NewContext(ctx context.Context, db *gorm.DB, job *domain.JobRun, repo repos.JobRunRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

// decodePayload leaves an empty map behind on malformed JSON; handlers
// validate the fields they need.
func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	traceID := c.PayloadString("trace_id")
	reqID := c.PayloadString("request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// PayloadInt accepts JSON numbers and numeric strings.
func (c *Context) PayloadInt(key string) (int, bool) {
	switch v := c.Payload()[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) guardedUpdate(updates map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, []string{jobstatus.StatusCanceled}, updates)
	return err == nil && ok
}

// Heartbeat tells the claim query this run is still alive.
func (c *Context) Heartbeat() error {
	if c == nil || c.Repo == nil || c.Job == nil {
		return nil
	}
	return c.Repo.Heartbeat(dbctx.Context{Ctx: c.ctx()}, c.Job.ID)
}

// Progress records a non-terminal update and refreshes the heartbeat.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	now := time.Now().UTC()
	if !c.guardedUpdate(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.ctx(), c.Job)
	}
}

// Fail marks the run terminally failed. Failed runs are never reclaimed.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if !c.guardedUpdate(map[string]interface{}{
		"status":        jobstatus.StatusFailed,
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = jobstatus.StatusFailed
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.ctx(), c.Job)
	}
}

// Succeed marks the run done and stores result as JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	res := datatypes.JSON([]byte(`{}`))
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	if !c.guardedUpdate(map[string]interface{}{
		"status":       jobstatus.StatusSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"message":      "",
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = jobstatus.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.ctx(), c.Job)
	}
}
