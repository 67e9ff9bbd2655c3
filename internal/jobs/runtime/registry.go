package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yungbote/convolab-backend/internal/domain"
)

// Handler runs one claimed job_run row of its Type.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// Abandoner is implemented by handlers that own entity state outside
// job_run. The worker calls Abandon after it fails a job that ran out of
// attempts without finishing, so the entity does not stay pinned to it.
type Abandoner interface {
	Abandon(ctx context.Context, job *domain.JobRun)
}

// Registry maps job types to handlers. It is filled once at startup and read
// by every worker loop.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("register job handler: nil handler")
	}
	jobType := h.Type()
	if jobType == "" {
		return fmt.Errorf("register job handler %T: empty job type", h)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("register job handler %T: job_type=%s already taken by %T", h, jobType, prev)
	}
	r.handlers[jobType] = h
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// AbandonerFor returns the cleanup hook for jobType, if its handler has one.
func (r *Registry) AbandonerFor(jobType string) (Abandoner, bool) {
	h, ok := r.Get(jobType)
	if !ok {
		return nil, false
	}
	a, ok := h.(Abandoner)
	return a, ok
}

// Types lists registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
