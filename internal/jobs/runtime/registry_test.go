package runtime

import (
	"context"
	"testing"

	"github.com/yungbote/convolab-backend/internal/domain"
)

type namedHandler string

func (h namedHandler) Type() string           { return string(h) }
func (h namedHandler) Run(ctx *Context) error { return nil }

type cleanupHandler struct{ namedHandler }

func (cleanupHandler) Abandon(context.Context, *domain.JobRun) {}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Fatalf("Register(nil): want error")
	}
	if err := r.Register(namedHandler("")); err == nil {
		t.Fatalf("Register empty type: want error")
	}
	if err := r.Register(namedHandler("course_audio")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(namedHandler("course_audio")); err == nil {
		t.Fatalf("Register duplicate: want error")
	}
	if err := r.Register(cleanupHandler{namedHandler("compile")}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(namedHandler("line_render")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if h, ok := r.Get("course_audio"); !ok || h.Type() != "course_audio" {
		t.Fatalf("Get: want course_audio got=%v ok=%v", h, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatalf("Get missing: want ok=false")
	}
	types := r.Types()
	if len(types) != 3 || types[0] != "compile" || types[1] != "course_audio" || types[2] != "line_render" {
		t.Fatalf("Types: want sorted got=%v", types)
	}

	if _, ok := r.AbandonerFor("compile"); !ok {
		t.Fatalf("AbandonerFor(compile): want ok")
	}
	if _, ok := r.AbandonerFor("course_audio"); ok {
		t.Fatalf("AbandonerFor(course_audio): handler has no Abandon")
	}
	if _, ok := r.AbandonerFor("missing"); ok {
		t.Fatalf("AbandonerFor(missing): want ok=false")
	}
}
