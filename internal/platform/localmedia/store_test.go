package localmedia

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

func TestStorePutAndDelete(t *testing.T) {
	s, err := New(logger.Nop(), t.TempDir(), "http://localhost:8080/media/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	url, err := s.Put(ctx, "courses/c1/audio/1.00.wav", "audio/wav", strings.NewReader("RIFF"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if want := "http://localhost:8080/media/courses/c1/audio/1.00.wav"; url != want {
		t.Fatalf("Put url: want=%q got=%q", want, url)
	}
	p, _ := s.Path("courses/c1/audio/1.00.wav")
	if b, err := os.ReadFile(p); err != nil || string(b) != "RIFF" {
		t.Fatalf("stored bytes: got=%q err=%v", b, err)
	}

	if err := s.Delete(ctx, "courses/c1/audio/1.00.wav"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("Delete: file still present err=%v", err)
	}
	if err := s.Delete(ctx, "courses/c1/audio/1.00.wav"); err != nil {
		t.Fatalf("Delete missing: want nil got=%v", err)
	}
}

func TestStorePathStaysInsideDir(t *testing.T) {
	s, err := New(logger.Nop(), t.TempDir(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, err := s.Path("../../etc/passwd")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if !strings.HasPrefix(p, s.Dir()) {
		t.Fatalf("Path: %q escapes %q", p, s.Dir())
	}
	if _, err := s.Path("/"); err == nil {
		t.Fatalf("Path(/): expected error")
	}
}
