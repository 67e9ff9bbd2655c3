package envutil

import (
	"testing"
	"time"
)

func TestIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("ENVUTIL_INT", "nope")
	if got := Int("ENVUTIL_INT", 7); got != 7 {
		t.Fatalf("Int: want=7 got=%d", got)
	}
	t.Setenv("ENVUTIL_INT", " 12 ")
	if got := Int("ENVUTIL_INT", 7); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
}

func TestDurationAcceptsUnitsAndBareInts(t *testing.T) {
	t.Setenv("ENVUTIL_DUR", "250ms")
	if got := Duration("ENVUTIL_DUR", time.Second, time.Minute); got != 250*time.Millisecond {
		t.Fatalf("Duration: want=250ms got=%s", got)
	}
	t.Setenv("ENVUTIL_DUR", "3")
	if got := Duration("ENVUTIL_DUR", time.Second, time.Minute); got != 3*time.Second {
		t.Fatalf("Duration: want=3s got=%s", got)
	}
	t.Setenv("ENVUTIL_DUR", "")
	if got := Duration("ENVUTIL_DUR", time.Second, time.Minute); got != time.Minute {
		t.Fatalf("Duration: want=1m got=%s", got)
	}
}

func TestFloatsSkipsMalformedEntries(t *testing.T) {
	t.Setenv("ENVUTIL_FLOATS", "0.75, x ,1.0")
	got := Floats("ENVUTIL_FLOATS", nil)
	if len(got) != 2 || got[0] != 0.75 || got[1] != 1.0 {
		t.Fatalf("Floats: want=[0.75 1] got=%v", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("ENVUTIL_BOOL", "on")
	if !Bool("ENVUTIL_BOOL", false) {
		t.Fatalf("Bool: want=true")
	}
	t.Setenv("ENVUTIL_BOOL", "maybe")
	if Bool("ENVUTIL_BOOL", false) {
		t.Fatalf("Bool: want default false")
	}
}

func TestStringsDropsBlanks(t *testing.T) {
	t.Setenv("ENVUTIL_STRINGS", "a, ,b,")
	got := Strings("ENVUTIL_STRINGS", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Strings: want=[a b] got=%v", got)
	}
	t.Setenv("ENVUTIL_STRINGS", " , ")
	if got := Strings("ENVUTIL_STRINGS", []string{"d"}); len(got) != 1 || got[0] != "d" {
		t.Fatalf("Strings: want default got=%v", got)
	}
}
