package stages

import (
	"fmt"
	"strings"

	"github.com/yungbote/convolab-backend/internal/platform/apierr"
)

type Stage string

const (
	StagePrompt    Stage = "prompt"
	StageExchanges Stage = "exchanges"
	StageConfig    Stage = "config"
	StageScript    Stage = "script"
	StageAudio     Stage = "audio"
)

// Order is the fixed pipeline sequence.
var Order = []Stage{StagePrompt, StageExchanges, StageConfig, StageScript, StageAudio}

// Index returns the stage position in Order, or -1.
func (s Stage) Index() int {
	for i, st := range Order {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.Index() >= 0 }

// Next returns the following stage; audio has none.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(Order) {
		return "", false
	}
	return Order[i+1], true
}

// Prev returns the stage this one is derived from; prompt has none.
func (s Stage) Prev() (Stage, bool) {
	i := s.Index()
	if i <= 0 {
		return "", false
	}
	return Order[i-1], true
}

func Parse(raw string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", apierr.Validationf("", "unknown stage %q", raw)
	}
	return s, nil
}

// MissingPrerequisite is the error for running s before the stage it
// depends on has produced a snapshot.
func MissingPrerequisite(s Stage) error {
	prev, _ := s.Prev()
	return apierr.Validation(string(s), fmt.Errorf("%s stage has not run yet", prev))
}
