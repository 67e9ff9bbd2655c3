package stages

import (
	"encoding/json"
	"fmt"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
)

// Snapshots are immutable once stored. Each one names the upstream version it
// was derived from so staleness can be computed without rerunning anything.

type PromptMetadata struct {
	Title            string `json:"title"`
	TargetLanguage   string `json:"targetLanguage"`
	NativeLanguage   string `json:"nativeLanguage"`
	ProficiencyLevel string `json:"proficiencyLevel"`
	SourceChars      int    `json:"sourceChars"`
}

type PromptSnapshot struct {
	Prompt   string         `json:"prompt"`
	Metadata PromptMetadata `json:"metadata"`
}

type ExchangesSnapshot struct {
	Exchanges     []courses.DialogueExchange `json:"exchanges"`
	CustomPrompt  string                     `json:"customPrompt,omitempty"`
	PromptVersion int                        `json:"promptVersion"`
}

type ConfigSnapshot struct {
	Config           courses.ScriptConfig `json:"config"`
	ExchangesVersion int                  `json:"exchangesVersion"`
}

type ScriptSnapshot struct {
	Units                    []courses.ScriptUnit   `json:"scriptUnits"`
	EstimatedDurationSeconds float64                `json:"estimatedDurationSeconds"`
	Lessons                  [][]courses.ScriptUnit `json:"lessons,omitempty"`
	ConfigVersion            int                    `json:"configVersion"`
	ExchangesVersion         int                    `json:"exchangesVersion"`
}

type AudioVariant struct {
	Speed           float64                 `json:"speed"`
	AudioURL        string                  `json:"audioUrl"`
	TotalDurationMs int64                   `json:"totalDurationMs"`
	Timeline        []courses.TimelineEntry `json:"timeline"`
}

type AudioSnapshot struct {
	AudioURL        string                  `json:"audioUrl"`
	TotalDurationMs int64                   `json:"totalDurationMs"`
	Variants        map[string]AudioVariant `json:"variants"`
	ScriptVersion   int                     `json:"scriptVersion"`
	JobID           string                  `json:"jobId"`
}

func (s ExchangesSnapshot) basedOn() int { return s.PromptVersion }
func (s ConfigSnapshot) basedOn() int    { return s.ExchangesVersion }
func (s ScriptSnapshot) basedOn() int    { return s.ConfigVersion }
func (s AudioSnapshot) basedOn() int     { return s.ScriptVersion }

// Encode serializes a snapshot payload for storage.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode reads a stored payload into the snapshot type T.
func Decode[T any](payload []byte) (T, error) {
	var out T
	if len(payload) == 0 {
		return out, fmt.Errorf("decode snapshot: empty payload")
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode snapshot: %w", err)
	}
	return out, nil
}

// BasedOn returns the upstream version a decoded payload was derived from.
func BasedOn(stage Stage, payload []byte) (int, error) {
	switch stage {
	case StagePrompt:
		return 0, nil
	case StageExchanges:
		s, err := Decode[ExchangesSnapshot](payload)
		return s.basedOn(), err
	case StageConfig:
		s, err := Decode[ConfigSnapshot](payload)
		return s.basedOn(), err
	case StageScript:
		s, err := Decode[ScriptSnapshot](payload)
		return s.basedOn(), err
	case StageAudio:
		s, err := Decode[AudioSnapshot](payload)
		return s.basedOn(), err
	}
	return 0, fmt.Errorf("unknown stage %q", stage)
}

type StageStatus struct {
	Stage   Stage `json:"stage"`
	Version int   `json:"version"`
	Ready   bool  `json:"ready"`
	Stale   bool  `json:"stale"`
}

// Statuses reports, in pipeline order, which stages have a snapshot and
// which were derived from an upstream version that has since been replaced.
// Staleness propagates downstream.
func Statuses(latest map[Stage]int, basedOn map[Stage]int) []StageStatus {
	out := make([]StageStatus, 0, len(Order))
	upstreamStale := false
	for _, s := range Order {
		v := latest[s]
		st := StageStatus{Stage: s, Version: v, Ready: v > 0}
		if st.Ready {
			if prev, ok := s.Prev(); ok {
				st.Stale = upstreamStale || basedOn[s] != latest[prev]
			}
		}
		upstreamStale = st.Stale || (upstreamStale && !st.Ready)
		out = append(out, st)
	}
	return out
}
