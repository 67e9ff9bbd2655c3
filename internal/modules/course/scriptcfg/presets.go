package scriptcfg

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
)

const presetsPathEnv = "SCRIPT_PRESETS_YAML"

//go:embed presets.yaml
var presetsFS embed.FS

type levelPreset struct {
	Aliases []string `yaml:"aliases"`

	PauseAfterScenarioIntro   float64 `yaml:"pauseAfterScenarioIntro"`
	PauseAfterSpeakerIntro    float64 `yaml:"pauseAfterSpeakerIntro"`
	PauseAfterVocabItem       float64 `yaml:"pauseAfterVocabItem"`
	PauseBetweenRepetitions   float64 `yaml:"pauseBetweenRepetitions"`
	PauseForLearnerResponse   float64 `yaml:"pauseForLearnerResponse"`
	PauseAfterFullPhrase      float64 `yaml:"pauseAfterFullPhrase"`
	PauseAfterTranslation     float64 `yaml:"pauseAfterTranslation"`
	ReviewAnticipationSeconds float64 `yaml:"reviewAnticipationSeconds"`
	ReviewRepeatPauseSeconds  float64 `yaml:"reviewRepeatPauseSeconds"`

	SlowSpeed         float64 `yaml:"slowSpeed"`
	ReviewSlowSpeed   float64 `yaml:"reviewSlowSpeed"`
	ReviewRepetitions int     `yaml:"reviewRepetitions"`
}

type presetFile struct {
	NarratorVoice       string                     `yaml:"narratorVoice"`
	MaxLessonMinutes    int                        `yaml:"maxLessonDurationMinutes"`
	Languages           map[string]string          `yaml:"languages"`
	ScenarioIntroPrompt string                     `yaml:"scenarioIntroPrompt"`
	ProgressivePrompt   string                     `yaml:"progressivePrompt"`
	Templates           courses.NarrationTemplates `yaml:"templates"`
	Levels              map[string]levelPreset     `yaml:"levels"`
}

type presetTable struct {
	file    presetFile
	byAlias map[string]string
}

var (
	presetsOnce sync.Once
	presets     *presetTable
	presetsErr  error
)

func loadPresets() (*presetTable, error) {
	presetsOnce.Do(func() {
		presets, presetsErr = parsePresets()
	})
	return presets, presetsErr
}

func readPresets() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(presetsPathEnv)); path != "" {
		return os.ReadFile(path)
	}
	return presetsFS.ReadFile("presets.yaml")
}

func parsePresets() (*presetTable, error) {
	data, err := readPresets()
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if len(f.Levels) == 0 {
		return nil, fmt.Errorf("parse presets: no levels defined")
	}
	t := &presetTable{file: f, byAlias: map[string]string{}}
	for name, lvl := range f.Levels {
		t.byAlias[strings.ToLower(name)] = name
		for _, a := range lvl.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				continue
			}
			if prev, ok := t.byAlias[a]; ok && prev != name {
				return nil, fmt.Errorf("parse presets: alias %q maps to both %q and %q", a, prev, name)
			}
			t.byAlias[a] = name
		}
	}
	return t, nil
}

func (t *presetTable) level(tag string) (levelPreset, string, bool) {
	name, ok := t.byAlias[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return levelPreset{}, "", false
	}
	return t.file.Levels[name], name, true
}

// SupportedLanguages returns the target-language codes presets exist for.
func SupportedLanguages() map[string]string {
	t, err := loadPresets()
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(t.file.Languages))
	for k, v := range t.file.Languages {
		out[k] = v
	}
	return out
}

// LevelBand resolves a CEFR, JLPT or HSK tag to its pacing band.
func LevelBand(tag string) (string, bool) {
	t, err := loadPresets()
	if err != nil {
		return "", false
	}
	_, name, ok := t.level(tag)
	return name, ok
}
