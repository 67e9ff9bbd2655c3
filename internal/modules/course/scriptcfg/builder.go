package scriptcfg

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
)

const (
	stageConfig  = "config"
	defaultLevel = "beginner"
)

const (
	maxSpeed             = 4.0
	maxReviewRepetitions = 10
)

// BuildDefault returns the preset config for a target language and a
// proficiency tag. Two calls with the same inputs return equal configs.
func BuildDefault(targetLanguage, proficiencyLevel string) (courses.ScriptConfig, error) {
	t, err := loadPresets()
	if err != nil {
		return courses.ScriptConfig{}, err
	}
	lang := strings.ToLower(strings.TrimSpace(targetLanguage))
	if _, ok := t.file.Languages[lang]; !ok {
		return courses.ScriptConfig{}, apierr.Validationf(stageConfig, "unsupported target language %q", targetLanguage)
	}
	level := strings.TrimSpace(proficiencyLevel)
	if level == "" {
		level = defaultLevel
	}
	lvl, _, ok := t.level(level)
	if !ok {
		return courses.ScriptConfig{}, apierr.Validationf(stageConfig, "unknown proficiency level %q", proficiencyLevel)
	}
	return courses.ScriptConfig{
		Version:          1,
		TargetLanguage:   lang,
		ProficiencyLevel: level,
		NarratorVoiceID:  t.file.NarratorVoice,

		PauseAfterScenarioIntro:   lvl.PauseAfterScenarioIntro,
		PauseAfterSpeakerIntro:    lvl.PauseAfterSpeakerIntro,
		PauseAfterVocabItem:       lvl.PauseAfterVocabItem,
		PauseBetweenRepetitions:   lvl.PauseBetweenRepetitions,
		PauseForLearnerResponse:   lvl.PauseForLearnerResponse,
		PauseAfterFullPhrase:      lvl.PauseAfterFullPhrase,
		PauseAfterTranslation:     lvl.PauseAfterTranslation,
		ReviewAnticipationSeconds: lvl.ReviewAnticipationSeconds,
		ReviewRepeatPauseSeconds:  lvl.ReviewRepeatPauseSeconds,

		SlowSpeed:         lvl.SlowSpeed,
		ReviewSlowSpeed:   lvl.ReviewSlowSpeed,
		ReviewRepetitions: lvl.ReviewRepetitions,

		MaxLessonDurationMinutes: t.file.MaxLessonMinutes,

		ScenarioIntroPrompt: t.file.ScenarioIntroPrompt,
		ProgressivePrompt:   t.file.ProgressivePrompt,
		Templates:           t.file.Templates,
	}, nil
}

// Reset discards every edit and returns the defaults for cfg's language and
// level, one version past cfg.
func Reset(cfg courses.ScriptConfig) (courses.ScriptConfig, error) {
	out, err := BuildDefault(cfg.TargetLanguage, cfg.ProficiencyLevel)
	if err != nil {
		return courses.ScriptConfig{}, err
	}
	out.Version = cfg.Version + 1
	if cfg.NarratorVoiceID != "" {
		out.NarratorVoiceID = cfg.NarratorVoiceID
	}
	return out, nil
}

// Validate rejects out-of-range values. Nothing is clamped.
func Validate(cfg courses.ScriptConfig) error {
	var problems []string
	pause := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			problems = append(problems, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	speed := func(name string, v float64) {
		if math.IsNaN(v) || v <= 0 || v > maxSpeed {
			problems = append(problems, fmt.Sprintf("%s must be in (0, %g]", name, maxSpeed))
		}
	}

	pause("pauseAfterScenarioIntro", cfg.PauseAfterScenarioIntro)
	pause("pauseAfterSpeakerIntro", cfg.PauseAfterSpeakerIntro)
	pause("pauseAfterVocabItem", cfg.PauseAfterVocabItem)
	pause("pauseBetweenRepetitions", cfg.PauseBetweenRepetitions)
	pause("pauseForLearnerResponse", cfg.PauseForLearnerResponse)
	pause("pauseAfterFullPhrase", cfg.PauseAfterFullPhrase)
	pause("pauseAfterTranslation", cfg.PauseAfterTranslation)
	pause("reviewAnticipationSeconds", cfg.ReviewAnticipationSeconds)
	pause("reviewRepeatPauseSeconds", cfg.ReviewRepeatPauseSeconds)
	speed("slowSpeed", cfg.SlowSpeed)
	speed("reviewSlowSpeed", cfg.ReviewSlowSpeed)

	if cfg.ReviewRepetitions < 1 || cfg.ReviewRepetitions > maxReviewRepetitions {
		problems = append(problems, fmt.Sprintf("reviewRepetitions must be in [1, %d]", maxReviewRepetitions))
	}
	// Anticipation gaps grow with each occurrence; a zero base would flatten them.
	if cfg.ReviewRepetitions > 1 && cfg.ReviewAnticipationSeconds <= 0 {
		problems = append(problems, "reviewAnticipationSeconds must be > 0 when reviewRepetitions > 1")
	}
	if cfg.MaxLessonDurationMinutes < 0 {
		problems = append(problems, "maxLessonDurationMinutes must be >= 0")
	}
	if strings.TrimSpace(cfg.NarratorVoiceID) == "" {
		problems = append(problems, "narratorVoiceId is required")
	}

	for name, tmpl := range templateFields(cfg.Templates) {
		if strings.TrimSpace(tmpl) == "" {
			problems = append(problems, fmt.Sprintf("templates.%s must not be empty", name))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return apierr.Validationf(stageConfig, "invalid script config: %s", strings.Join(problems, "; "))
}

func templateFields(t courses.NarrationTemplates) map[string]string {
	return map[string]string{
		"scenarioIntro":    t.ScenarioIntro,
		"speakerSays":      t.SpeakerSays,
		"vocabTeach":       t.VocabTeach,
		"noVocabTeach":     t.NoVocabTeach,
		"progressiveChunk": t.ProgressiveChunk,
		"responseIntro":    t.ResponseIntro,
		"fullPhrase":       t.FullPhrase,
		"fullPhraseReplay": t.FullPhraseReplay,
		"translation":      t.Translation,
		"reviewIntro":      t.ReviewIntro,
		"outro":            t.Outro,
	}
}
