package scriptcfg

import "github.com/yungbote/convolab-backend/internal/domain/courses"

// Patch is a partial edit. Nil fields keep the current value.
type Patch struct {
	NarratorVoiceID *string `json:"narratorVoiceId,omitempty"`

	PauseAfterScenarioIntro   *float64 `json:"pauseAfterScenarioIntro,omitempty"`
	PauseAfterSpeakerIntro    *float64 `json:"pauseAfterSpeakerIntro,omitempty"`
	PauseAfterVocabItem       *float64 `json:"pauseAfterVocabItem,omitempty"`
	PauseBetweenRepetitions   *float64 `json:"pauseBetweenRepetitions,omitempty"`
	PauseForLearnerResponse   *float64 `json:"pauseForLearnerResponse,omitempty"`
	PauseAfterFullPhrase      *float64 `json:"pauseAfterFullPhrase,omitempty"`
	PauseAfterTranslation     *float64 `json:"pauseAfterTranslation,omitempty"`
	ReviewAnticipationSeconds *float64 `json:"reviewAnticipationSeconds,omitempty"`
	ReviewRepeatPauseSeconds  *float64 `json:"reviewRepeatPauseSeconds,omitempty"`

	SlowSpeed         *float64 `json:"slowSpeed,omitempty"`
	ReviewSlowSpeed   *float64 `json:"reviewSlowSpeed,omitempty"`
	ReviewRepetitions *int     `json:"reviewRepetitions,omitempty"`

	MaxLessonDurationMinutes *int `json:"maxLessonDurationMinutes,omitempty"`

	ScenarioIntroPrompt *string         `json:"scenarioIntroPrompt,omitempty"`
	ProgressivePrompt   *string         `json:"progressivePrompt,omitempty"`
	Templates           *TemplatesPatch `json:"templates,omitempty"`
}

type TemplatesPatch struct {
	ScenarioIntro    *string `json:"scenarioIntro,omitempty"`
	SpeakerSays      *string `json:"speakerSays,omitempty"`
	VocabTeach       *string `json:"vocabTeach,omitempty"`
	NoVocabTeach     *string `json:"noVocabTeach,omitempty"`
	ProgressiveChunk *string `json:"progressiveChunk,omitempty"`
	ResponseIntro    *string `json:"responseIntro,omitempty"`
	FullPhrase       *string `json:"fullPhrase,omitempty"`
	FullPhraseReplay *string `json:"fullPhraseReplay,omitempty"`
	Translation      *string `json:"translation,omitempty"`
	ReviewIntro      *string `json:"reviewIntro,omitempty"`
	Outro            *string `json:"outro,omitempty"`
}

// ApplyPatch returns cfg with p applied, or a validation error. cfg is never
// modified and Version is left for the caller to bump.
func ApplyPatch(cfg courses.ScriptConfig, p Patch) (courses.ScriptConfig, error) {
	out := cfg

	setS(&out.NarratorVoiceID, p.NarratorVoiceID)
	setF(&out.PauseAfterScenarioIntro, p.PauseAfterScenarioIntro)
	setF(&out.PauseAfterSpeakerIntro, p.PauseAfterSpeakerIntro)
	setF(&out.PauseAfterVocabItem, p.PauseAfterVocabItem)
	setF(&out.PauseBetweenRepetitions, p.PauseBetweenRepetitions)
	setF(&out.PauseForLearnerResponse, p.PauseForLearnerResponse)
	setF(&out.PauseAfterFullPhrase, p.PauseAfterFullPhrase)
	setF(&out.PauseAfterTranslation, p.PauseAfterTranslation)
	setF(&out.ReviewAnticipationSeconds, p.ReviewAnticipationSeconds)
	setF(&out.ReviewRepeatPauseSeconds, p.ReviewRepeatPauseSeconds)
	setF(&out.SlowSpeed, p.SlowSpeed)
	setF(&out.ReviewSlowSpeed, p.ReviewSlowSpeed)
	setI(&out.ReviewRepetitions, p.ReviewRepetitions)
	setI(&out.MaxLessonDurationMinutes, p.MaxLessonDurationMinutes)
	setS(&out.ScenarioIntroPrompt, p.ScenarioIntroPrompt)
	setS(&out.ProgressivePrompt, p.ProgressivePrompt)

	if t := p.Templates; t != nil {
		setS(&out.Templates.ScenarioIntro, t.ScenarioIntro)
		setS(&out.Templates.SpeakerSays, t.SpeakerSays)
		setS(&out.Templates.VocabTeach, t.VocabTeach)
		setS(&out.Templates.NoVocabTeach, t.NoVocabTeach)
		setS(&out.Templates.ProgressiveChunk, t.ProgressiveChunk)
		setS(&out.Templates.ResponseIntro, t.ResponseIntro)
		setS(&out.Templates.FullPhrase, t.FullPhrase)
		setS(&out.Templates.FullPhraseReplay, t.FullPhraseReplay)
		setS(&out.Templates.Translation, t.Translation)
		setS(&out.Templates.ReviewIntro, t.ReviewIntro)
		setS(&out.Templates.Outro, t.Outro)
	}

	if err := Validate(out); err != nil {
		return cfg, err
	}
	return out, nil
}

func setS(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setF(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setI(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
