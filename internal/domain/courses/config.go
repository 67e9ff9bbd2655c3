package courses

type NarrationTemplates struct {
	ScenarioIntro    string `json:"scenarioIntro" yaml:"scenarioIntro"`
	SpeakerSays      string `json:"speakerSays" yaml:"speakerSays"`
	VocabTeach       string `json:"vocabTeach" yaml:"vocabTeach"`
	NoVocabTeach     string `json:"noVocabTeach" yaml:"noVocabTeach"`
	ProgressiveChunk string `json:"progressiveChunk" yaml:"progressiveChunk"`
	ResponseIntro    string `json:"responseIntro" yaml:"responseIntro"`
	FullPhrase       string `json:"fullPhrase" yaml:"fullPhrase"`
	FullPhraseReplay string `json:"fullPhraseReplay" yaml:"fullPhraseReplay"`
	Translation      string `json:"translation" yaml:"translation"`
	ReviewIntro      string `json:"reviewIntro" yaml:"reviewIntro"`
	Outro            string `json:"outro" yaml:"outro"`
}

// ScriptConfig holds the tunable pacing of a course. Pauses are seconds.
type ScriptConfig struct {
	Version          int    `json:"version"`
	TargetLanguage   string `json:"targetLanguage"`
	ProficiencyLevel string `json:"proficiencyLevel"`
	NarratorVoiceID  string `json:"narratorVoiceId"`

	PauseAfterScenarioIntro   float64 `json:"pauseAfterScenarioIntro"`
	PauseAfterSpeakerIntro    float64 `json:"pauseAfterSpeakerIntro"`
	PauseAfterVocabItem       float64 `json:"pauseAfterVocabItem"`
	PauseBetweenRepetitions   float64 `json:"pauseBetweenRepetitions"`
	PauseForLearnerResponse   float64 `json:"pauseForLearnerResponse"`
	PauseAfterFullPhrase      float64 `json:"pauseAfterFullPhrase"`
	PauseAfterTranslation     float64 `json:"pauseAfterTranslation"`
	ReviewAnticipationSeconds float64 `json:"reviewAnticipationSeconds"`
	ReviewRepeatPauseSeconds  float64 `json:"reviewRepeatPauseSeconds"`

	SlowSpeed         float64 `json:"slowSpeed"`
	ReviewSlowSpeed   float64 `json:"reviewSlowSpeed"`
	ReviewRepetitions int     `json:"reviewRepetitions"`

	MaxLessonDurationMinutes int `json:"maxLessonDurationMinutes"`

	ScenarioIntroPrompt string             `json:"scenarioIntroPrompt"`
	ProgressivePrompt   string             `json:"progressivePrompt"`
	Templates           NarrationTemplates `json:"templates"`
}
