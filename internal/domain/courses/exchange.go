package courses

import "strings"

// VocabularyItem is owned by exactly one exchange; review units copy it by value.
type VocabularyItem struct {
	TextL2        string  `json:"textL2"`
	ReadingL2     *string `json:"readingL2,omitempty"`
	TranslationL1 string  `json:"translationL1"`
	LevelTag      *string `json:"levelTag,omitempty"`
}

// Key is the dedup key used when the same word appears in several exchanges.
func (v VocabularyItem) Key() string {
	return NormalizeL2(v.TextL2)
}

type DialogueExchange struct {
	Order            int              `json:"order"`
	SpeakerName      string           `json:"speakerName"`
	RelationshipName string           `json:"relationshipName"`
	SpeakerVoiceID   string           `json:"speakerVoiceId"`
	TextL2           string           `json:"textL2"`
	ReadingL2        *string          `json:"readingL2,omitempty"`
	TranslationL1    string           `json:"translationL1"`
	VocabularyItems  []VocabularyItem `json:"vocabularyItems"`
}

// NormalizeL2 folds whitespace and case so "Hola" and " hola " dedupe together.
func NormalizeL2(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func StrPtr(s string) *string { return &s }

func Float64Ptr(f float64) *float64 { return &f }
