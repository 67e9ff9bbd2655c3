package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/platform/openai"
)

const stageExchanges = "exchanges"

// DialogueExtractor turns a generation prompt into dialogue exchanges.
type DialogueExtractor interface {
	Extract(ctx context.Context, course *domain.Course, prompt string) ([]courses.DialogueExchange, error)
}

type dialogueExtractor struct {
	log    *logger.Logger
	ai     openai.Client
	voices VoiceCatalog
}

func NewDialogueExtractor(log *logger.Logger, ai openai.Client, voices VoiceCatalog) DialogueExtractor {
	return &dialogueExtractor{
		log:    log.With("service", "DialogueExtractor"),
		ai:     ai,
		voices: voices,
	}
}

const extractorSystem = `You write dialogues for audio language courses.
Every line is addressed to the learner. Keep lines short enough to repeat aloud.
For Japanese you may give readings as kanji followed by the kana reading in square brackets, e.g. 漢字[かんじ].
Return only data matching the schema.`

func dialogueSchema() map[string]any {
	str := map[string]any{"type": "string"}
	vocab := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"textL2", "readingL2", "translationL1"},
		"properties": map[string]any{
			"textL2":        str,
			"readingL2":     str,
			"translationL1": str,
		},
	}
	exchange := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"speakerName", "relationshipName", "textL2", "readingL2", "translationL1", "vocabulary"},
		"properties": map[string]any{
			"speakerName":      str,
			"relationshipName": str,
			"textL2":           str,
			"readingL2":        str,
			"translationL1":    str,
			"vocabulary":       map[string]any{"type": "array", "items": vocab},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"exchanges"},
		"properties": map[string]any{
			"exchanges": map[string]any{"type": "array", "items": exchange},
		},
	}
}

type extractedVocab struct {
	TextL2        string `json:"textL2"`
	ReadingL2     string `json:"readingL2"`
	TranslationL1 string `json:"translationL1"`
}

type extractedExchange struct {
	SpeakerName      string           `json:"speakerName"`
	RelationshipName string           `json:"relationshipName"`
	TextL2           string           `json:"textL2"`
	ReadingL2        string           `json:"readingL2"`
	TranslationL1    string           `json:"translationL1"`
	Vocabulary       []extractedVocab `json:"vocabulary"`
}

type extractedDialogue struct {
	Exchanges []extractedExchange `json:"exchanges"`
}

func (e *dialogueExtractor) Extract(ctx context.Context, course *domain.Course, prompt string) ([]courses.DialogueExchange, error) {
	if e.ai == nil {
		return nil, apierr.External(stageExchanges, fmt.Errorf("dialogue extraction is not configured"))
	}
	obj, err := e.ai.GenerateJSON(ctx, extractorSystem, prompt, "dialogue", dialogueSchema())
	if err != nil {
		return nil, apierr.External(stageExchanges, fmt.Errorf("generate dialogue: %w", err))
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, apierr.External(stageExchanges, fmt.Errorf("re-encode dialogue: %w", err))
	}
	var d extractedDialogue
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, apierr.External(stageExchanges, fmt.Errorf("decode dialogue: %w", err))
	}
	out, err := e.normalize(ctx, course.TargetLanguage, d)
	if err != nil {
		return nil, err
	}
	e.log.Info("dialogue extracted", "course_id", course.ID, "exchanges", len(out))
	return out, nil
}

// normalize renumbers exchanges 1..n, drops empty lines and gives every
// distinct speaker a stable voice from the target-language catalog.
func (e *dialogueExtractor) normalize(ctx context.Context, language string, d extractedDialogue) ([]courses.DialogueExchange, error) {
	voices, err := e.voices.List(ctx, language)
	if err != nil {
		return nil, err
	}
	if len(voices) == 0 {
		return nil, apierr.Validationf(stageExchanges, "no voices available for %q", language)
	}
	assigned := map[string]string{}
	var out []courses.DialogueExchange
	for _, x := range d.Exchanges {
		text := strings.TrimSpace(x.TextL2)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(x.SpeakerName)
		voice, ok := assigned[speaker]
		if !ok {
			voice = voices[len(assigned)%len(voices)].ID
			assigned[speaker] = voice
		}
		ex := courses.DialogueExchange{
			Order:            len(out) + 1,
			SpeakerName:      speaker,
			RelationshipName: strings.TrimSpace(x.RelationshipName),
			SpeakerVoiceID:   voice,
			TextL2:           text,
			ReadingL2:        optionalString(x.ReadingL2),
			TranslationL1:    strings.TrimSpace(x.TranslationL1),
		}
		for _, v := range x.Vocabulary {
			if strings.TrimSpace(v.TextL2) == "" {
				continue
			}
			ex.VocabularyItems = append(ex.VocabularyItems, courses.VocabularyItem{
				TextL2:        strings.TrimSpace(v.TextL2),
				ReadingL2:     optionalString(v.ReadingL2),
				TranslationL1: strings.TrimSpace(v.TranslationL1),
			})
		}
		out = append(out, ex)
	}
	if len(out) == 0 {
		return nil, apierr.External(stageExchanges, fmt.Errorf("model returned no usable exchanges"))
	}
	return out, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
