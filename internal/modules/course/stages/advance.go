package stages

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/modules/course/compiler"
	"github.com/yungbote/convolab-backend/internal/modules/course/scriptcfg"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
)

const (
	maxSourceChars  = 6000
	defaultExchange = 6
)

// BuildPrompt derives the dialogue-extraction prompt from the course record.
func BuildPrompt(c courses.Course) (PromptSnapshot, error) {
	source := strings.TrimSpace(c.SourceText)
	if source == "" && strings.TrimSpace(c.Title) == "" {
		return PromptSnapshot{}, apierr.Validationf(string(StagePrompt), "course needs a title or source text")
	}
	if strings.TrimSpace(c.TargetLanguage) == "" {
		return PromptSnapshot{}, apierr.Validationf(string(StagePrompt), "course has no target language")
	}
	native := c.NativeLanguage
	if strings.TrimSpace(native) == "" {
		native = "en"
	}
	if utf8.RuneCountInString(source) > maxSourceChars {
		source = string([]rune(source)[:maxSourceChars])
	}
	level := c.ProficiencyLevel
	if level == "" {
		level = "beginner"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a short, natural dialogue of about %d exchanges in language %q for a %s learner whose native language is %q.\n",
		defaultExchange, c.TargetLanguage, level, native)
	if t := strings.TrimSpace(c.Title); t != "" {
		fmt.Fprintf(&b, "Scenario: %s\n", t)
	}
	b.WriteString("Each exchange is one line spoken to the learner. Give its translation, an optional phonetic reading, ")
	b.WriteString("the speaker's name and relationship to the learner, and up to three key vocabulary items that are new at this level.\n")
	if source != "" {
		b.WriteString("Base the dialogue on this source text:\n")
		b.WriteString(source)
		b.WriteString("\n")
	}

	return PromptSnapshot{
		Prompt: b.String(),
		Metadata: PromptMetadata{
			Title:            c.Title,
			TargetLanguage:   c.TargetLanguage,
			NativeLanguage:   native,
			ProficiencyLevel: level,
			SourceChars:      utf8.RuneCountInString(strings.TrimSpace(c.SourceText)),
		},
	}, nil
}

// AdvanceToExchanges orders extracted exchanges and renumbers them 1..n.
func AdvanceToExchanges(promptVersion int, customPrompt string, exchanges []courses.DialogueExchange) (ExchangesSnapshot, error) {
	if len(exchanges) == 0 {
		return ExchangesSnapshot{}, apierr.Validationf(string(StageExchanges), "no dialogue exchanges")
	}
	out := make([]courses.DialogueExchange, len(exchanges))
	copy(out, exchanges)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = i + 1
		out[i].VocabularyItems = append([]courses.VocabularyItem(nil), out[i].VocabularyItems...)
	}
	return ExchangesSnapshot{Exchanges: out, CustomPrompt: customPrompt, PromptVersion: promptVersion}, nil
}

// ReplaceExchange returns a new snapshot with the exchange at order swapped
// for edited. Upstream snapshots are untouched.
func ReplaceExchange(prev ExchangesSnapshot, order int, edited courses.DialogueExchange) (ExchangesSnapshot, error) {
	if strings.TrimSpace(edited.TextL2) == "" {
		return ExchangesSnapshot{}, apierr.Validationf(string(StageExchanges), "exchange %d: textL2 is required", order)
	}
	out := prev
	out.Exchanges = make([]courses.DialogueExchange, len(prev.Exchanges))
	copy(out.Exchanges, prev.Exchanges)
	for i := range out.Exchanges {
		if out.Exchanges[i].Order == order {
			edited.Order = order
			out.Exchanges[i] = edited
			return out, nil
		}
	}
	return ExchangesSnapshot{}, apierr.NotFound("exchange_not_found", fmt.Errorf("exchange %d not found", order))
}

// AdvanceToConfig builds the default pacing config for the course. narrator
// overrides the preset narrator voice when set.
func AdvanceToConfig(c courses.Course, exchangesVersion int, narratorVoiceID string) (ConfigSnapshot, error) {
	cfg, err := scriptcfg.BuildDefault(c.TargetLanguage, c.ProficiencyLevel)
	if err != nil {
		return ConfigSnapshot{}, err
	}
	if narratorVoiceID != "" {
		cfg.NarratorVoiceID = narratorVoiceID
	}
	if t := strings.TrimSpace(c.Title); t != "" {
		cfg.ScenarioIntroPrompt = t
	}
	return ConfigSnapshot{Config: cfg, ExchangesVersion: exchangesVersion}, nil
}

// AdvanceToScript compiles the script. It never changes its inputs, so a
// failed audio run can resubmit the same snapshot.
func AdvanceToScript(ex ExchangesSnapshot, exchangesVersion int, cfg ConfigSnapshot, configVersion int) (ScriptSnapshot, error) {
	units, err := compiler.Compile(ex.Exchanges, cfg.Config)
	if err != nil {
		return ScriptSnapshot{}, err
	}
	snap := ScriptSnapshot{
		Units:                    units,
		EstimatedDurationSeconds: compiler.EstimateDurationSeconds(units, compiler.DefaultCharsPerSecond),
		ConfigVersion:            configVersion,
		ExchangesVersion:         exchangesVersion,
	}
	if parts := compiler.SplitLessons(units, cfg.Config.MaxLessonDurationMinutes, compiler.DefaultCharsPerSecond); len(parts) > 1 {
		snap.Lessons = parts
	}
	return snap, nil
}
