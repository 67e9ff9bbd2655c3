package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/modules/course/scriptcfg"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
)

type reviewItem struct {
	text        string
	reading     *string
	translation string
	voiceID     string
}

type compiler struct {
	cfg   courses.ScriptConfig
	units []courses.ScriptUnit

	introduced map[string]bool
	vocab      []reviewItem
	phrases    []reviewItem
	seenPhrase map[string]bool
}

// Compile turns ordered dialogue exchanges into the course script. The result
// depends only on its inputs: the same exchanges and config always yield the
// same units.
func Compile(exchanges []courses.DialogueExchange, cfg courses.ScriptConfig) ([]courses.ScriptUnit, error) {
	if err := scriptcfg.Validate(cfg); err != nil {
		return nil, err
	}
	ordered := make([]courses.DialogueExchange, len(exchanges))
	copy(ordered, exchanges)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	for _, ex := range ordered {
		if err := checkExchange(ex); err != nil {
			return nil, err
		}
	}

	c := &compiler{
		cfg:        cfg,
		introduced: map[string]bool{},
		seenPhrase: map[string]bool{},
	}
	c.intro()
	for _, ex := range ordered {
		c.exchange(ex)
	}
	c.review()
	c.outro()
	return c.units, nil
}

func checkExchange(ex courses.DialogueExchange) error {
	if strings.TrimSpace(StripFurigana(ex.TextL2)) == "" {
		return apierr.Compilation(fmt.Errorf("exchange %d: textL2 is empty", ex.Order))
	}
	if strings.TrimSpace(ex.SpeakerVoiceID) == "" {
		return apierr.Compilation(fmt.Errorf("exchange %d: speakerVoiceId is missing", ex.Order))
	}
	for i, item := range ex.VocabularyItems {
		if strings.TrimSpace(StripFurigana(item.TextL2)) == "" {
			return apierr.Compilation(fmt.Errorf("exchange %d: vocabulary item %d has empty textL2", ex.Order, i))
		}
	}
	return nil
}

func (c *compiler) emit(u ...courses.ScriptUnit) {
	c.units = append(c.units, u...)
}

func (c *compiler) narrate(tmpl string, vars scriptcfg.Vars) {
	c.emit(courses.Narration(scriptcfg.Render(tmpl, vars), c.cfg.NarratorVoiceID))
}

func (c *compiler) intro() {
	c.narrate(c.cfg.Templates.ScenarioIntro, scriptcfg.Vars{"scenario": c.cfg.ScenarioIntroPrompt})
	c.emit(courses.Pause(c.cfg.PauseAfterScenarioIntro))
}

func (c *compiler) exchange(ex courses.DialogueExchange) {
	tpl := c.cfg.Templates
	text := strings.TrimSpace(StripFurigana(ex.TextL2))
	reading := readingFor(ex.TextL2, ex.ReadingL2)
	vars := scriptcfg.Vars{
		"speakerName":      ex.SpeakerName,
		"relationshipName": ex.RelationshipName,
		"translation":      ex.TranslationL1,
		"textL2":           text,
	}

	c.narrate(tpl.SpeakerSays, vars)
	c.emit(courses.Pause(c.cfg.PauseAfterSpeakerIntro))

	if len(ex.VocabularyItems) == 0 {
		c.narrate(tpl.NoVocabTeach, vars)
	}
	for _, item := range ex.VocabularyItems {
		key := courses.NormalizeL2(StripFurigana(item.TextL2))
		if c.introduced[key] {
			continue
		}
		c.introduced[key] = true
		ri := reviewItem{
			text:        strings.TrimSpace(StripFurigana(item.TextL2)),
			reading:     readingFor(item.TextL2, item.ReadingL2),
			translation: item.TranslationL1,
			voiceID:     ex.SpeakerVoiceID,
		}
		c.vocab = append(c.vocab, ri)
		c.narrate(tpl.VocabTeach, scriptcfg.Vars{
			"translation":      item.TranslationL1,
			"textL2":           ri.text,
			"speakerName":      ex.SpeakerName,
			"relationshipName": ex.RelationshipName,
		})
		c.emit(
			courses.L2(ri.text, ri.reading, ex.SpeakerVoiceID, nil),
			courses.Pause(c.cfg.PauseAfterVocabItem),
		)
	}

	chunks := ProgressiveChunks(text)
	for i, chunk := range chunks {
		chunkVars := scriptcfg.Vars{
			"prompt":           c.cfg.ProgressivePrompt,
			"chunkIndex":       strconv.Itoa(i + 1),
			"chunkCount":       strconv.Itoa(len(chunks)),
			"speakerName":      ex.SpeakerName,
			"relationshipName": ex.RelationshipName,
			"translation":      ex.TranslationL1,
		}
		var chunkReading *string
		if i == len(chunks)-1 {
			chunkReading = reading
		}
		c.narrate(tpl.ProgressiveChunk, chunkVars)
		c.emit(
			courses.L2(chunk, chunkReading, ex.SpeakerVoiceID, nil),
			courses.Pause(c.cfg.PauseBetweenRepetitions),
		)
	}

	c.narrate(tpl.ResponseIntro, vars)
	c.emit(courses.Pause(c.cfg.PauseForLearnerResponse))
	c.narrate(tpl.FullPhrase, vars)
	c.emit(
		courses.L2(text, reading, ex.SpeakerVoiceID, nil),
		courses.Pause(c.cfg.PauseAfterFullPhrase),
	)
	c.narrate(tpl.FullPhraseReplay, vars)
	c.emit(courses.L2(text, reading, ex.SpeakerVoiceID, courses.Float64Ptr(c.cfg.SlowSpeed)))
	c.narrate(tpl.Translation, vars)
	c.emit(
		courses.Pause(c.cfg.PauseAfterTranslation),
		courses.Marker(courses.MarkerExchangeEnd),
	)

	if key := courses.NormalizeL2(text); !c.seenPhrase[key] {
		c.seenPhrase[key] = true
		c.phrases = append(c.phrases, reviewItem{
			text:        text,
			reading:     reading,
			translation: ex.TranslationL1,
			voiceID:     ex.SpeakerVoiceID,
		})
	}
}

// review replays every taught item in interleaved rounds. Occurrence k of an
// item waits k times the base anticipation, so gaps grow per item.
func (c *compiler) review() {
	items := make([]reviewItem, 0, len(c.vocab)+len(c.phrases))
	items = append(items, c.vocab...)
	items = append(items, c.phrases...)
	if len(items) == 0 {
		return
	}
	c.emit(courses.Marker(courses.MarkerReviewStart))
	for k := 1; k <= c.cfg.ReviewRepetitions; k++ {
		for _, it := range items {
			c.narrate(c.cfg.Templates.ReviewIntro, scriptcfg.Vars{
				"translation": it.translation,
				"textL2":      it.text,
				"occurrence":  strconv.Itoa(k),
			})
			c.emit(
				courses.Pause(c.cfg.ReviewAnticipationSeconds*float64(k)),
				courses.L2(it.text, it.reading, it.voiceID, courses.Float64Ptr(c.cfg.ReviewSlowSpeed)),
				courses.Pause(c.cfg.ReviewRepeatPauseSeconds),
			)
		}
	}
}

func (c *compiler) outro() {
	c.narrate(c.cfg.Templates.Outro, nil)
	c.emit(courses.Marker(courses.MarkerEnd))
}

func readingFor(raw string, explicit *string) *string {
	if explicit != nil && strings.TrimSpace(*explicit) != "" {
		return courses.StrPtr(strings.TrimSpace(*explicit))
	}
	if HasFurigana(raw) {
		return courses.StrPtr(FuriganaToKana(raw))
	}
	return nil
}
