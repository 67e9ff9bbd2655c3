package stages

import (
	"reflect"
	"strings"
	"testing"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
)

func TestStageOrder(t *testing.T) {
	next, ok := StagePrompt.Next()
	if !ok || next != StageExchanges {
		t.Fatalf("Next(prompt): want=exchanges got=%q", next)
	}
	if _, ok := StageAudio.Next(); ok {
		t.Fatalf("Next(audio): want none")
	}
	if StageScript.Index() != 3 {
		t.Fatalf("Index(script): want=3 got=%d", StageScript.Index())
	}
	if _, err := Parse("bogus"); !apierr.Is(err, apierr.KindValidation) {
		t.Fatalf("Parse: want validation error got=%v", err)
	}
	err := MissingPrerequisite(StageScript)
	if apierr.StageOf(err) != "script" || !strings.Contains(err.Error(), "config") {
		t.Fatalf("MissingPrerequisite: got=%v", err)
	}
}

func testCourse() courses.Course {
	return courses.Course{
		Title:            "Ordering coffee",
		SourceText:       "A customer orders a coffee and pays.",
		TargetLanguage:   "es",
		NativeLanguage:   "en",
		ProficiencyLevel: "A2",
	}
}

func TestBuildPrompt(t *testing.T) {
	p, err := BuildPrompt(testCourse())
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(p.Prompt, "Ordering coffee") || !strings.Contains(p.Prompt, "pays") {
		t.Fatalf("prompt misses course details: %q", p.Prompt)
	}
	if p.Metadata.TargetLanguage != "es" {
		t.Fatalf("metadata: %+v", p.Metadata)
	}
	if _, err := BuildPrompt(courses.Course{TargetLanguage: "es"}); !apierr.Is(err, apierr.KindValidation) {
		t.Fatalf("empty course: want validation error got=%v", err)
	}
}

func exchanges() []courses.DialogueExchange {
	return []courses.DialogueExchange{
		{Order: 5, SpeakerName: "B", RelationshipName: "barista", SpeakerVoiceID: "es-B", TextL2: "Son dos euros", TranslationL1: "That's two euros"},
		{Order: 2, SpeakerName: "A", RelationshipName: "barista", SpeakerVoiceID: "es-A", TextL2: "¿Qué quieres?", TranslationL1: "What do you want?",
			VocabularyItems: []courses.VocabularyItem{{TextL2: "quieres", TranslationL1: "you want"}}},
	}
}

func TestAdvanceChainIsReproducible(t *testing.T) {
	ex, err := AdvanceToExchanges(1, "", exchanges())
	if err != nil {
		t.Fatalf("AdvanceToExchanges: %v", err)
	}
	if ex.Exchanges[0].Order != 1 || ex.Exchanges[0].SpeakerName != "A" {
		t.Fatalf("exchanges not renumbered in order: %+v", ex.Exchanges[0])
	}
	cfg, err := AdvanceToConfig(testCourse(), 1, "")
	if err != nil {
		t.Fatalf("AdvanceToConfig: %v", err)
	}
	if cfg.Config.ScenarioIntroPrompt != "Ordering coffee" {
		t.Fatalf("scenario: got=%q", cfg.Config.ScenarioIntroPrompt)
	}
	a, err := AdvanceToScript(ex, 1, cfg, 1)
	if err != nil {
		t.Fatalf("AdvanceToScript: %v", err)
	}
	b, err := AdvanceToScript(ex, 1, cfg, 1)
	if err != nil {
		t.Fatalf("AdvanceToScript: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("script snapshots differ for identical inputs")
	}
	if a.EstimatedDurationSeconds <= 0 {
		t.Fatalf("estimate: want > 0")
	}

	raw, err := Encode(a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode[ScriptSnapshot](raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(back.Units) != len(a.Units) || back.ConfigVersion != 1 {
		t.Fatalf("round trip lost data")
	}
}

func TestReplaceExchangeLeavesPreviousSnapshot(t *testing.T) {
	ex, _ := AdvanceToExchanges(1, "", exchanges())
	edited := ex.Exchanges[1]
	edited.TextL2 = "Son tres euros"
	next, err := ReplaceExchange(ex, 2, edited)
	if err != nil {
		t.Fatalf("ReplaceExchange: %v", err)
	}
	if ex.Exchanges[1].TextL2 != "Son dos euros" {
		t.Fatalf("previous snapshot was mutated")
	}
	if next.Exchanges[1].TextL2 != "Son tres euros" || next.Exchanges[1].Order != 2 {
		t.Fatalf("edit not applied: %+v", next.Exchanges[1])
	}
	if _, err := ReplaceExchange(ex, 9, edited); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("missing order: want not_found got=%v", err)
	}
}

func TestStatusesMarkDownstreamStale(t *testing.T) {
	latest := map[Stage]int{StagePrompt: 1, StageExchanges: 2, StageConfig: 1, StageScript: 1}
	basedOn := map[Stage]int{StageExchanges: 1, StageConfig: 1, StageScript: 1}
	got := Statuses(latest, basedOn)
	if len(got) != 5 {
		t.Fatalf("len: want=5 got=%d", len(got))
	}
	if got[1].Stale {
		t.Fatalf("exchanges should be fresh")
	}
	if !got[2].Stale || !got[3].Stale {
		t.Fatalf("config and script should be stale after an exchange edit: %+v", got)
	}
	if got[4].Ready || got[4].Stale {
		t.Fatalf("audio never ran: %+v", got[4])
	}
}
