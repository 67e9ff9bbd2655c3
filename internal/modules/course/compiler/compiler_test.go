package compiler

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/modules/course/scriptcfg"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
)

func testConfig(t *testing.T) courses.ScriptConfig {
	t.Helper()
	cfg, err := scriptcfg.BuildDefault("es", "A1")
	if err != nil {
		t.Fatalf("BuildDefault: %v", err)
	}
	return cfg
}

func twoExchanges() []courses.DialogueExchange {
	return []courses.DialogueExchange{
		{
			Order: 2, SpeakerName: "Lucía", RelationshipName: "neighbor", SpeakerVoiceID: "es-ES-B",
			TextL2: "Hasta luego", TranslationL1: "See you later",
			VocabularyItems: []courses.VocabularyItem{{TextL2: "luego", TranslationL1: "later"}},
		},
		{
			Order: 1, SpeakerName: "Marco", RelationshipName: "coworker", SpeakerVoiceID: "es-ES-A",
			TextL2: "Buenos días", TranslationL1: "Good morning",
			VocabularyItems: []courses.VocabularyItem{{TextL2: "días", TranslationL1: "days"}},
		},
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	cfg := testConfig(t)
	a, err := Compile(twoExchanges(), cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	b, err := Compile(twoExchanges(), cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Compile: want identical output on identical input")
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("Compile: serialized output differs")
	}
}

func TestCompileTwoExchangeScenario(t *testing.T) {
	cfg := testConfig(t)
	cfg.PauseAfterVocabItem = 1.5
	units, err := Compile(twoExchanges(), cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	N, L, P, M := courses.UnitNarrationL1, courses.UnitL2, courses.UnitPause, courses.UnitMarker
	exchange := []courses.UnitType{
		N, P, // speaker intro
		N, L, P, // vocab
		N, L, P, N, L, P, // two progressive chunks
		N, P, N, L, P, N, L, N, P, // full phrase, replay, translation
		M,
	}
	want := []courses.UnitType{N, P}
	want = append(want, exchange...)
	want = append(want, exchange...)

	if len(units) < len(want)+2 {
		t.Fatalf("Compile: too few units: %d", len(units))
	}
	for i, typ := range want {
		if units[i].Type != typ {
			t.Fatalf("unit %d: want=%s got=%s (%+v)", i, typ, units[i].Type, units[i])
		}
	}
	if units[6].Seconds != 1.5 || units[6+len(exchange)].Seconds != 1.5 {
		t.Fatalf("vocab pause: want=1.5 got=%v/%v", units[6].Seconds, units[6+len(exchange)].Seconds)
	}
	if units[5].Text != "días" {
		t.Fatalf("exchange order: first vocab want=días got=%q", units[5].Text)
	}
	if units[len(want)-1].Label != courses.MarkerExchangeEnd {
		t.Fatalf("want exchange-end marker at %d", len(want)-1)
	}

	review := units[len(want):]
	if review[0].Type != M || review[0].Label != courses.MarkerReviewStart {
		t.Fatalf("want review-start marker, got %+v", review[0])
	}
	vocab := map[string]bool{}
	for _, u := range review {
		if u.Type == L && (u.Text == "días" || u.Text == "luego") {
			vocab[u.Text] = true
		}
	}
	if len(vocab) != 2 {
		t.Fatalf("review: want 2 distinct vocab items got=%v", vocab)
	}

	last := units[len(units)-2:]
	if last[0].Type != N || last[0].Text != cfg.Templates.Outro {
		t.Fatalf("want outro narration got %+v", last[0])
	}
	if last[1].Type != M || last[1].Label != courses.MarkerEnd {
		t.Fatalf("want end marker got %+v", last[1])
	}
}

func TestReviewAnticipationGrowsPerItem(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReviewRepetitions = 3
	exchanges := twoExchanges()
	// same word taught twice must be reviewed as one item
	exchanges[0].VocabularyItems = append(exchanges[0].VocabularyItems, courses.VocabularyItem{TextL2: " Días ", TranslationL1: "days"})
	units, err := Compile(exchanges, cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	start := -1
	for i, u := range units {
		if u.Type == courses.UnitMarker && u.Label == courses.MarkerReviewStart {
			start = i
		}
	}
	if start < 0 {
		t.Fatalf("no review block")
	}
	last := map[string]float64{}
	count := map[string]int{}
	for i := start + 1; i < len(units); i++ {
		u := units[i]
		if u.Type != courses.UnitL2 {
			continue
		}
		gap := units[i-1]
		if gap.Type != courses.UnitPause {
			t.Fatalf("review L2 at %d not preceded by anticipation pause", i)
		}
		key := courses.NormalizeL2(u.Text)
		if prev, ok := last[key]; ok && gap.Seconds <= prev {
			t.Fatalf("review %q: anticipation not increasing: prev=%v got=%v", u.Text, prev, gap.Seconds)
		}
		last[key] = gap.Seconds
		count[key]++
		if u.SpeedOr(1) != cfg.ReviewSlowSpeed {
			t.Fatalf("review speed: want=%v got=%v", cfg.ReviewSlowSpeed, u.SpeedOr(1))
		}
	}
	if count["días"] != 3 {
		t.Fatalf("días reviews: want=3 got=%d", count["días"])
	}
	// días, luego, and the two full phrases
	if len(count) != 4 {
		t.Fatalf("review items: want=4 got=%d (%v)", len(count), count)
	}
}

func TestCompileEmptyExchanges(t *testing.T) {
	cfg := testConfig(t)
	units, err := Compile(nil, cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := []courses.UnitType{courses.UnitNarrationL1, courses.UnitPause, courses.UnitNarrationL1, courses.UnitMarker}
	if len(units) != len(want) {
		t.Fatalf("len: want=%d got=%d", len(want), len(units))
	}
	for i := range want {
		if units[i].Type != want[i] {
			t.Fatalf("unit %d: want=%s got=%s", i, want[i], units[i].Type)
		}
	}
}

func TestCompileNoVocabFallback(t *testing.T) {
	cfg := testConfig(t)
	ex := []courses.DialogueExchange{{
		Order: 1, SpeakerName: "Ana", RelationshipName: "friend", SpeakerVoiceID: "es-ES-A",
		TextL2: "Gracias", TranslationL1: "Thanks",
	}}
	units, err := Compile(ex, cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	n := 0
	for _, u := range units {
		if u.Text == cfg.Templates.NoVocabTeach {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("noVocabTeach: want=1 got=%d", n)
	}
}

func TestCompileUnchunkablePhraseIsSingleChunk(t *testing.T) {
	cfg := testConfig(t)
	ex := []courses.DialogueExchange{{
		Order: 1, SpeakerName: "Ken", RelationshipName: "friend", SpeakerVoiceID: "ja-JP-A",
		TextL2: "ありがとう", TranslationL1: "Thank you",
	}}
	units, err := Compile(ex, cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	progressive := 0
	for _, u := range units {
		if u.Type == courses.UnitL2 && u.Speed == nil {
			progressive++
		}
	}
	// one chunk plus the full phrase at normal speed
	if progressive != 2 {
		t.Fatalf("normal-speed L2 units: want=2 got=%d", progressive)
	}
}

func TestCompileRejectsMissingVoice(t *testing.T) {
	cfg := testConfig(t)
	ex := twoExchanges()
	ex[1].SpeakerVoiceID = ""
	_, err := Compile(ex, cfg)
	if !apierr.Is(err, apierr.KindCompilation) {
		t.Fatalf("Compile: want compilation error got=%v", err)
	}
	if apierr.StageOf(err) != "script" {
		t.Fatalf("StageOf: want=script got=%q", apierr.StageOf(err))
	}
}

func TestCompileDoesNotReorderInput(t *testing.T) {
	cfg := testConfig(t)
	ex := twoExchanges()
	if _, err := Compile(ex, cfg); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if ex[0].Order != 2 {
		t.Fatalf("input slice was reordered")
	}
}

func TestProgressiveChunks(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Buenos días", []string{"Buenos", "Buenos días"}},
		{"Hola, ¿cómo estás hoy?", []string{"Hola", "Hola, ¿cómo", "Hola, ¿cómo estás", "Hola, ¿cómo estás hoy?"}},
		{"こんにちは、元気ですか。", []string{"こんにちは", "こんにちは、元気ですか。"}},
		{"ありがとう", []string{"ありがとう"}},
		{"  ", nil},
	}
	for _, c := range cases {
		got := ProgressiveChunks(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("ProgressiveChunks(%q): want=%q got=%q", c.in, c.want, got)
		}
	}

	long := ProgressiveChunks("uno dos tres cuatro cinco seis siete ocho")
	if len(long) != maxProgressiveChunks {
		t.Fatalf("long phrase: want=%d chunks got=%d", maxProgressiveChunks, len(long))
	}
	if long[len(long)-1] != "uno dos tres cuatro cinco seis siete ocho" {
		t.Fatalf("last chunk must be the full phrase: %q", long[len(long)-1])
	}
}

func TestFurigana(t *testing.T) {
	in := "今日[きょう]は良[よ]い天気[てんき]です"
	if got := StripFurigana(in); got != "今日は良い天気です" {
		t.Fatalf("StripFurigana: got=%q", got)
	}
	if got := FuriganaToKana(in); got != "きょうはよいてんきです" {
		t.Fatalf("FuriganaToKana: got=%q", got)
	}
	if got := StripFurigana("plain"); got != "plain" {
		t.Fatalf("StripFurigana(plain): got=%q", got)
	}
}

func TestCompileUsesFuriganaReading(t *testing.T) {
	cfg := testConfig(t)
	ex := []courses.DialogueExchange{{
		Order: 1, SpeakerName: "Ken", RelationshipName: "friend", SpeakerVoiceID: "ja-JP-A",
		TextL2: "天気[てんき]", TranslationL1: "weather",
	}}
	units, err := Compile(ex, cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, u := range units {
		if u.Type != courses.UnitL2 {
			continue
		}
		if u.Text != "天気" {
			t.Fatalf("L2 text: want=天気 got=%q", u.Text)
		}
		if u.Reading == nil || *u.Reading != "てんき" {
			t.Fatalf("L2 reading: want=てんき got=%v", u.Reading)
		}
		return
	}
	t.Fatalf("no L2 unit")
}

func TestSplitLessonsKeepsReviewInLastPart(t *testing.T) {
	cfg := testConfig(t)
	units, err := Compile(twoExchanges(), cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if parts := SplitLessons(units, 0, 0); len(parts) != 1 || len(parts[0]) != len(units) {
		t.Fatalf("SplitLessons(0): want the whole script as one part")
	}

	// a one-minute cap forces each exchange into its own part
	parts := SplitLessons(units, 1, 1)
	if len(parts) != 2 {
		t.Fatalf("parts: want=2 got=%d", len(parts))
	}
	for i, p := range parts {
		end := p[len(p)-1]
		if end.Type != courses.UnitMarker || end.Label != courses.MarkerEnd {
			t.Fatalf("part %d must end with the end marker", i)
		}
		hasReview := false
		for _, u := range p {
			if u.Label == courses.MarkerReviewStart {
				hasReview = true
			}
		}
		if hasReview != (i == len(parts)-1) {
			t.Fatalf("part %d: review placement wrong", i)
		}
	}
	if parts[0][0].Type != courses.UnitNarrationL1 || parts[0][1].Type != courses.UnitPause {
		t.Fatalf("first part must open with the intro")
	}
}

func TestEstimateDurationSeconds(t *testing.T) {
	units := []courses.ScriptUnit{
		courses.Narration("abcdefghijkl", "n"),
		courses.Pause(2),
		courses.L2("abcdef", nil, "v", courses.Float64Ptr(0.5)),
		courses.Marker(courses.MarkerEnd),
	}
	if got := EstimateDurationSeconds(units, 12); got != 4 {
		t.Fatalf("EstimateDurationSeconds: want=4 got=%v", got)
	}
}
