package compiler

import (
	"math"
	"unicode/utf8"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
)

// DefaultCharsPerSecond approximates speech rate for duration estimates.
const DefaultCharsPerSecond = 12.0

// EstimateDurationSeconds guesses the playback length of a script before any
// audio exists. Speech scales with text length and inversely with speed.
func EstimateDurationSeconds(units []courses.ScriptUnit, charsPerSecond float64) float64 {
	if charsPerSecond <= 0 {
		charsPerSecond = DefaultCharsPerSecond
	}
	total := 0.0
	for _, u := range units {
		switch u.Type {
		case courses.UnitPause:
			total += u.Seconds
		case courses.UnitNarrationL1, courses.UnitL2:
			total += float64(utf8.RuneCountInString(u.Text)) / charsPerSecond / u.SpeedOr(1)
		}
	}
	return math.Round(total*10) / 10
}

// SplitLessons cuts a compiled script into parts no longer than maxMinutes,
// splitting only at exchange boundaries. The intro stays in the first part and
// the review block with the outro stays in the last, so review covers every
// exchange of the course once. A single exchange longer than the limit gets a
// part of its own. maxMinutes <= 0 returns the script as one part.
func SplitLessons(units []courses.ScriptUnit, maxMinutes int, charsPerSecond float64) [][]courses.ScriptUnit {
	if maxMinutes <= 0 || len(units) == 0 {
		return [][]courses.ScriptUnit{units}
	}
	limit := float64(maxMinutes) * 60

	head := 0
	if len(units) >= 2 && units[0].Type == courses.UnitNarrationL1 && units[1].Type == courses.UnitPause {
		head = 2
	}
	tail := len(units)
	for i := head; i < len(units); i++ {
		if units[i].Type == courses.UnitMarker && units[i].Label == courses.MarkerReviewStart {
			tail = i
			break
		}
	}
	if tail == len(units) && len(units)-head >= 2 {
		tail = len(units) - 2
	}

	var blocks [][]courses.ScriptUnit
	start := head
	for i := head; i < tail; i++ {
		if units[i].Type == courses.UnitMarker && units[i].Label == courses.MarkerExchangeEnd {
			blocks = append(blocks, units[start:i+1])
			start = i + 1
		}
	}
	if start < tail {
		blocks = append(blocks, units[start:tail])
	}
	if len(blocks) <= 1 {
		return [][]courses.ScriptUnit{units}
	}

	var parts [][]courses.ScriptUnit
	cur := append([]courses.ScriptUnit(nil), units[:head]...)
	curBlocks := 0
	for _, b := range blocks {
		if curBlocks > 0 && EstimateDurationSeconds(cur, charsPerSecond)+EstimateDurationSeconds(b, charsPerSecond) > limit {
			parts = append(parts, append(cur, courses.Marker(courses.MarkerEnd)))
			cur = nil
			curBlocks = 0
		}
		cur = append(cur, b...)
		curBlocks++
	}
	cur = append(cur, units[tail:]...)
	return append(parts, cur)
}
