package courses

type UnitType string

const (
	UnitNarrationL1 UnitType = "narration_L1"
	UnitL2          UnitType = "L2"
	UnitPause       UnitType = "pause"
	UnitMarker      UnitType = "marker"
)

const (
	MarkerExchangeEnd = "exchange-end"
	MarkerReviewStart = "review-start"
	MarkerEnd         = "end"
)

// ScriptUnit is one atomic instruction of a compiled course. Only the fields
// relevant to Type are set.
type ScriptUnit struct {
	Type    UnitType `json:"type"`
	Text    string   `json:"text,omitempty"`
	Reading *string  `json:"reading,omitempty"`
	VoiceID string   `json:"voiceId,omitempty"`
	Speed   *float64 `json:"speed,omitempty"`
	Seconds float64  `json:"seconds,omitempty"`
	Label   string   `json:"label,omitempty"`
}

func Narration(text, voiceID string) ScriptUnit {
	return ScriptUnit{Type: UnitNarrationL1, Text: text, VoiceID: voiceID}
}

func L2(text string, reading *string, voiceID string, speed *float64) ScriptUnit {
	return ScriptUnit{Type: UnitL2, Text: text, Reading: reading, VoiceID: voiceID, Speed: speed}
}

func Pause(seconds float64) ScriptUnit {
	return ScriptUnit{Type: UnitPause, Seconds: seconds}
}

func Marker(label string) ScriptUnit {
	return ScriptUnit{Type: UnitMarker, Label: label}
}

func (u ScriptUnit) IsSpeech() bool {
	return u.Type == UnitNarrationL1 || u.Type == UnitL2
}

// SpeedOr returns the unit's speed multiplier, or def when unset.
func (u ScriptUnit) SpeedOr(def float64) float64 {
	if u.Speed == nil || *u.Speed <= 0 {
		return def
	}
	return *u.Speed
}

func CountSpeech(units []ScriptUnit) int {
	n := 0
	for _, u := range units {
		if u.IsSpeech() {
			n++
		}
	}
	return n
}

// TimelineEntry is derived per playback-speed variant; entries are contiguous.
type TimelineEntry struct {
	UnitIndex   int   `json:"unitIndex"`
	StartTimeMs int64 `json:"startTimeMs"`
	EndTimeMs   int64 `json:"endTimeMs"`
}
