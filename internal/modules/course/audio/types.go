package audio

import (
	"context"
	"strconv"
)

// SynthesisRequest asks the speech provider for one line. Speed is a
// multiplier where 1 is the provider's normal rate.
type SynthesisRequest struct {
	Text    string
	VoiceID string
	Speed   float64
}

// Segment is one synthesized line as a WAV file.
type Segment struct {
	Audio      []byte
	DurationMs int64
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (Segment, error)
}

type Format struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bitDepth"`
}

// DefaultFormat matches the 24 kHz mono PCM both speech providers emit.
var DefaultFormat = Format{SampleRate: 24000, Channels: 1, BitDepth: 16}

func (f Format) IsZero() bool { return f.SampleRate == 0 }

// SpeedKey names a playback-speed variant, e.g. "0.75" or "1.00".
func SpeedKey(speed float64) string {
	return strconv.FormatFloat(speed, 'f', 2, 64)
}
