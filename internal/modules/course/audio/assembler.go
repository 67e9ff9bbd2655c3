package audio

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
)

// Assembly is one playback-speed rendering of a script.
type Assembly struct {
	Speed           float64                 `json:"speed"`
	Audio           []byte                  `json:"-"`
	Format          Format                  `json:"format"`
	Timeline        []courses.TimelineEntry `json:"timeline"`
	TotalDurationMs int64                   `json:"totalDurationMs"`
}

// Assemble concatenates speech segments and pause silence in unit order.
// Every unit gets a timeline entry; markers take zero time. segments must be
// indexed like units. A zero format is taken from the first segment.
func Assemble(units []courses.ScriptUnit, segments []*Segment, format Format) (Assembly, error) {
	if len(segments) != len(units) {
		return Assembly{}, fmt.Errorf("assemble: %d segments for %d units", len(segments), len(units))
	}

	type decoded struct {
		samples []int
		format  Format
	}
	pcm := make([]decoded, len(units))
	for i, u := range units {
		if !u.IsSpeech() {
			continue
		}
		seg := segments[i]
		if seg == nil {
			return Assembly{}, fmt.Errorf("assemble: unit %d has no audio", i)
		}
		samples, f, err := DecodeWAV(seg.Audio)
		if err != nil {
			return Assembly{}, fmt.Errorf("assemble: unit %d: %w", i, err)
		}
		if format.IsZero() {
			format = f
		}
		if f.SampleRate != format.SampleRate || f.Channels != format.Channels {
			return Assembly{}, fmt.Errorf("assemble: unit %d is %d Hz x%d, want %d Hz x%d",
				i, f.SampleRate, f.Channels, format.SampleRate, format.Channels)
		}
		pcm[i] = decoded{samples: samples, format: f}
	}
	if format.IsZero() {
		format = DefaultFormat
	}
	if format.BitDepth == 0 {
		format.BitDepth = 16
	}

	timeline := make([]courses.TimelineEntry, len(units))
	out := make([]int, 0)
	var t int64
	for i, u := range units {
		var dur int64
		switch u.Type {
		case courses.UnitNarrationL1, courses.UnitL2:
			dur = segments[i].DurationMs
			if dur <= 0 {
				dur = pcm[i].format.DurationMs(len(pcm[i].samples))
			}
		case courses.UnitPause:
			dur = int64(math.Round(u.Seconds * 1000))
		}
		start, end := t, t+dur

		// Frame counts come from absolute offsets so rounding never drifts
		// the audio away from the timeline.
		want := int((format.frameAt(end) - format.frameAt(start)) * int64(format.Channels))
		if u.IsSpeech() {
			out = appendFitted(out, pcm[i].samples, want)
		} else if want > 0 {
			out = append(out, make([]int, want)...)
		}

		timeline[i] = courses.TimelineEntry{UnitIndex: i, StartTimeMs: start, EndTimeMs: end}
		t = end
	}

	wavBytes, err := EncodeWAV(out, format)
	if err != nil {
		return Assembly{}, err
	}
	return Assembly{
		Audio:           wavBytes,
		Format:          format,
		Timeline:        timeline,
		TotalDurationMs: t,
	}, nil
}

// appendFitted appends samples padded with silence or truncated to want.
func appendFitted(out, samples []int, want int) []int {
	if len(samples) >= want {
		return append(out, samples[:want]...)
	}
	out = append(out, samples...)
	return append(out, make([]int, want-len(samples))...)
}

// AssembleVariants renders the script once per playback speed. Each speed is
// synthesized separately because speech length does not scale linearly with
// the rate. Progress counts speech units across all speeds.
func (o *Orchestrator) AssembleVariants(ctx context.Context, units []courses.ScriptUnit, speeds []float64, format Format, onProgress ProgressFunc) (map[string]Assembly, error) {
	speeds = uniqueSpeeds(speeds)
	perSpeed := courses.CountSpeech(units)
	total := perSpeed * len(speeds)
	out := make(map[string]Assembly, len(speeds))
	for vi, speed := range speeds {
		key := SpeedKey(speed)
		base := vi * perSpeed
		segments, err := o.SynthesizeAll(ctx, units, speed, func(done, _ int) {
			if onProgress != nil {
				onProgress(base+done, total)
			}
		})
		if err != nil {
			return nil, err
		}
		asm, err := Assemble(units, segments, format)
		if err != nil {
			return nil, err
		}
		asm.Speed = speed
		out[key] = asm
	}
	return out, nil
}

func uniqueSpeeds(speeds []float64) []float64 {
	seen := map[string]bool{}
	out := make([]float64, 0, len(speeds))
	for _, s := range speeds {
		if s <= 0 || seen[SpeedKey(s)] {
			continue
		}
		seen[SpeedKey(s)] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		out = append(out, 1)
	}
	return out
}

func TotalDurationMs(entries []courses.TimelineEntry) int64 {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].EndTimeMs
}

// CheckContiguous verifies the timeline starts at zero and has no gaps or
// overlaps.
func CheckContiguous(entries []courses.TimelineEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if entries[0].StartTimeMs != 0 {
		return errors.New("timeline does not start at 0")
	}
	for i, e := range entries {
		if e.EndTimeMs < e.StartTimeMs {
			return fmt.Errorf("timeline entry %d ends before it starts", i)
		}
		if i > 0 && entries[i-1].EndTimeMs != e.StartTimeMs {
			return fmt.Errorf("timeline gap between entries %d and %d", i-1, i)
		}
	}
	return nil
}
