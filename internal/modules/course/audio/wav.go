package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV returns the interleaved PCM samples of a WAV file.
func DecodeWAV(data []byte) ([]int, Format, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, Format{}, errors.New("decode wav: invalid file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("decode wav: %w", err)
	}
	f := Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans), BitDepth: int(d.BitDepth)}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, Format{}, fmt.Errorf("decode wav: bad header rate=%d channels=%d", f.SampleRate, f.Channels)
	}
	return buf.Data, f, nil
}

// EncodeWAV writes interleaved PCM samples as a WAV file.
func EncodeWAV(samples []int, f Format) ([]byte, error) {
	if f.BitDepth == 0 {
		f.BitDepth = 16
	}
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, f.SampleRate, f.BitDepth, f.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           samples,
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return ws.buf, nil
}

// DurationMs is the playback length of n interleaved samples.
func (f Format) DurationMs(samples int) int64 {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := int64(samples / f.Channels)
	return int64(math.Round(float64(frames) * 1000 / float64(f.SampleRate)))
}

// frameAt maps a millisecond offset to a frame index.
func (f Format) frameAt(ms int64) int64 {
	return int64(math.Round(float64(ms) * float64(f.SampleRate) / 1000))
}

// Tone renders a quiet sine wave, used by the mock speech provider so dev
// builds produce audible placeholders.
func Tone(durationMs int64, freqHz float64, f Format) ([]byte, error) {
	if f.IsZero() {
		f = DefaultFormat
	}
	frames := f.frameAt(durationMs)
	amp := 0.2 * float64(int(1)<<(f.BitDepth-1)-1)
	samples := make([]int, 0, frames*int64(f.Channels))
	for i := int64(0); i < frames; i++ {
		v := int(amp * math.Sin(2*math.Pi*freqHz*float64(i)/float64(f.SampleRate)))
		for c := 0; c < f.Channels; c++ {
			samples = append(samples, v)
		}
	}
	return EncodeWAV(samples, f)
}

// memWriteSeeker lets the WAV encoder patch its header in memory.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: bad whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	m.pos = int(next)
	return next, nil
}
