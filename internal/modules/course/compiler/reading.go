package compiler

import (
	"strings"
	"unicode/utf8"
)

// Bracket readings follow the furigana service format: 漢[かん]字[じ].

// HasFurigana reports whether s carries at least one bracket reading.
func HasFurigana(s string) bool {
	open := strings.IndexByte(s, '[')
	return open >= 0 && strings.IndexByte(s[open:], ']') > 0
}

// StripFurigana drops bracket readings, leaving the written form.
func StripFurigana(s string) string {
	if !HasFurigana(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '[' {
			if end := strings.IndexByte(s[i:], ']'); end > 0 {
				i += end + 1
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// FuriganaToKana replaces every kanji run that carries a bracket reading with
// the reading itself. Runs without a reading are kept.
func FuriganaToKana(s string) string {
	if !HasFurigana(s) {
		return s
	}
	out := make([]rune, 0, utf8.RuneCountInString(s))
	runStart := -1
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == '[' {
			if end := strings.IndexByte(s[i:], ']'); end > 0 {
				reading := s[i+1 : i+end]
				if runStart >= 0 {
					out = out[:runStart]
				}
				out = append(out, []rune(reading)...)
				runStart = -1
				i += end + 1
				continue
			}
		}
		if isKanji(r) {
			if runStart < 0 {
				runStart = len(out)
			}
		} else {
			runStart = -1
		}
		out = append(out, r)
		i += size
	}
	return string(out)
}

func isKanji(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF,
		r >= 0x3400 && r <= 0x4DBF,
		r >= 0x20000 && r <= 0x2CEAF,
		r >= 0xF900 && r <= 0xFAFF,
		r == 0x3005: // 々
		return true
	}
	return false
}
