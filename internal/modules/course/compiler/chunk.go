package compiler

import (
	"strings"
	"unicode"
)

const maxProgressiveChunks = 4

// ProgressiveChunks splits a phrase into cumulative prefixes, the last one
// being the full phrase. Spaced scripts split on whitespace; scripts written
// without spaces split after punctuation. Text that cannot be split yields a
// single chunk.
func ProgressiveChunks(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var segments []string
	sep := ""
	if strings.IndexFunc(text, unicode.IsSpace) >= 0 {
		segments = strings.Fields(text)
		sep = " "
	} else {
		segments = splitAfterPunct(text)
	}
	if len(segments) <= 1 {
		return []string{text}
	}

	groups := len(segments)
	if groups > maxProgressiveChunks {
		groups = maxProgressiveChunks
	}
	chunks := make([]string, 0, groups)
	for g := 1; g <= groups; g++ {
		end := (g*len(segments) + groups - 1) / groups
		if g == groups {
			chunks = append(chunks, text)
			break
		}
		chunk := trimTrailingPunct(strings.Join(segments[:end], sep))
		if chunk == "" || (len(chunks) > 0 && chunks[len(chunks)-1] == chunk) {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func splitAfterPunct(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if !isPhrasePunct(r) {
			continue
		}
		// keep runs of punctuation with the segment they close
		if i+1 < len(runes) && isPhrasePunct(runes[i+1]) {
			continue
		}
		seg := string(runes[start : i+1])
		if strings.TrimFunc(seg, isPhrasePunct) != "" {
			out = append(out, seg)
			start = i + 1
		}
	}
	if start < len(runes) {
		tail := string(runes[start:])
		if strings.TrimFunc(tail, isPhrasePunct) != "" {
			out = append(out, tail)
		} else if len(out) > 0 {
			out[len(out)-1] += tail
		}
	}
	return out
}

func isPhrasePunct(r rune) bool {
	switch r {
	case '、', '。', '，', '！', '？', '；', '：', '…', '・',
		',', '.', '!', '?', ';', ':':
		return true
	}
	return false
}

func trimTrailingPunct(s string) string {
	return strings.TrimRightFunc(strings.TrimSpace(s), func(r rune) bool {
		return isPhrasePunct(r) || unicode.IsSpace(r)
	})
}
