package scriptcfg

import "strings"

// Vars are the placeholder values a narration template may reference, for
// example {speakerName} or {translation}.
type Vars map[string]string

// Render substitutes {name} placeholders. Unknown placeholders and unmatched
// braces are left as written so a typo shows up in the narration.
func Render(tmpl string, vars Vars) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		if tmpl[i] != '{' {
			b.WriteByte(tmpl[i])
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i+1:], '}')
		if end < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		name := tmpl[i+1 : i+1+end]
		if v, ok := vars[name]; ok && isPlaceholderName(name) {
			b.WriteString(v)
		} else {
			b.WriteString(tmpl[i : i+end+2])
		}
		i += end + 2
	}
	return strings.TrimSpace(collapseSpaces(b.String()))
}

func isPlaceholderName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func collapseSpaces(s string) string {
	if !strings.Contains(s, "  ") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}
