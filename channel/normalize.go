package channel

import (
	"strings"
	"unicode"
)

// normalizeForEchoMatch lowercases and collapses runs of whitespace to a single
// space, so echo detection tolerates terminal line-wrapping and case differences
// between what was written and what the device echoes back.
func normalizeForEchoMatch(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		b.WriteRune(unicode.ToLower(r))
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}
