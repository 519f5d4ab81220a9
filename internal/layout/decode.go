package layout

import (
	"strings"
	"unicode"
)

// Decode slices data into the fields of l, in order. When data runs short
// the remaining fields receive whatever bytes are left (possibly none), so
// every layout name is present in the result. Invalid UTF-8 is replaced and
// surrounding whitespace and NUL padding are trimmed. Decode never fails and
// is safe for concurrent use.
func Decode(data []byte, l FrameLayout) map[string]string {
	out := make(map[string]string, len(l.Fields))
	pos := 0
	for _, f := range l.Fields {
		end := pos + f.Length
		if end > len(data) {
			end = len(data)
		}
		start := pos
		if start > len(data) {
			start = len(data)
		}
		out[f.Name] = Text(data[start:end])
		pos += f.Length
	}
	return out
}

// Text converts raw frame bytes to trimmed display text.
func Text(b []byte) string {
	s := strings.ToValidUTF8(string(b), "\uFFFD")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == 0
	})
}

// Slice returns Text of data[start:end], clamped to the buffer.
func Slice(data []byte, start, end int) string {
	if start > len(data) {
		start = len(data)
	}
	if end > len(data) {
		end = len(data)
	}
	if start > end {
		return ""
	}
	return Text(data[start:end])
}
