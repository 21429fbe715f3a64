// Package sanitize strips dangerous content from untrusted request payloads.
// It is applied to raw provider input only, before anything is persisted or
// classified; validated, strongly-typed structures must not pass through it
// again.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	scriptBlocks  = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	iframeBlocks  = regexp.MustCompile(`(?is)<iframe\b.*?</iframe\s*>`)
	jsProtocol    = regexp.MustCompile(`(?i)javascript:`)
	eventHandlers = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// String cleans a single untrusted string. The steps run in a fixed order:
// control characters, script/iframe blocks, javascript: prefixes, inline
// event-handler attributes, then a whitespace trim. The strip rules loop to a
// fixpoint: removing a match can splice the surrounding text into a new one
// ("<scr<script>...</script>ipt>" leaves an intact script tag after a single
// pass), so a single pass is not enough to make re-application a no-op.
func String(s string) string {
	s = stripControl(s)
	for {
		next := s
		next = scriptBlocks.ReplaceAllString(next, "")
		next = iframeBlocks.ReplaceAllString(next, "")
		next = jsProtocol.ReplaceAllString(next, "")
		next = eventHandlers.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

// Value recursively cleans an arbitrary tree of maps, slices, and scalars.
// Only string leaves change; nil and non-string values pass through as-is.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[String(k)] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			out[i] = String(val)
		}
		return out
	default:
		return v
	}
}

// Values cleans every value in a flat string map, e.g. decoded form fields.
func Values(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = String(v)
	}
	return out
}

// stripControl removes NUL and the C0/C1 control ranges, keeping tab,
// newline, and carriage return so multi-line message bodies survive.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}
