// Package sanitize strips formatting artifacts from oracle output before it
// reaches a parser.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// An opening fence: a tag line, or a known tag written inline (```json{).
	fenceTag = "(?:[a-zA-Z0-9_+-]*[ \t]*\r?\n|(?:json|python|pyspark|py|sql)\\b)"

	// A complete fenced block: ```lang\n body ```
	fencedBlock = regexp.MustCompile("(?s)```" + fenceTag + "?(.*?)```")
	// An opening fence with its language tag, or any stray fence marker.
	fenceOpen  = regexp.MustCompile("```" + fenceTag)
	fenceStray = regexp.MustCompile("```")
)

// Sanitize returns the artifact text inside raw.
//
// When raw holds fenced blocks their bodies are kept (joined by a blank
// line) and surrounding prose is dropped; stray fence markers are removed;
// invisible and control characters that break parsers or gateways are
// deleted. Fence-free text without such characters is returned unchanged.
func Sanitize(raw string) string {
	text := neutralize(raw)
	if !strings.Contains(text, "```") {
		return text
	}

	if blocks := fencedBlock.FindAllStringSubmatch(text, -1); len(blocks) > 0 {
		bodies := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if body := strings.TrimSpace(b[1]); body != "" {
				bodies = append(bodies, body)
			}
		}
		if len(bodies) > 0 {
			return strings.Join(bodies, "\n\n")
		}
	}

	text = fenceOpen.ReplaceAllString(text, "")
	text = fenceStray.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// neutralize drops NUL and other C0 controls (tab, LF and CR survive), the
// byte-order mark and zero-width characters.
func neutralize(s string) string {
	clean := true
	for _, r := range s {
		if dropRune(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if !dropRune(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func dropRune(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	case '\uFEFF', '\u200B', '\u200C', '\u200D', '\u2060':
		return true
	}
	return r < 0x20 || r == 0x7f
}
