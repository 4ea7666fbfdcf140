// Package extract pulls the generated source out of a model response.
package extract

import (
	"regexp"
	"strings"
)

// Header is prepended to every extracted client.
const Header = "// Generated TypeScript client for API\n\n"

var (
	// A fence whose opening line ends in a newline, with or without an info
	// string such as "ts" or "ts title=client.ts".
	taggedFence = regexp.MustCompile("(?s)```[^\\n`]*\\n(.*?)```")
	// An inline fence with no newline after the opening backticks.
	bareFence = regexp.MustCompile("(?s)```(.*?)```")
)

// Code returns the contents of the first fenced block in text, trimmed. If
// text has no fenced block the whole trimmed text is returned and ok is
// false.
func Code(text string) (code string, ok bool) {
	loc := taggedFence.FindStringSubmatchIndex(text)
	bare := bareFence.FindStringSubmatchIndex(text)
	switch {
	case loc != nil && (bare == nil || loc[0] <= bare[0]):
		return strings.TrimSpace(text[loc[2]:loc[3]]), true
	case bare != nil:
		return strings.TrimSpace(text[bare[2]:bare[3]]), true
	default:
		return strings.TrimSpace(text), false
	}
}

// Client extracts the code from a model response and prefixes Header. ok
// reports whether a fenced block was found.
func Client(text string) (client string, ok bool) {
	code, ok := Code(text)
	return Header + code, ok
}
