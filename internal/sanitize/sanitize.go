// Package sanitize cleans text that hosts hand to the learning core before
// it is stored or written to the line-oriented correction log. It strips
// control characters, keeps log records on one line and bounds the size of
// stored payloads.
package sanitize

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTextLength is the maximum stored length of free-text activity fields.
const MaxTextLength = 4000

// MaxDetailLength is the maximum length of a correction log detail.
const MaxDetailLength = 500

// MaxKeyLength is the maximum length of a pattern key.
const MaxKeyLength = 200

var (
	// reExcessiveNewlines matches 3 or more consecutive newlines.
	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)

	// reWhitespaceRun matches any run of whitespace, newlines included.
	reWhitespaceRun = regexp.MustCompile(`\s+`)
)

// Text sanitizes a free-text activity field (command, error, output) for
// storage. Newlines and tabs survive; other control characters do not.
//
// The pipeline runs in this order:
//  1. Strip null bytes and ASCII control characters (except \n, \t)
//  2. Normalize \r\n to \n
//  3. Collapse excessive newlines (3+ -> 2)
//  4. Truncate to MaxTextLength
func Text(input string) string {
	if input == "" {
		return ""
	}
	s := strings.ReplaceAll(input, "\r\n", "\n")
	s = stripControlChars(s)
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	return truncate(s, MaxTextLength, "...")
}

// LogDetail flattens s onto a single line so one log entry is always one
// line of the correction log, and bounds it to MaxDetailLength.
func LogDetail(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input)
	s = reWhitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncate(s, MaxDetailLength, "...")
}

// Key normalizes a pattern key: one line, trimmed, at most MaxKeyLength runes.
func Key(input string) string {
	s := LogDetail(input)
	return truncate(s, MaxKeyLength, "")
}

// FilePath strips control characters from a correction descriptor path and
// applies filepath.Clean, which collapses inner "." and ".." elements and
// double separators. Leading ".." elements are kept: the result is not
// confined to any directory.
func FilePath(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input)
	s = strings.NewReplacer("\n", "", "\t", "").Replace(s)
	if s == "" {
		return ""
	}
	return filepath.Clean(s)
}

// truncate cuts s to max runes, appending suffix when it had to cut.
func truncate(s string, max int, suffix string) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + suffix
}

// stripControlChars removes ASCII control characters (0x00-0x1F) and DEL (0x7F) from
// the string, except for newline (0x0A) and tab (0x09) which are preserved.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 || r == 0x7F) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
