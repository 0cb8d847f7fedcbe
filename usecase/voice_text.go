package usecase

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxSpeechChars is the longest text handed to synthesis as-is
	DefaultMaxSpeechChars = 2000
	// DefaultCutSpeechChars is where over-long text is cut before looking
	// back for a sentence terminator
	DefaultCutSpeechChars = 1900
)

var (
	headingPattern   = regexp.MustCompile(`#+[ \t]*`)
	bulletPattern    = regexp.MustCompile(`(?m)^[ \t]*[•\-][ \t]+|•[ \t]*`)
	lineBreakPattern = regexp.MustCompile(`\n{3,}`)
)

// FormatForVoice strips markdown that reads badly when spoken: emphasis,
// heading and bullet markers. Runs of three or more line breaks collapse to
// two. The result is a fixed point, so applying it again changes nothing.
func FormatForVoice(text string) string {
	for {
		next := formatPass(text)
		if next == text {
			return next
		}
		text = next
	}
}

// formatPass never grows its input, so iterating it terminates
func formatPass(text string) string {
	text = strings.ReplaceAll(text, "*", "")
	text = headingPattern.ReplaceAllString(text, "")
	text = bulletPattern.ReplaceAllString(text, "")
	text = lineBreakPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// TruncateForSpeech bounds text for synthesis. Text within maxChars passes
// through untouched. Longer text is cut at cutChars and then back to the last
// '.', '?' or '!' inclusive; without a terminator the hard cut stands.
// Lengths count characters, not bytes.
func TruncateForSpeech(text string, maxChars, cutChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxSpeechChars
	}
	if cutChars <= 0 || cutChars > maxChars {
		cutChars = min(DefaultCutSpeechChars, maxChars)
	}

	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	truncated := runes[:cutChars]
	for i := len(truncated) - 1; i >= 0; i-- {
		switch truncated[i] {
		case '.', '?', '!':
			return string(truncated[:i+1])
		}
	}
	return string(truncated)
}
