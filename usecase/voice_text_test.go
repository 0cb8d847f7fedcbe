package usecase

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatForVoice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain text", "Section 498A applies here.", "Section 498A applies here."},
		{"bold and italic", "This is **very** *important*.", "This is very important."},
		{"headings", "## Your rights\nYou may appeal.", "Your rights\nYou may appeal."},
		{"dash bullets", "Options:\n- file a complaint\n- approach the court", "Options:\nfile a complaint\napproach the court"},
		{"dot bullets", "Options:\n• mediation\n• arbitration", "Options:\nmediation\narbitration"},
		{"hyphenated words survive", "A well-known rule.", "A well-known rule."},
		{"collapse blank lines", "First.\n\n\n\nSecond.", "First.\n\nSecond."},
		{"trim", "  \n Hello \n ", "Hello"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatForVoice(tt.input)
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestFormatForVoiceIdempotent(t *testing.T) {
	inputs := []string{
		"**bold** and *italic* and ***both***",
		"# Title\n\n\n\n## Sub\n- item\n- item",
		"-•  nested marker",
		"- - double bullet",
		"\n\n- \n\n\nafter",
		"#*#*# mixed",
		"line\n\n*\n\nline",
		"   ",
		"Tax • Law",
	}

	for _, input := range inputs {
		once := FormatForVoice(input)
		twice := FormatForVoice(once)
		if once != twice {
			t.Errorf("Expected idempotent result for %q: once %q, twice %q", input, once, twice)
		}
		if strings.ContainsAny(once, "*#") {
			t.Errorf("Expected no markup in %q", once)
		}
		if strings.Contains(once, "\n\n\n") {
			t.Errorf("Expected at most two consecutive line breaks in %q", once)
		}
	}
}

func TestTruncateForSpeechIdentityUnderLimit(t *testing.T) {
	inputs := []string{"", "Short answer.", strings.Repeat("a", 2000)}
	for _, input := range inputs {
		if got := TruncateForSpeech(input, 2000, 1900); got != input {
			t.Errorf("Expected identity for input of length %d, got length %d", len(input), len(got))
		}
	}
}

func TestTruncateForSpeechCutsAtLastTerminator(t *testing.T) {
	input := []byte(strings.Repeat("a", 2500))
	input[1850] = '.'

	result := TruncateForSpeech(string(input), 2000, 1900)

	if len(result) != 1851 {
		t.Fatalf("Expected 1851 characters, got %d", len(result))
	}
	if !strings.HasSuffix(result, ".") {
		t.Errorf("Expected result to end with the period")
	}
}

func TestTruncateForSpeechTerminators(t *testing.T) {
	tests := []struct {
		name       string
		terminator byte
	}{
		{"period", '.'},
		{"question", '?'},
		{"exclamation", '!'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := []byte(strings.Repeat("b", 2100))
			input[100] = '.'
			input[1500] = tt.terminator
			input[1950] = '.'

			result := TruncateForSpeech(string(input), 2000, 1900)
			if len(result) != 1501 {
				t.Errorf("Expected 1501 characters, got %d", len(result))
			}
		})
	}
}

func TestTruncateForSpeechHardCutWithoutTerminator(t *testing.T) {
	result := TruncateForSpeech(strings.Repeat("x", 3000), 2000, 1900)
	if len(result) != 1900 {
		t.Errorf("Expected hard cut at 1900, got %d", len(result))
	}
}

func TestTruncateForSpeechNeverExceedsMax(t *testing.T) {
	for _, n := range []int{0, 1, 1999, 2000, 2001, 5000} {
		input := strings.Repeat("word. ", n/6+1)[:n]
		result := TruncateForSpeech(input, 2000, 1900)
		if utf8.RuneCountInString(result) > 2000 {
			t.Errorf("Expected at most 2000 characters for input %d, got %d", n, len(result))
		}
	}
}

func TestTruncateForSpeechCountsCharacters(t *testing.T) {
	input := strings.Repeat("é", 2001)
	result := TruncateForSpeech(input, 2000, 1900)

	if !utf8.ValidString(result) {
		t.Fatal("Expected valid UTF-8 after truncation")
	}
	if n := utf8.RuneCountInString(result); n != 1900 {
		t.Errorf("Expected 1900 characters, got %d", n)
	}
}

func TestTruncateForSpeechDefaults(t *testing.T) {
	input := strings.Repeat("y", 2500)
	if got := TruncateForSpeech(input, 0, 0); len(got) != DefaultCutSpeechChars {
		t.Errorf("Expected default cut %d, got %d", DefaultCutSpeechChars, len(got))
	}
}
