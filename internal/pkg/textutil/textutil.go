package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	multipleSpaces = regexp.MustCompile(`[ \t]+`)
	slugInvalid    = regexp.MustCompile(`[^\p{L}\p{N}\s_-]`)
	slugSeparators = regexp.MustCompile(`[\s_-]+`)
)

// isStrippedControl matches control runes except newline and tab
func isStrippedControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}

// Normalize composes text to NFC, drops control characters, collapses
// horizontal whitespace and trims the result.
func Normalize(text string) string {
	t := transform.Chain(norm.NFC, runes.Remove(runes.Predicate(isStrippedControl)))
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	out = multipleSpaces.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// IsBlank reports whether text has no visible content after normalization
func IsBlank(text string) bool {
	return Normalize(text) == ""
}

// Truncate shortens text to maxLen runes, appending "..." when cut
func Truncate(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Slugify converts arbitrary text to a filename-friendly slug
func Slugify(text string) string {
	text = strings.ToLower(Normalize(text))
	text = slugInvalid.ReplaceAllString(text, "")
	text = slugSeparators.ReplaceAllString(text, "-")
	return strings.Trim(text, "-")
}
