package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var reBlankLines = regexp.MustCompile(`\n{3,}`)

var textPipeline = Pipeline{
	normalizeNewlines,
	dropControl,
	func(s string) string { return reBlankLines.ReplaceAllString(s, "\n\n") },
	strings.TrimSpace,
}

func TrimSpace(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeText cleans free text such as message bodies. Line breaks are kept,
// other control characters are removed and runs of blank lines are shortened.
func NormalizeText(s string) string {
	return textPipeline.Apply(s)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func dropControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
