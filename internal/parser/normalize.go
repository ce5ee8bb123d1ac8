package parser

import (
	"regexp"
	"strings"

	"complaint-rag/internal/models"
)

var (
	boilerplateRe = regexp.MustCompile(regexp.QuoteMeta(models.BoilerplatePhrase))
	nonAlphanumRe = regexp.MustCompile(models.NonAlphanumRegex)
	whitespaceRe  = regexp.MustCompile(models.WhitespaceRegex)
)

// CleanText normalizes a complaint narrative for embedding: lower-case, the
// boilerplate opener removed, only [a-z0-9] and single spaces kept.
// Stripping can splice a new boilerplate occurrence together, so the passes
// repeat until the output is stable.
func CleanText(text string) string {
	for {
		next := cleanOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func cleanOnce(text string) string {
	text = strings.ToLower(text)
	text = boilerplateRe.ReplaceAllString(text, "")
	text = nonAlphanumRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// WordCount counts whitespace separated words of the raw narrative.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
