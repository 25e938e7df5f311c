// Package sanitize cleans free text supplied by API callers before it is
// written into the record store.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`[ \t\f\v]+`)
)

// StripHTML removes tags, decodes entities and strips again so encoded
// tags do not survive.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = html.UnescapeString(result)
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text strips markup, collapses runs of blanks within lines and cuts the
// result to at most max runes. A max of zero or less means no limit.
func Text(s string, max int) string {
	lines := strings.Split(StripHTML(s), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRegex.ReplaceAllString(line, " "))
	}
	result := strings.TrimSpace(strings.Join(lines, "\n"))
	if max > 0 && utf8.RuneCountInString(result) > max {
		runes := []rune(result)
		result = strings.TrimSpace(string(runes[:max]))
	}
	return result
}
