package formhttp

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strict = bluemonday.StrictPolicy()

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// cleanText strips markup from visitor input and normalizes it to NFC so
// Hebrew with combining points renders and compares consistently. The
// result is plain text; templates escape it again.
func cleanText(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// cleanLine is cleanText for values that end up in mail headers.
func cleanLine(s string) string {
	return cleanText(lineBreaks.Replace(s))
}
