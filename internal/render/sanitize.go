// Package render cleans comment HTML before it is shown. The allow-list matches
// what the comment service permits in comment text.
package render

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// policy is safe for concurrent use once built
var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("code", "i", "strong", "p", "br", "em", "b")

	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Sanitize strips every tag and attribute outside the allow-list.
// Empty input yields empty output.
func Sanitize(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	return policy.Sanitize(rawHTML)
}

// PlainText drops all markup, for terminals and previews that cannot render HTML
func PlainText(rawHTML string) string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(rawHTML))
}
