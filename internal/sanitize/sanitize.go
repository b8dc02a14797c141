// Package sanitize cleans user-supplied text before it is stored. Display
// names end up in JSON responses and notification emails, so markup is
// stripped at the door rather than trusted to every renderer.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// policy strips every element and attribute. Initialized once via
// sync.Once; bluemonday policies are safe for concurrent use.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// maxPasses bounds how many layers of entity encoding PlainText unwraps.
const maxPasses = 4

// PlainText removes all HTML tags from input and returns the remaining text
// unescaped and trimmed. "<b>Ada</b> & co" becomes "Ada & co". Markup hidden
// behind entities ("&lt;b&gt;") is decoded and stripped as well; input still
// changing after maxPasses is returned in escaped form.
func PlainText(input string) string {
	if input == "" {
		return ""
	}
	p := getPolicy()
	text := input
	for i := 0; i < maxPasses; i++ {
		next := html.UnescapeString(p.Sanitize(text))
		if next == text {
			return strings.TrimSpace(text)
		}
		text = next
	}
	return strings.TrimSpace(p.Sanitize(text))
}
