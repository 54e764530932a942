// Package htmlsanitize reduces scraped or provider-supplied markup to plain text.
// It uses bluemonday's strict policy so no tag, attribute or script survives.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// policy is the shared bluemonday policy that strips every element.
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, creating it on first use.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText strips all markup from s, decodes entities, and collapses
// whitespace runs to single spaces.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	cleaned := html.UnescapeString(getPolicy().Sanitize(s))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Attributes returns a copy of attrs with every string value, at any depth,
// reduced to plain text. Other values are copied as-is.
func Attributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = cleanValue(v)
	}
	return out
}

func cleanValue(v any) any {
	switch t := v.(type) {
	case string:
		return PlainText(t)
	case map[string]any:
		return Attributes(t)
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = cleanValue(item)
		}
		return list
	default:
		return v
	}
}
