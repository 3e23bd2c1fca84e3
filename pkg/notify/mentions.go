package notify

import (
	"regexp"
	"strings"
)

// BroadcastHandle is the sentinel returned for the literal token @all. It
// means "every known agent" and is resolved by the caller, not the parser.
const BroadcastHandle = "all"

var mentionRe = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// ParseMentions extracts @handle tokens from free text. Handles are
// lower-cased, deduplicated and returned in insertion order. A handle is
// `@` followed by one or more alphanumeric, hyphen or underscore
// characters; anything else terminates the token.
func ParseMentions(text string) []string {
	if text == "" {
		return nil
	}
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		h := strings.ToLower(m[1])
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
