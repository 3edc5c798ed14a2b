package push

import (
	"regexp"
	"strings"
)

var (
	// reTag matches a whole bracketed tag like "[URGENT]"; these are cut
	// from the body.
	reTag = regexp.MustCompile(`\[.*?\]`)
	// reTagName matches the bracket-free run that closes a tag, so nested or
	// unbalanced input yields the innermost name: "[a[b]]" names "b".
	reTagName = regexp.MustCompile(`[^\[\]]+\]`)
)

// ParseTags splits a link title that carries bracketed tags into a title
// built from the tags and a body with the tags removed.
//
//	"[URGENT] Server down" -> ("URGENT", " Server down")
//	"[A][B] message"       -> ("A | B", " message")
//
// With more than one tag the first one is uppercased. Without tags both
// title and body are the input. Results are not trimmed.
func ParseTags(message string) (title, body string) {
	title, body = message, message

	found := reTagName.FindAllString(message, -1)
	if len(found) == 0 {
		return title, body
	}
	names := make([]string, len(found))
	for i, n := range found {
		names[i] = strings.TrimSuffix(n, "]")
	}

	for _, tag := range reTag.FindAllString(message, -1) {
		body = strings.Replace(body, tag, "", 1)
	}

	if len(names) > 1 {
		names[0] = strings.ToUpper(names[0])
	}
	return strings.Join(names, " | "), body
}
