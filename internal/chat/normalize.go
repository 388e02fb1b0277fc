// Package chat normalizes inbound chat events into lifecycle actions and
// sends outbound text. The lifecycle sees a canonical string and stays
// transport-agnostic.
package chat

import "strings"

// Normalize canonicalizes an inbound message: strip the bot mention and a
// leading command slash, lowercase, collapse whitespace.
func Normalize(text, botName string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	if botName != "" {
		s = strings.ReplaceAll(s, "@"+strings.ToLower(botName), "")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	return strings.Join(strings.Fields(s), " ")
}

// Mentions reports whether raw text addresses the bot by name.
func Mentions(text, botName string) bool {
	if botName == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(botName))
}
