package store

import "strings"

const (
	// titleMaxWords bounds the title to the first few words of the text.
	titleMaxWords = 8

	// titleMaxRunes is a hard cap for pathological single-word inputs.
	titleMaxRunes = 60
)

// DeriveTitle builds a conversation title from the first words of the
// user's first message. Whitespace runs collapse to single spaces.
func DeriveTitle(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "New conversation"
	}

	truncated := len(words) > titleMaxWords
	if truncated {
		words = words[:titleMaxWords]
	}

	title := strings.Join(words, " ")
	if runes := []rune(title); len(runes) > titleMaxRunes {
		title = strings.TrimSpace(string(runes[:titleMaxRunes]))
		truncated = true
	}

	if truncated {
		title += "..."
	}

	return title
}
