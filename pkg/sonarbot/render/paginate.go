package render

import (
	"strings"
	"unicode/utf8"
)

// TelegramMessageLimit is Telegram's maximum message length.
const TelegramMessageLimit = 4096

// Paginate splits text into chunks no longer than limit characters
// (characters, not bytes — the platform counts them that way). Short
// input is returned unchanged as a single chunk. Cuts prefer a blank
// line at or before the limit, then a line break, then a hard cut; each
// emitted chunk is trimmed of surrounding whitespace.
func Paginate(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		window := text[:byteOffset(text, limit)]
		cut := strings.LastIndex(window, "\n\n")
		if cut == -1 {
			cut = strings.LastIndex(window, "\n")
		}
		if cut == -1 {
			cut = len(window)
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// byteOffset returns the byte index just past the first n runes of s
// (or len(s) if s is shorter).
func byteOffset(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
