// Package render converts Perplexity's markdown answers into Telegram's
// HTML dialect, splits oversized messages into sendable chunks, and
// formats history exports.
package render

import (
	"regexp"
	"strings"
)

// The conversion runs as an ordered list of passes. The order is load
// bearing: escaping must happen before any tags are emitted (a literal
// "<" in the answer must never become a tag), and code spans must be
// converted before emphasis so backtick content isn't re-interpreted.
var (
	// ```lang\ncode\n``` — the language tag is ignored.
	fencedCodeRe = regexp.MustCompile("(?s)```(?:\\w+)?\n?(.*?)```")

	// `code` — must not cross a newline.
	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")

	// **bold** / __bold__ — may cross newlines.
	boldStarRe  = regexp.MustCompile(`(?s)\*\*(.+?)\*\*`)
	boldUnderRe = regexp.MustCompile(`(?s)__(.+?)__`)

	// # / ## / ### headings, only at line start.
	headingRe = regexp.MustCompile(`(?m)^#{1,3} +(.+)$`)
)

// ToTelegramHTML converts lightweight markdown into Telegram HTML
// (<pre>, <code>, <b>, <i>). The conversion is total: unmatched
// delimiters stay behind as literal escaped text.
func ToTelegramHTML(text string) string {
	// Pass 1: escape HTML metacharacters across the whole input.
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")

	// Pass 2: fenced code blocks.
	text = fencedCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := fencedCodeRe.FindStringSubmatch(m)[1]
		return "<pre><code>" + strings.TrimSpace(inner) + "</code></pre>"
	})

	// Pass 3: inline code spans.
	text = inlineCodeRe.ReplaceAllString(text, "<code>$1</code>")

	// Pass 4: bold.
	text = boldStarRe.ReplaceAllString(text, "<b>$1</b>")
	text = boldUnderRe.ReplaceAllString(text, "<b>$1</b>")

	// Pass 5: italic. Runs after bold so only lone asterisks remain as
	// candidates.
	text = convertItalics(text)

	// Pass 6: headings become bold lines.
	text = headingRe.ReplaceAllString(text, "<b>$1</b>")

	return text
}

// convertItalics turns *text* into <i>text</i>. RE2 has no lookaround,
// so this pass is a scan instead of a regex: an asterisk adjacent to
// another asterisk is never a delimiter, and a span never crosses a
// newline.
func convertItalics(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	last := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '*' || !loneStar(text, i) {
			continue
		}
		j := closingStar(text, i)
		if j == -1 {
			continue
		}
		b.WriteString(text[last:i])
		b.WriteString("<i>")
		b.WriteString(text[i+1 : j])
		b.WriteString("</i>")
		last = j + 1
		i = j
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// loneStar reports whether the asterisk at i has no asterisk neighbor.
func loneStar(text string, i int) bool {
	if i > 0 && text[i-1] == '*' {
		return false
	}
	if i+1 < len(text) && text[i+1] == '*' {
		return false
	}
	return true
}

// closingStar finds the matching closing asterisk for an opening one at
// open, or -1. The span must be non-empty and stay on one line.
func closingStar(text string, open int) int {
	// Starting at open+1 is safe: loneStar already ruled out an adjacent
	// asterisk, so the span is non-empty whenever a closer is found.
	for j := open + 1; j < len(text); j++ {
		switch text[j] {
		case '\n':
			return -1
		case '*':
			if loneStar(text, j) {
				return j
			}
		}
	}
	return -1
}
