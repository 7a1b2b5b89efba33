package render

import (
	"strings"
	"testing"
)

func TestToTelegramHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"html escape", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"inline code and bold", "`code` and **bold**", "<code>code</code> and <b>bold</b>"},
		{"bold underscores", "__strong__", "<b>strong</b>"},
		{"bold across newline", "**two\nlines**", "<b>two\nlines</b>"},
		{"italic", "an *emphasized* word", "an <i>emphasized</i> word"},
		{"italic not across newline", "*no\nspan*", "*no\nspan*"},
		{"double star not italic", "a ** b", "a ** b"},
		{"fenced code block", "```go\nfmt.Println()\n```", "<pre><code>fmt.Println()</code></pre>"},
		{"fenced block no language", "```\nx := 1\n```", "<pre><code>x := 1</code></pre>"},
		{"code block keeps angle brackets escaped", "```\na < b\n```", "<pre><code>a &lt; b</code></pre>"},
		{"heading h1", "# Title", "<b>Title</b>"},
		{"heading h3", "### Deep", "<b>Deep</b>"},
		{"heading mid-line ignored", "not # a heading", "not # a heading"},
		{"four hashes ignored", "#### Too deep", "#### Too deep"},
		{"unmatched backtick literal", "a ` b", "a ` b"},
		{"unmatched bold literal", "**open", "**open"},
		{"heading among lines", "intro\n## Section\nbody", "intro\n<b>Section</b>\nbody"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ToTelegramHTML(tt.in)
			if got != tt.want {
				t.Errorf("ToTelegramHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToTelegramHTML_ItalicAdjacency(t *testing.T) {
	t.Parallel()

	// A lone asterisk next to another asterisk is never an italic
	// delimiter, so leftovers from unmatched bold runs stay literal.
	tests := []struct {
		in   string
		want string
	}{
		{"*a* *b*", "<i>a</i> <i>b</i>"},
		{"**bold** and *ital*", "<b>bold</b> and <i>ital</i>"},
		{"* lonely star", "* lonely star"},
	}
	for _, tt := range tests {
		if got := ToTelegramHTML(tt.in); got != tt.want {
			t.Errorf("ToTelegramHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToTelegramHTML_NoRawAngleBrackets(t *testing.T) {
	t.Parallel()

	// Whatever the input, a "<" or ">" in the output must come from a
	// recognized markdown construct, never from the source text.
	inputs := []string{
		"<script>alert(1)</script>",
		"5 > 3 and 2 < 4",
		"`<code>` **<b>**",
		"# <Heading>",
		"```\n<html>\n```",
	}
	for _, in := range inputs {
		out := ToTelegramHTML(in)
		stripped := out
		for _, tag := range []string{"<pre>", "</pre>", "<code>", "</code>", "<b>", "</b>", "<i>", "</i>"} {
			stripped = strings.ReplaceAll(stripped, tag, "")
		}
		if strings.ContainsAny(stripped, "<>") {
			t.Errorf("ToTelegramHTML(%q) leaked raw angle bracket: %q", in, out)
		}
	}
}
