package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/sonarbot/pkg/sonarbot/history"
)

// ExportDocument renders a user's full chronological history as a
// markdown document: a header block, then one section per exchange. A
// user turn and the assistant reply that immediately follows it are
// grouped into a numbered turn; assistant turns with no preceding user
// turn are rendered standalone. Deterministic for identical input.
func ExportDocument(username string, turns []history.Turn, exportedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Conversation history — Sonar Bot\n")
	fmt.Fprintf(&b, "> User        : %s\n", username)
	fmt.Fprintf(&b, "> Exported at : %s\n", exportedAt.Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&b, "> Total       : %d messages\n\n", len(turns))

	turn := 1
	for i := 0; i < len(turns); i++ {
		t := turns[i]

		if t.Role == history.RoleUser {
			fmt.Fprintf(&b, "---\n\n### Turn %d\n\n", turn)
			fmt.Fprintf(&b, "**[%s] You**\n\n%s\n\n", exportTime(t.Timestamp), t.Content)

			if i+1 < len(turns) && turns[i+1].Role == history.RoleAssistant {
				i++
				reply := turns[i]
				fmt.Fprintf(&b, "**[%s] Assistant**\n\n%s\n\n", exportTime(reply.Timestamp), reply.Content)
				writeCitations(&b, reply.Citations)
			}
			turn++
			continue
		}

		// Assistant turn with no paired user turn.
		fmt.Fprintf(&b, "---\n\n**[%s] Assistant**\n\n%s\n\n", exportTime(t.Timestamp), t.Content)
		writeCitations(&b, t.Citations)
	}

	b.WriteString("---\n\n*Generated by Sonar Bot*")
	return b.String()
}

func writeCitations(b *strings.Builder, citations []string) {
	if len(citations) == 0 {
		return
	}
	b.WriteString("**Sources:**\n")
	for i, url := range citations {
		fmt.Fprintf(b, "[%d] %s\n", i+1, url)
	}
	b.WriteString("\n")
}

func exportTime(ts time.Time) string {
	return ts.Format("02/01/2006 15:04")
}
