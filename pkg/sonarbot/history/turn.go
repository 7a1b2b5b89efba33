// Package history stores the per-user conversation log in SQLite and
// prepares bounded slices of it for submission to the answer API.
package history

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one stored message: either the user's question or the
// assistant's answer. Citations are only ever present on assistant turns.
type Turn struct {
	// ID is assigned by the store on insert, monotonically increasing.
	ID int64

	// UserID is the Telegram user the turn belongs to.
	UserID int64

	// Role is "user" or "assistant".
	Role Role

	// Content is the message text. Never empty.
	Content string

	// Citations are source URLs backing an assistant answer.
	Citations []string

	// Timestamp is assigned by the store on insert.
	Timestamp time.Time
}
