package history

// Sanitize rewrites a chronological slice of turns into a sequence that
// satisfies the answer API's alternating-role requirement:
//
//  1. leading assistant turns are dropped — the first entry after the
//     system instruction must be a user turn;
//  2. consecutive turns with the same role are collapsed to the newest of
//     the run (failed exchanges can leave such runs behind);
//  3. trailing user turns are dropped — the caller appends the new
//     question as the next user turn.
//
// Sanitize is pure and idempotent: already-valid input comes back
// unchanged, and empty input yields empty output.
func Sanitize(turns []Turn) []Turn {
	i := 0
	for i < len(turns) && turns[i].Role == RoleAssistant {
		i++
	}
	turns = turns[i:]

	clean := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if n := len(clean); n > 0 && clean[n-1].Role == t.Role {
			clean[n-1] = t
			continue
		}
		clean = append(clean, t)
	}

	for len(clean) > 0 && clean[len(clean)-1].Role == RoleUser {
		clean = clean[:len(clean)-1]
	}
	return clean
}
