package history

import (
	"reflect"
	"testing"
)

// turnsOf builds a minimal history from a role sequence; content encodes
// the original position so collapse behavior (keep the newest) is visible.
func turnsOf(roles ...Role) []Turn {
	turns := make([]Turn, len(roles))
	for i, r := range roles {
		turns[i] = Turn{ID: int64(i + 1), Role: r, Content: string(r)}
	}
	return turns
}

func rolesOf(turns []Turn) []Role {
	roles := make([]Role, len(turns))
	for i, t := range turns {
		roles[i] = t.Role
	}
	return roles
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []Role
		want []Role
	}{
		{"empty", nil, nil},
		{"already valid", []Role{RoleUser, RoleAssistant}, []Role{RoleUser, RoleAssistant}},
		{"leading assistant dropped", []Role{RoleAssistant, RoleUser, RoleAssistant}, []Role{RoleUser, RoleAssistant}},
		{"all assistants dropped", []Role{RoleAssistant, RoleAssistant}, nil},
		{"trailing user dropped", []Role{RoleUser, RoleAssistant, RoleUser}, []Role{RoleUser, RoleAssistant}},
		{"single user dropped", []Role{RoleUser}, nil},
		{"duplicate users collapsed", []Role{RoleUser, RoleUser, RoleAssistant}, []Role{RoleUser, RoleAssistant}},
		{"duplicate assistants collapsed", []Role{RoleUser, RoleAssistant, RoleAssistant}, []Role{RoleUser, RoleAssistant}},
		{"lead drop then collapse then trail",
			[]Role{RoleAssistant, RoleUser, RoleUser, RoleAssistant},
			[]Role{RoleUser, RoleAssistant}},
		{"long mixed run",
			[]Role{RoleAssistant, RoleAssistant, RoleUser, RoleAssistant, RoleUser, RoleUser, RoleUser},
			[]Role{RoleUser, RoleAssistant}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rolesOf(Sanitize(turnsOf(tt.in...)))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sanitize(%v) roles = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize_KeepsNewestOfRun(t *testing.T) {
	t.Parallel()

	in := []Turn{
		{ID: 1, Role: RoleUser, Content: "old question"},
		{ID: 2, Role: RoleUser, Content: "new question"},
		{ID: 3, Role: RoleAssistant, Content: "answer"},
	}
	got := Sanitize(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0].Content != "new question" {
		t.Errorf("expected newest of the user run to survive, got %q", got[0].Content)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	t.Parallel()

	histories := [][]Role{
		nil,
		{RoleUser, RoleAssistant},
		{RoleAssistant, RoleUser, RoleUser, RoleAssistant},
		{RoleUser, RoleUser, RoleUser},
		{RoleAssistant, RoleAssistant, RoleUser},
	}
	for _, h := range histories {
		once := Sanitize(turnsOf(h...))
		twice := Sanitize(once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("Sanitize not idempotent for %v: %v != %v", h, once, twice)
		}
	}
}

func TestSanitize_BoundaryInvariants(t *testing.T) {
	t.Parallel()

	// Any output must neither start with an assistant turn nor end with a
	// user turn.
	histories := [][]Role{
		{RoleAssistant},
		{RoleUser},
		{RoleAssistant, RoleUser},
		{RoleUser, RoleAssistant, RoleAssistant, RoleUser, RoleUser},
		{RoleAssistant, RoleAssistant, RoleUser, RoleAssistant, RoleUser},
	}
	for _, h := range histories {
		out := Sanitize(turnsOf(h...))
		if len(out) == 0 {
			continue
		}
		if out[0].Role == RoleAssistant {
			t.Errorf("output for %v starts with assistant", h)
		}
		if out[len(out)-1].Role == RoleUser {
			t.Errorf("output for %v ends with user", h)
		}
	}
}
