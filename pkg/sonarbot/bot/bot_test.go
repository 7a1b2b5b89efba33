package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/sonarbot/pkg/sonarbot/history"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/telegram"
)

type fakeTransport struct {
	mu        sync.Mutex
	sent      []string
	typing    int
	documents []fakeDocument
}

type fakeDocument struct {
	filename string
	caption  string
	data     []byte
}

func (f *fakeTransport) SendHTML(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) SendTyping(_ context.Context, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeTransport) SendDocument(_ context.Context, _ int64, filename, caption string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, fakeDocument{filename, caption, data})
	return nil
}

func (f *fakeTransport) typingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typing
}

type fakeAnswerer struct {
	answer    string
	citations []string
	gotRecent []history.Turn
}

func (f *fakeAnswerer) Ask(_ context.Context, recent []history.Turn, _ string) (string, []string) {
	f.gotRecent = recent
	return f.answer, f.citations
}

func (f *fakeAnswerer) ContextTurns() int { return 4 }

func newTestBot(t *testing.T, answerer Answerer) (*Bot, *history.Store, *fakeTransport) {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "bot.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	transport := &fakeTransport{}
	return New(store, answerer, transport, nil), store, transport
}

func message(text string) *telegram.Message {
	return &telegram.Message{ID: 1, ChatID: 10, UserID: 42, Username: "gopher", Text: text, Timestamp: time.Now()}
}

func TestHandle_Question(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	answerer := &fakeAnswerer{answer: "**Go** is great", citations: []string{"http://go.dev"}}
	b, store, transport := newTestBot(t, answerer)

	if err := b.Handle(ctx, message("tell me about Go")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// Both turns persisted, assistant turn carrying the citations.
	turns, err := store.All(ctx, 42)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 stored turns, got %d", len(turns))
	}
	if turns[0].Role != history.RoleUser || turns[0].Content != "tell me about Go" {
		t.Errorf("user turn = %+v", turns[0])
	}
	if turns[1].Role != history.RoleAssistant || len(turns[1].Citations) != 1 {
		t.Errorf("assistant turn = %+v", turns[1])
	}

	// Reply is rendered to Telegram HTML before sending.
	if len(transport.sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(transport.sent))
	}
	if transport.sent[0] != "<b>Go</b> is great" {
		t.Errorf("reply = %q", transport.sent[0])
	}

	// The typing indicator fired at least once during the call.
	if transport.typingCount() == 0 {
		t.Error("typing indicator never sent")
	}
}

func TestHandle_QuestionSendsRecentContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	answerer := &fakeAnswerer{answer: "ok"}
	b, store, _ := newTestBot(t, answerer)

	if err := store.Append(ctx, 42, history.RoleUser, "earlier", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, 42, history.RoleAssistant, "earlier answer", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := b.Handle(ctx, message("follow-up")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(answerer.gotRecent) != 2 {
		t.Errorf("answerer got %d context turns, want 2", len(answerer.gotRecent))
	}
}

func TestHandle_LongAnswerIsPaginated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	long := strings.Repeat("word ", 2000) // ~10000 chars, no blank lines
	b, _, transport := newTestBot(t, &fakeAnswerer{answer: long})

	if err := b.Handle(ctx, message("long one")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(transport.sent) < 2 {
		t.Fatalf("expected a paginated reply, got %d messages", len(transport.sent))
	}
	for i, chunk := range transport.sent {
		if len([]rune(chunk)) > 4096 {
			t.Errorf("chunk %d exceeds the message limit", i)
		}
	}
}

func TestHandle_StartCommand(t *testing.T) {
	t.Parallel()
	b, _, transport := newTestBot(t, &fakeAnswerer{})

	if err := b.Handle(context.Background(), message("/start")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(transport.sent) != 1 || !strings.Contains(transport.sent[0], "/export") {
		t.Errorf("expected help text, got %v", transport.sent)
	}
}

func TestHandle_ClearCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, store, transport := newTestBot(t, &fakeAnswerer{})

	if err := b.Handle(ctx, message("/clear")); err != nil {
		t.Fatalf("Handle empty clear: %v", err)
	}
	if len(transport.sent) != 1 || transport.sent[0] != "No history to clear." {
		t.Errorf("empty clear reply = %v", transport.sent)
	}

	store.Append(ctx, 42, history.RoleUser, "q", nil)
	store.Append(ctx, 42, history.RoleAssistant, "a", nil)

	if err := b.Handle(ctx, message("/clear")); err != nil {
		t.Fatalf("Handle clear: %v", err)
	}
	reply := transport.sent[len(transport.sent)-1]
	if !strings.Contains(reply, "<b>2</b>") {
		t.Errorf("clear reply = %q, want deleted count 2", reply)
	}

	turns, _ := store.All(ctx, 42)
	if len(turns) != 0 {
		t.Errorf("history not cleared: %d turns remain", len(turns))
	}
}

func TestHandle_ExportCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, store, transport := newTestBot(t, &fakeAnswerer{})

	if err := b.Handle(ctx, message("/export")); err != nil {
		t.Fatalf("Handle empty export: %v", err)
	}
	if len(transport.sent) != 1 || transport.sent[0] != "No conversation history to export." {
		t.Errorf("empty export reply = %v", transport.sent)
	}

	store.Append(ctx, 42, history.RoleUser, "what is go", nil)
	store.Append(ctx, 42, history.RoleAssistant, "a language", []string{"http://go.dev"})

	if err := b.Handle(ctx, message("/export")); err != nil {
		t.Fatalf("Handle export: %v", err)
	}
	if len(transport.documents) != 1 {
		t.Fatalf("expected 1 document, got %d", len(transport.documents))
	}
	doc := transport.documents[0]
	if doc.filename != "history_gopher.md" {
		t.Errorf("filename = %q", doc.filename)
	}
	if !strings.Contains(doc.caption, "2 messages") {
		t.Errorf("caption = %q", doc.caption)
	}
	content := string(doc.data)
	for _, want := range []string{"what is go", "a language", "[1] http://go.dev"} {
		if !strings.Contains(content, want) {
			t.Errorf("export document missing %q", want)
		}
	}
}

func TestHandle_UnknownCommandIsSilent(t *testing.T) {
	t.Parallel()
	b, _, transport := newTestBot(t, &fakeAnswerer{})

	if err := b.Handle(context.Background(), message("/bogus")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(transport.sent) != 0 {
		t.Errorf("unknown command produced a reply: %v", transport.sent)
	}
}

func TestStartTyping_StopsAndJoins(t *testing.T) {
	t.Parallel()
	b, _, transport := newTestBot(t, &fakeAnswerer{})

	stop := b.startTyping(context.Background(), 10)
	// The first signal is sent immediately, before the first tick.
	deadline := time.Now().Add(2 * time.Second)
	for transport.typingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stop() // must cancel and join without hanging

	if transport.typingCount() == 0 {
		t.Error("no typing signal sent")
	}
	count := transport.typingCount()
	time.Sleep(50 * time.Millisecond)
	if transport.typingCount() != count {
		t.Error("ticker kept sending after stop")
	}
}
