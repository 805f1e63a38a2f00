package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/lummy-bot/internal/matcher"
	"github.com/xaenox/lummy-bot/internal/models"
	"github.com/xaenox/lummy-bot/internal/session"
	"github.com/xaenox/lummy-bot/internal/storage"
	"go.uber.org/zap/zaptest"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

const chatID = int64(42)

func setupTestBot(t *testing.T) (*Bot, *fakeSender, storage.Storage) {
	t.Helper()
	out := &fakeSender{}
	store := storage.NewMemoryStorage()
	m := matcher.NewKeywordMatcher([]models.CorpusEntry{
		{ID: 1, Keywords: []string{"ministère"}, Question: "Quels sont les ministères", Answer: "Liste des ministères..."},
	})
	b := newBot(out, store, m, Config{ReplyDelay: time.Millisecond}, zaptest.NewLogger(t))
	t.Cleanup(b.Close)
	return b, out, store
}

func text(body string) *tgbotapi.Message {
	return &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: body}
}

func command(body string) *tgbotapi.Message {
	length := len(body)
	if i := strings.Index(body, " "); i >= 0 {
		length = i
	}
	msg := text(body)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	return msg
}

func waitReplies(b *Bot) {
	b.mu.Lock()
	sessions := make([]*session.Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()
	for _, s := range sessions {
		s.Wait()
	}
}

func TestTextMessageGetsAnswer(t *testing.T) {
	b, out, _ := setupTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, text("Parle-moi des ministères"))
	waitReplies(b)

	msg := out.last(t)
	if msg.ChatID != chatID || msg.Text != "Liste des ministères..." {
		t.Errorf("unexpected reply %+v", msg)
	}
}

func TestUnknownQuestionGetsFallback(t *testing.T) {
	b, out, _ := setupTestBot(t)

	b.handleMessage(context.Background(), text("bonjour"))
	waitReplies(b)

	if got := out.last(t).Text; got != matcher.FallbackAnswer {
		t.Errorf("got %q", got)
	}
}

func TestBlankMessageIsIgnored(t *testing.T) {
	b, out, _ := setupTestBot(t)

	b.handleMessage(context.Background(), text("   "))
	waitReplies(b)

	if out.count() != 0 {
		t.Errorf("expected no reply, got %d messages", out.count())
	}
}

func TestSessionPersistedPerChat(t *testing.T) {
	b, _, store := setupTestBot(t)

	b.handleMessage(context.Background(), text("Parle-moi des ministères"))
	waitReplies(b)

	if _, err := store.Get(context.Background(), "lummy-conversations:42"); err != nil {
		t.Fatalf("chat snapshot missing: %v", err)
	}
}

func TestStartAndHelp(t *testing.T) {
	b, out, _ := setupTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, command("/start"))
	if !strings.HasPrefix(out.last(t).Text, session.WelcomeMessage) {
		t.Errorf("unexpected start reply %q", out.last(t).Text)
	}

	b.handleMessage(ctx, command("/help"))
	if !strings.Contains(out.last(t).Text, "/threads") {
		t.Errorf("help does not list commands: %q", out.last(t).Text)
	}

	b.handleMessage(ctx, command("/dance"))
	if !strings.Contains(out.last(t).Text, "Commande inconnue") {
		t.Errorf("unexpected reply %q", out.last(t).Text)
	}
}

func TestThreadCommands(t *testing.T) {
	b, out, _ := setupTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, text("Parle-moi des ministères"))
	waitReplies(b)
	b.handleMessage(ctx, command("/new"))

	s := b.sessionFor(ctx, chatID)
	threads := s.Threads()
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}

	b.handleMessage(ctx, command("/threads"))
	listing := out.last(t)
	if listing.ParseMode != tgbotapi.ModeMarkdownV2 {
		t.Errorf("listing should use MarkdownV2")
	}
	if !strings.Contains(listing.Text, "Parle\\-moi des ministères") {
		t.Errorf("listing misses the first thread: %q", listing.Text)
	}

	b.handleMessage(ctx, command("/switch 2"))
	if s.CurrentID() != threads[1].ID {
		t.Errorf("switch did not select the second thread")
	}

	b.handleMessage(ctx, command("/switch 9"))
	if !strings.HasPrefix(out.last(t).Text, "⚠️") {
		t.Errorf("expected an error for an invalid index, got %q", out.last(t).Text)
	}

	b.handleMessage(ctx, command("/history"))
	if !strings.Contains(out.last(t).Text, "Liste des ministères") {
		t.Errorf("history misses the answer: %q", out.last(t).Text)
	}

	b.handleMessage(ctx, command("/delete"))
	remaining := s.Threads()
	if len(remaining) != 1 || remaining[0].ID != threads[0].ID {
		t.Errorf("unexpected threads after delete: %+v", remaining)
	}
	if s.CurrentID() != threads[0].ID {
		t.Error("remaining thread should be current")
	}

	b.handleMessage(ctx, command("/delete 1"))
	fresh := s.Threads()
	if len(fresh) != 1 || fresh[0].ID == threads[0].ID || fresh[0].Title != session.DefaultTitle {
		t.Errorf("expected a fresh welcome thread: %+v", fresh)
	}
}

func TestAskCommand(t *testing.T) {
	b, out, _ := setupTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, command("/ask le rôle des\nministères"))
	waitReplies(b)
	if got := out.last(t).Text; got != "Liste des ministères..." {
		t.Errorf("got %q", got)
	}

	b.handleMessage(ctx, command("/ask"))
	if !strings.HasPrefix(out.last(t).Text, "⚠️") {
		t.Errorf("expected an error without selection, got %q", out.last(t).Text)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	got := escapeMarkdown(`a_b*c.d!e\f`)
	want := `a\_b\*c\.d\!e\\f`
	if got != want {
		t.Errorf("escapeMarkdown = %q, want %q", got, want)
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "À l'instant"},
		{5 * time.Minute, "Il y a 5 min"},
		{3 * time.Hour, "Il y a 3h"},
		{2 * 24 * time.Hour, "Il y a 2j"},
		{30 * 24 * time.Hour, "20 avr."},
	}
	for _, tt := range tests {
		if got := formatAge(now, now.Add(-tt.ago)); got != tt.want {
			t.Errorf("formatAge(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
