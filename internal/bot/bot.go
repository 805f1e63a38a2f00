package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/lummy-bot/internal/matcher"
	"github.com/xaenox/lummy-bot/internal/models"
	"github.com/xaenox/lummy-bot/internal/session"
	"github.com/xaenox/lummy-bot/internal/storage"
	"go.uber.org/zap"
)

const historySize = 10

// sender is the subset of *tgbotapi.BotAPI used to answer chats.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Config struct {
	StorageKey string
	ReplyDelay time.Duration
}

// Bot serves one conversation session per Telegram chat.
type Bot struct {
	api     *tgbotapi.BotAPI
	out     sender
	storage storage.Storage
	matcher matcher.Matcher
	logger  *zap.Logger
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	sessions map[int64]*session.Session
}

func New(token string, store storage.Storage, m matcher.Matcher, cfg Config, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, store, m, cfg, logger)
	b.api = api
	return b, nil
}

func newBot(out sender, store storage.Storage, m matcher.Matcher, cfg Config, logger *zap.Logger) *Bot {
	if cfg.StorageKey == "" {
		cfg.StorageKey = session.DefaultStorageKey
	}
	return &Bot{
		out:      out,
		storage:  store,
		matcher:  m,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[int64]*session.Session),
	}
}

// Start polls Telegram until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// Close cancels the pending replies of every chat.
func (b *Bot) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.sessions {
		s.Close()
	}
}

// sessionFor returns the session of a chat, restoring it on first use.
func (b *Bot) sessionFor(ctx context.Context, chatID int64) *session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[chatID]; ok {
		return s
	}

	s := session.New(b.storage, b.matcher, b.logger.With(zap.Int64("chat_id", chatID)),
		session.WithStorageKey(b.cfg.StorageKey+":"+strconv.FormatInt(chatID, 10)),
		session.WithReplyDelay(b.cfg.ReplyDelay),
		session.WithReplyHook(func(threadID string, msg models.Message) {
			b.sendMessage(chatID, msg.Text)
		}),
	)
	s.Restore(ctx)
	b.sessions[chatID] = s
	return s
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil {
		return
	}

	// Handle commands
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}

	s := b.sessionFor(ctx, message.Chat.ID)
	if !s.SendMessage(ctx, content) {
		b.logger.Debug("Ignored empty message", zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)
	case "help":
		b.handleHelp(message)
	case "new":
		b.handleNew(ctx, message)
	case "threads":
		b.handleThreads(ctx, message)
	case "switch":
		b.handleSwitch(ctx, message)
	case "delete":
		b.handleDelete(ctx, message)
	case "history":
		b.handleHistory(ctx, message)
	case "ask":
		b.handleAsk(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Commande inconnue. Utilisez /help pour voir les commandes disponibles.")
	}
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	b.sessionFor(ctx, message.Chat.ID)
	b.sendMessage(message.Chat.ID, session.WelcomeMessage+"\n\nUtilisez /help pour voir toutes les commandes.")
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Commandes disponibles :
/start - Démarrer Lummy
/help - Afficher cette aide
/new - Nouvelle conversation
/threads - Lister vos conversations
/switch <n> - Reprendre la conversation n
/delete [n] - Supprimer la conversation n (par défaut la conversation en cours)
/history - Derniers messages de la conversation en cours
/ask <texte> - Interroger Lummy sur un passage

Posez-moi vos questions sur les ministères, les institutions, l'actualité ou l'utilisation d'ActuFlash IA !`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleNew(ctx context.Context, message *tgbotapi.Message) {
	s := b.sessionFor(ctx, message.Chat.ID)
	s.CreateThread(ctx)
	b.sendMessage(message.Chat.ID, session.WelcomeMessage)
}

func (b *Bot) handleThreads(ctx context.Context, message *tgbotapi.Message) {
	s := b.sessionFor(ctx, message.Chat.ID)
	currentID := s.CurrentID()
	now := b.now()

	response := "*Vos conversations :*\n"
	for i, t := range s.Threads() {
		marker := " "
		if t.ID == currentID {
			marker = "▶"
		}
		response += fmt.Sprintf("%s %d\\. %s _%s_\n",
			marker, i+1, escapeMarkdown(t.Title), escapeMarkdown(formatAge(now, t.UpdatedAt)))
	}

	b.sendMarkdown(message.Chat.ID, response)
}

func (b *Bot) handleSwitch(ctx context.Context, message *tgbotapi.Message) {
	s := b.sessionFor(ctx, message.Chat.ID)
	t, ok := threadByIndex(s.Threads(), message.CommandArguments())
	if !ok {
		b.sendErrorMessage(message.Chat.ID, "Numéro de conversation invalide. Utilisez /threads pour la liste.")
		return
	}

	s.SelectThread(t.ID)
	b.sendMessage(message.Chat.ID, "Conversation reprise : "+t.Title)
}

func (b *Bot) handleDelete(ctx context.Context, message *tgbotapi.Message) {
	s := b.sessionFor(ctx, message.Chat.ID)

	id := s.CurrentID()
	if args := strings.TrimSpace(message.CommandArguments()); args != "" {
		t, ok := threadByIndex(s.Threads(), args)
		if !ok {
			b.sendErrorMessage(message.Chat.ID, "Numéro de conversation invalide. Utilisez /threads pour la liste.")
			return
		}
		id = t.ID
	}

	if !s.DeleteThread(ctx, id) {
		b.sendErrorMessage(message.Chat.ID, "Cette conversation n'existe plus.")
		return
	}

	current, _ := s.Current()
	b.sendMessage(message.Chat.ID, "Conversation supprimée. Conversation en cours : "+current.Title)
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	s := b.sessionFor(ctx, message.Chat.ID)
	current, ok := s.Current()
	if !ok {
		b.sendMessage(message.Chat.ID, "Aucune conversation en cours.")
		return
	}

	messages := current.Messages
	if len(messages) > historySize {
		messages = messages[len(messages)-historySize:]
	}

	response := fmt.Sprintf("*%s*\n\n", escapeMarkdown(current.Title))
	for _, msg := range messages {
		author := "Vous"
		if msg.Sender == models.SenderBot {
			author = "Lummy"
		}
		response += fmt.Sprintf("*%s* : %s\n", author, escapeMarkdown(msg.Text))
	}

	b.sendMarkdown(message.Chat.ID, response)
}

func (b *Bot) handleAsk(ctx context.Context, message *tgbotapi.Message) {
	s := b.sessionFor(ctx, message.Chat.ID)
	if !s.AskAbout(ctx, message.CommandArguments()) {
		b.sendErrorMessage(message.Chat.ID, "Indiquez le passage à expliquer après /ask.")
	}
}

func threadByIndex(threads []models.Thread, arg string) (models.Thread, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 || n > len(threads) {
		return models.Thread{}, false
	}
	return threads[n-1], true
}

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send markdown message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
