// Package session owns the conversation threads of one user, feeds their
// messages to the answer matcher and mirrors every change to a byte store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xaenox/lummy-bot/internal/matcher"
	"github.com/xaenox/lummy-bot/internal/models"
	"github.com/xaenox/lummy-bot/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultStorageKey = "lummy-conversations"
	DefaultReplyDelay = 800 * time.Millisecond

	DefaultTitle   = "Nouvelle conversation"
	WelcomeMessage = "Bonjour ! Je suis Lummy, votre assistant IA pour ActuFlash Madagascar 🐒 Comment puis-je vous aider aujourd'hui ?"

	maxTitleLen = 40
	titleSuffix = "..."
)

// ReplyFunc is called from the timer goroutine after a deferred bot answer
// has been appended and persisted.
type ReplyFunc func(threadID string, msg models.Message)

type Option func(*Session)

func WithStorageKey(key string) Option {
	return func(s *Session) { s.key = key }
}

func WithReplyDelay(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithReplyHook(fn ReplyFunc) Option {
	return func(s *Session) { s.onReply = fn }
}

// pendingReply is a scheduled bot answer. cancelled is guarded by Session.mu.
type pendingReply struct {
	threadID  string
	timer     *time.Timer
	cancelled bool
}

// Session is the conversation store of a single user. All methods are safe
// for concurrent use; every mutation of the thread list holds mu.
type Session struct {
	store   storage.Storage
	matcher matcher.Matcher
	logger  *zap.Logger
	key     string
	delay   time.Duration
	now     func() time.Time
	onReply ReplyFunc

	mu        sync.Mutex
	threads   []*models.Thread
	currentID string
	lastMsgID int64
	pending   map[*pendingReply]struct{}
	closed    bool
	wg        sync.WaitGroup
}

func New(store storage.Storage, m matcher.Matcher, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		store:   store,
		matcher: m,
		logger:  logger,
		key:     DefaultStorageKey,
		delay:   DefaultReplyDelay,
		now:     time.Now,
		pending: make(map[*pendingReply]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the persisted threads. A missing, unreadable or corrupt
// snapshot is discarded in favour of a single fresh welcome thread.
func (s *Session) Restore(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelRepliesLocked("")
	threads, err := s.load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Discarding stored conversations",
				zap.Error(err),
				zap.String("key", s.key))
		}
		s.threads = nil
		s.currentID = ""
		s.createThreadLocked(ctx)
		return
	}

	s.threads = threads
	s.lastMsgID = 0
	for _, t := range threads {
		for _, m := range t.Messages {
			if m.ID > s.lastMsgID {
				s.lastMsgID = m.ID
			}
		}
	}
	s.currentID = s.mostRecentLocked().ID

	s.logger.Debug("Restored conversations",
		zap.String("key", s.key),
		zap.Int("threads", len(threads)))
}

func (s *Session) load(ctx context.Context) ([]*models.Thread, error) {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}

	var threads []*models.Thread
	if err := json.Unmarshal(data, &threads); err != nil {
		return nil, err
	}

	valid := threads[:0]
	for _, t := range threads {
		if t != nil && t.ID != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return nil, errors.New("no conversation in snapshot")
	}
	return valid, nil
}

// CreateThread starts a new conversation, puts it first and makes it current.
func (s *Session) CreateThread(ctx context.Context) models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createThreadLocked(ctx).Clone()
}

func (s *Session) createThreadLocked(ctx context.Context) *models.Thread {
	now := s.now()
	t := &models.Thread{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.Append(s.newMessageLocked(WelcomeMessage, models.SenderBot))

	s.threads = append([]*models.Thread{t}, s.threads...)
	s.currentID = t.ID
	s.persistLocked(ctx)

	s.logger.Debug("Created conversation", zap.String("thread_id", t.ID))
	return t
}

// SendMessage records text as a user message in the current thread and
// schedules the bot answer. Blank text, a missing current thread or a
// closed session make it a no-op, reported by a false return.
func (s *Session) SendMessage(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	t := s.findLocked(s.currentID)
	if t == nil {
		return false
	}

	if !t.HasUserMessage() {
		t.Title = deriveTitle(text)
	}
	t.Append(s.newMessageLocked(text, models.SenderUser))
	s.persistLocked(ctx)

	s.scheduleReplyLocked(context.WithoutCancel(ctx), t.ID, text)
	return true
}

// AskAbout sends a passage selected elsewhere in the application as the
// next user message, with its line breaks collapsed.
func (s *Session) AskAbout(ctx context.Context, selection string) bool {
	return s.SendMessage(ctx, strings.Join(strings.Fields(selection), " "))
}

func (s *Session) scheduleReplyLocked(ctx context.Context, threadID, text string) {
	r := &pendingReply{threadID: threadID}
	s.pending[r] = struct{}{}
	s.wg.Add(1)
	r.timer = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.deliverReply(ctx, r, text)
	})
}

func (s *Session) deliverReply(ctx context.Context, r *pendingReply, text string) {
	s.mu.Lock()
	if r.cancelled {
		s.mu.Unlock()
		return
	}
	delete(s.pending, r)

	t := s.findLocked(r.threadID)
	if t == nil {
		s.mu.Unlock()
		return
	}

	answer := s.matcher.FindAnswer(text)
	msg := s.newMessageLocked(answer, models.SenderBot)
	t.Append(msg)
	s.persistLocked(ctx)
	hook := s.onReply
	s.mu.Unlock()

	s.logger.Debug("Answered message",
		zap.String("thread_id", r.threadID),
		zap.Bool("fallback", answer == matcher.FallbackAnswer))

	if hook != nil {
		hook(r.threadID, msg)
	}
}

// cancelRepliesLocked stops pending replies, all of them when threadID is empty.
func (s *Session) cancelRepliesLocked(threadID string) {
	for r := range s.pending {
		if threadID != "" && r.threadID != threadID {
			continue
		}
		r.cancelled = true
		delete(s.pending, r)
		if r.timer.Stop() {
			s.wg.Done()
		}
	}
}

// DeleteThread removes a thread and drops its pending replies. When the
// current thread goes away the most recently updated one takes its place,
// or a new welcome thread when none is left.
func (s *Session) DeleteThread(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, t := range s.threads {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	s.cancelRepliesLocked(id)
	s.threads = append(s.threads[:idx], s.threads[idx+1:]...)

	if s.currentID == id {
		if len(s.threads) == 0 {
			s.createThreadLocked(ctx)
			return true
		}
		s.currentID = s.mostRecentLocked().ID
	}
	s.persistLocked(ctx)

	s.logger.Debug("Deleted conversation", zap.String("thread_id", id))
	return true
}

// SelectThread makes the thread with the given id current.
func (s *Session) SelectThread(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(id) == nil {
		return false
	}
	s.currentID = id
	return true
}

func (s *Session) Current() (models.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(s.currentID)
	if t == nil {
		return models.Thread{}, false
	}
	return t.Clone(), true
}

func (s *Session) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Threads returns copies of all threads in list order, newest created first.
func (s *Session) Threads() []models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Thread, len(s.threads))
	for i, t := range s.threads {
		out[i] = t.Clone()
	}
	return out
}

// Wait blocks until every scheduled reply has been delivered or cancelled.
// It must not run concurrently with SendMessage.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels pending replies. Later messages are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancelRepliesLocked("")
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Session) newMessageLocked(text string, sender models.Sender) models.Message {
	s.lastMsgID++
	return models.Message{
		ID:        s.lastMsgID,
		Text:      text,
		Sender:    sender,
		Timestamp: s.now(),
	}
}

func (s *Session) findLocked(id string) *models.Thread {
	if id == "" {
		return nil
	}
	for _, t := range s.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// mostRecentLocked expects a non-empty list; ties keep list order.
func (s *Session) mostRecentLocked() *models.Thread {
	best := s.threads[0]
	for _, t := range s.threads[1:] {
		if t.UpdatedAt.After(best.UpdatedAt) {
			best = t
		}
	}
	return best
}

// persistLocked writes the full snapshot. Failures are logged only.
func (s *Session) persistLocked(ctx context.Context) {
	data, err := json.Marshal(s.threads)
	if err != nil {
		s.logger.Error("Failed to encode conversations", zap.Error(err))
		return
	}
	if err := s.store.Put(ctx, s.key, data); err != nil {
		s.logger.Warn("Failed to persist conversations",
			zap.Error(err),
			zap.String("key", s.key))
	}
}

func deriveTitle(text string) string {
	if utf8.RuneCountInString(text) <= maxTitleLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxTitleLen]) + titleSuffix
}
