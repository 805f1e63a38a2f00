package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sender identifies who wrote a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

func (s *Sender) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !Sender(raw).Valid() {
		return fmt.Errorf("unknown sender %q", raw)
	}
	*s = Sender(raw)
	return nil
}

// Message is a single exchange inside a conversation thread
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread represents one conversation with the bot
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasUserMessage reports whether the user already wrote in this thread.
func (t *Thread) HasUserMessage() bool {
	for _, m := range t.Messages {
		if m.Sender == SenderUser {
			return true
		}
	}
	return false
}

func (t *Thread) LastMessage() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// Append adds msg at the end of the thread and refreshes UpdatedAt.
func (t *Thread) Append(msg Message) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = msg.Timestamp
}

// Clone returns a deep copy safe to hand out of the session lock.
func (t *Thread) Clone() Thread {
	c := *t
	c.Messages = make([]Message, len(t.Messages))
	copy(c.Messages, t.Messages)
	return c
}

// CorpusEntry is one canned question/answer record
type CorpusEntry struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Keywords []string `json:"keywords"`
}

func (e CorpusEntry) Validate() error {
	if e.Answer == "" {
		return fmt.Errorf("corpus entry %d has an empty answer", e.ID)
	}
	return nil
}
