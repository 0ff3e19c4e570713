package client

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/anasify/dashboard/backend/internal/model/chat"
)

var (
	ErrEmptyInput       = errors.New("message is empty")
	ErrExchangeInFlight = errors.New("an exchange is already in progress")
)

// Status is the state of a Conversation.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusFailed  Status = "failed"
)

// Conversation holds the messages of one chat and allows one exchange at a time.
type Conversation struct {
	mu       sync.Mutex
	greeting string
	messages []chat.Message
	status   Status
	err      error
	handoff  *chat.Handoff
}

// NewConversation starts a conversation with the assistant greeting.
// An empty greeting uses chat.DefaultGreeting.
func NewConversation(greeting string) *Conversation {
	c := &Conversation{greeting: greeting}
	c.resetLocked()
	return c
}

// Messages returns a copy of the conversation so far.
func (c *Conversation) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Message(nil), c.messages...)
}

func (c *Conversation) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the cause of the last failed exchange.
func (c *Conversation) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Handoff returns the assessment of the last reply, if any.
func (c *Conversation) Handoff() *chat.Handoff {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handoff == nil {
		return nil
	}
	h := *c.handoff
	return &h
}

// Reset drops everything but the greeting.
func (c *Conversation) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusLoading {
		return ErrExchangeInFlight
	}
	c.resetLocked()
	return nil
}

func (c *Conversation) resetLocked() {
	c.messages = []chat.Message{chat.Greeting(c.greeting)}
	c.status = StatusIdle
	c.err = nil
	c.handoff = nil
}

// Submit appends text as a user message and streams the reply into the conversation.
// It returns ErrExchangeInFlight while another Submit is running.
func (c *Conversation) Submit(ctx context.Context, streamer Streamer, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.status == StatusLoading {
		c.mu.Unlock()
		return ErrExchangeInFlight
	}
	c.messages = append(c.messages, chat.Message{ID: uuid.NewString(), Role: chat.RoleUser, Content: text})
	c.status = StatusLoading
	c.err = nil
	c.handoff = nil
	snapshot := append([]chat.Message(nil), c.messages...)
	c.mu.Unlock()

	reply := -1
	err := streamer.Stream(ctx, snapshot, func(ev chat.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()

		switch ev.Event {
		case chat.EventDelta:
			if ev.Content == "" {
				return
			}
			if reply < 0 {
				reply = c.appendAssistantLocked(ev.MessageID, ev.Content)
				return
			}
			c.messages[reply].Content += ev.Content
		case chat.EventMessage:
			// 未收到 delta 时以完整回复创建助手消息。
			if reply < 0 && ev.Content != "" {
				reply = c.appendAssistantLocked(ev.MessageID, ev.Content)
			}
		case chat.EventHandoff:
			if ev.Handoff != nil {
				h := *ev.Handoff
				c.handoff = &h
			}
		}
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// 不完整的回复不保留，避免下一次请求把它当作完整回答发送。
		if reply >= 0 {
			c.messages = c.messages[:reply]
		}
		c.status = StatusFailed
		c.err = err
		return err
	}
	c.status = StatusIdle
	return nil
}

func (c *Conversation) appendAssistantLocked(id, content string) int {
	if id == "" {
		id = uuid.NewString()
	}
	c.messages = append(c.messages, chat.Message{ID: id, Role: chat.RoleAssistant, Content: content})
	return len(c.messages) - 1
}
