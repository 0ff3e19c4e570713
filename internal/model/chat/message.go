package chat

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	ErrNoMessages     = errors.New("messages are required")
	ErrInvalidMessage = errors.New("invalid message")
)

// Message is one turn of a conversation. Messages are immutable once sent.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Valid reports whether the role is one a client may send.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ValidateSequence 校验客户端提交的会话序列。system 角色不允许出现，系统指令只由服务端注入。
func ValidateSequence(messages []Message) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}

	seen := make(map[string]struct{}, len(messages))
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("%w: message %d has unsupported role %q", ErrInvalidMessage, i, msg.Role)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("%w: message %d has empty content", ErrInvalidMessage, i)
		}
		if msg.ID == "" {
			continue
		}
		if _, dup := seen[msg.ID]; dup {
			return fmt.Errorf("%w: duplicate message id %q", ErrInvalidMessage, msg.ID)
		}
		seen[msg.ID] = struct{}{}
	}
	return nil
}

// LastUserMessage returns the content of the most recent user turn.
func LastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
