package chatbot

import (
	"errors"
	"strings"
	"time"
)

// DefaultWelcomeMessage pre-fills the welcome field of a new chatbot.
const DefaultWelcomeMessage = "Hi there! How can I help you today?"

var (
	ErrNotFound     = errors.New("chatbot not found")
	ErrNameRequired = errors.New("name is required")
	ErrDescRequired = errors.New("description is required")
)

// Chatbot is a support assistant managed from the dashboard.
type Chatbot struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	WelcomeMessage string    `json:"welcomeMessage"`
	Messages       int       `json:"messages"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Normalize trims input fields and fills the default welcome message.
func (c *Chatbot) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	c.WelcomeMessage = strings.TrimSpace(c.WelcomeMessage)
	if c.WelcomeMessage == "" {
		c.WelcomeMessage = DefaultWelcomeMessage
	}
}

// Validate enforces the required fields of the creation form.
func (c Chatbot) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(c.Description) == "" {
		return ErrDescRequired
	}
	return nil
}

// Seed provides the sample chatbots shown on a fresh dashboard.
func Seed(now time.Time) []Chatbot {
	return []Chatbot{
		{
			ID:             "bot-1",
			Name:           "Support Bot",
			Description:    "Customer support chatbot for main website",
			WelcomeMessage: DefaultWelcomeMessage,
			Messages:       1245,
			CreatedAt:      now.Add(-30 * 24 * time.Hour),
			UpdatedAt:      now.Add(-2 * 24 * time.Hour),
		},
		{
			ID:             "bot-2",
			Name:           "Sales Assistant",
			Description:    "Product recommendations and sales inquiries",
			WelcomeMessage: DefaultWelcomeMessage,
			Messages:       867,
			CreatedAt:      now.Add(-14 * 24 * time.Hour),
			UpdatedAt:      now.Add(-5 * time.Hour),
		},
		{
			ID:             "bot-3",
			Name:           "FAQ Bot",
			Description:    "Answers to frequently asked questions",
			WelcomeMessage: DefaultWelcomeMessage,
			Messages:       432,
			CreatedAt:      now.Add(-60 * 24 * time.Hour),
			UpdatedAt:      now.Add(-7 * 24 * time.Hour),
		},
	}
}
