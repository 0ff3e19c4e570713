package ai

import (
	"fmt"
	"strings"

	"github.com/anasify/dashboard/backend/internal/model/chatbot"
)

// SystemInstruction is prepended to every conversation forwarded upstream.
const SystemInstruction = "You are a helpful customer support chatbot. Answer questions based on the provided context. If you don't know the answer, politely say so and offer to connect the user with a human agent."

// PromptBuilder renders the single system message of an exchange.
type PromptBuilder struct {
	budget int
}

// NewPromptBuilder returns a builder that caps the context block at budget runes.
func NewPromptBuilder(budget int) *PromptBuilder {
	if budget <= 0 {
		budget = 8000
	}
	return &PromptBuilder{budget: budget}
}

// BuildSystemPrompt returns the fixed instruction, followed by the chatbot's
// training material when a non-empty dataset is supplied.
func (pb *PromptBuilder) BuildSystemPrompt(bot *chatbot.Chatbot, dataset *chatbot.Dataset) string {
	if dataset == nil || dataset.Empty() {
		return SystemInstruction
	}

	var ctxBlock strings.Builder
	for _, pair := range dataset.QAPairs {
		fmt.Fprintf(&ctxBlock, "Q: %s\nA: %s\n\n", pair.Question, pair.Answer)
	}
	if site := dataset.Website; site != nil && strings.TrimSpace(site.Content) != "" {
		fmt.Fprintf(&ctxBlock, "Website (%s):\n%s\n", site.URL, site.Content)
	}

	var builder strings.Builder
	builder.WriteString(SystemInstruction)
	if bot != nil && bot.Name != "" {
		fmt.Fprintf(&builder, "\n\nYou are deployed as %q: %s", bot.Name, bot.Description)
	}
	builder.WriteString("\n\nContext:\n")
	builder.WriteString(truncateRunes(strings.TrimSpace(ctxBlock.String()), pb.budget))
	return builder.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
