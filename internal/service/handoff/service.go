package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	analysis "github.com/anasify/dashboard/backend/internal/analysis/handoff"
	"github.com/anasify/dashboard/backend/internal/model/chat"
)

// Config 控制转人工判定服务的行为。
type Config struct {
	Enabled      bool
	HistoryLimit int
}

// Service 使用大模型判断回复是否转人工，失败时回退到启发式规则。
type Service struct {
	enabled      bool
	classifier   compose.Runnable[map[string]any, *schema.Message]
	fallback     func(user, reply string) analysis.Decision
	historyLimit int
	logger       *zap.Logger
}

// NewService 创建判定服务。chatModel 可重用现有的大模型实例，为 nil 时仅使用启发式规则。
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config, logger *zap.Logger) (*Service, error) {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &Service{
		enabled:      cfg.Enabled && chatModel != nil,
		fallback:     analysis.Analyze,
		historyLimit: historyLimit,
		logger:       logger,
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile handoff classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回大模型判定是否启用。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Assess 判定 reply 是否拒答或建议转人工。history 为本次交换前的会话。
func (s *Service) Assess(ctx context.Context, history []chat.Message, reply string) chat.Handoff {
	userMessage := chat.LastUserMessage(history)
	if !s.Enabled() {
		return s.fallbackAssessment(userMessage, reply)
	}

	input := map[string]any{
		"history":      formatHistory(history, s.historyLimit),
		"user_message": strings.TrimSpace(userMessage),
		"reply":        strings.TrimSpace(reply),
	}

	msg, err := s.classifier.Invoke(ctx, input)
	if err != nil {
		s.logger.Warn("[handoff] classifier invoke failed, use fallback", zap.Error(err))
		return s.fallbackAssessment(userMessage, reply)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallbackAssessment(userMessage, reply)
	}

	result, err := parseClassifierOutput(msg.Content)
	if err != nil {
		s.logger.Warn("[handoff] classifier output parse failed, use fallback", zap.Error(err))
		return s.fallbackAssessment(userMessage, reply)
	}

	label, ok := parseLabel(result.Label)
	if !ok {
		return s.fallbackAssessment(userMessage, reply)
	}

	confidence := result.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}

	return chat.Handoff{
		Label:      string(label),
		Suggested:  label == analysis.Handoff,
		Confidence: confidence,
		Reason:     strings.TrimSpace(result.Reason),
	}
}

func (s *Service) fallbackAssessment(userMessage, reply string) chat.Handoff {
	decision := s.fallback(userMessage, reply)

	confidence := float32(0.3)
	if decision.Score > 0 {
		confidence = 0.55
	}

	return chat.Handoff{
		Label:      string(decision.Label),
		Suggested:  decision.Suggested(),
		Confidence: confidence,
		Reason:     "fallback",
	}
}

// parseClassifierOutput 解析大模型返回的 JSON。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func formatHistory(messages []chat.Message, limit int) string {
	if len(messages) == 0 {
		return "(no history)"
	}
	if limit < 1 {
		limit = 1
	}
	start := len(messages) - limit
	if start < 0 {
		start = 0
	}

	var builder strings.Builder
	for i := start; i < len(messages); i++ {
		msg := messages[i]
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(string(msg.Role))
		builder.WriteString(": ")
		builder.WriteString(content)
	}
	if builder.Len() == 0 {
		return "(no history)"
	}
	return builder.String()
}

func parseLabel(raw string) (analysis.Label, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "answered":
		return analysis.Answered, true
	case "declined":
		return analysis.Declined, true
	case "handoff":
		return analysis.Handoff, true
	default:
		return "", false
	}
}

type classifierPayload struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const classifierSystemPrompt = "You review replies written by a customer support chatbot. Decide whether the reply answered the question, declined to answer, or offered to hand the user over to a human agent.\nReturn only one JSON object with the fields label (one of answered/declined/handoff), confidence (a number between 0 and 1) and reason (one short sentence). Do not output anything else."

const classifierUserPrompt = "Recent conversation:\n{history}\n\nLatest user message:\n{user_message}\n\nChatbot reply:\n{reply}\n\nRespond with the JSON object."
