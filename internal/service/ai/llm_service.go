package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/anasify/dashboard/backend/internal/model/chat"
	"github.com/anasify/dashboard/backend/internal/model/chatbot"
)

// Options tunes a Service.
type Options struct {
	Streaming     bool
	ContextBudget int
}

// Input is everything needed to render one upstream call.
type Input struct {
	Bot      *chatbot.Chatbot
	Dataset  *chatbot.Dataset
	Messages []chat.Message
}

// Service encapsulates AI-powered chat functionality
type Service struct {
	chatModel model.BaseChatModel
	prompts   *PromptBuilder
	streaming bool
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *zap.Logger
}

// NewService compiles the support chain around the given chat model.
func NewService(ctx context.Context, chatModel model.BaseChatModel, opts Options, logger *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		prompts:   NewPromptBuilder(opts.ContextBudget),
		streaming: opts.Streaming,
		chain:     runnable,
		logger:    logger,
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.streaming
}

// GenerateReply runs the chain once and returns the complete reply.
func (s *Service) GenerateReply(ctx context.Context, in Input) (*schema.Message, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(in))
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.logger.Debug("[ai] generated reply", zap.Int("history", len(in.Messages)), zap.Int("length", len(response.Content)))
	return response, nil
}

// StreamReply streams reply chunks via the configured chain.
func (s *Service) StreamReply(ctx context.Context, in Input) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, s.buildChainInput(in))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

// ChatModel 返回底层的聊天模型
func (s *Service) ChatModel() model.BaseChatModel {
	return s.chatModel
}

func (s *Service) buildChainInput(in Input) map[string]any {
	return map[string]any{
		"system":  s.prompts.BuildSystemPrompt(in.Bot, in.Dataset),
		"history": buildHistoryMessages(in.Messages),
	}
}

// buildHistoryMessages forwards the whole conversation in order.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
