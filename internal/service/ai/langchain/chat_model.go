// Package langchain adapts a langchaingo model to eino's BaseChatModel so
// OpenAI-compatible endpoints can sit behind the same chain as Ark.
package langchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
	lcschema "github.com/tmc/langchaingo/schema"
)

var errStreamClosed = errors.New("stream reader closed")

// Options carries sampling parameters forwarded on every call.
type Options struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// ChatModel implements model.BaseChatModel on top of llms.Model.
type ChatModel struct {
	llm  llms.Model
	opts Options
}

var _ model.BaseChatModel = (*ChatModel)(nil)

func NewChatModel(llm llms.Model, opts Options) *ChatModel {
	return &ChatModel{llm: llm, opts: opts}
}

// Generate runs a single completion.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	resp, err := m.llm.GenerateContent(ctx, toMessageContents(input), m.callOptions()...)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from LLM")
	}
	return schema.AssistantMessage(resp.Choices[0].Content, nil), nil
}

// Stream relays langchaingo's streaming callback through an eino pipe.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	contents := toMessageContents(input)
	reader, writer := schema.Pipe[*schema.Message](8)

	go func() {
		defer writer.Close()

		opts := append(m.callOptions(), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if closed := writer.Send(&schema.Message{Role: schema.Assistant, Content: string(chunk)}, nil); closed {
				return errStreamClosed
			}
			return nil
		}))

		if _, err := m.llm.GenerateContent(ctx, contents, opts...); err != nil && !errors.Is(err, errStreamClosed) {
			writer.Send(nil, err)
		}
	}()

	return reader, nil
}

func (m *ChatModel) callOptions() []llms.CallOption {
	var opts []llms.CallOption
	if m.opts.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*m.opts.Temperature))
	}
	if m.opts.TopP != nil {
		opts = append(opts, llms.WithTopP(*m.opts.TopP))
	}
	if m.opts.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*m.opts.MaxTokens))
	}
	return opts
}

func toMessageContents(input []*schema.Message) []llms.MessageContent {
	contents := make([]llms.MessageContent, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		var msgType lcschema.ChatMessageType
		switch msg.Role {
		case schema.System:
			msgType = lcschema.ChatMessageTypeSystem
		case schema.Assistant:
			msgType = lcschema.ChatMessageTypeAI
		default:
			msgType = lcschema.ChatMessageTypeHuman
		}
		contents = append(contents, llms.TextParts(msgType, msg.Content))
	}
	return contents
}
