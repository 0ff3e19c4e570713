package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/anasify/dashboard/backend/internal/model/chat"
	"github.com/anasify/dashboard/backend/internal/model/chatbot"
	"github.com/anasify/dashboard/backend/internal/service/ai/aitest"
)

func newTestService(t *testing.T, m *aitest.Model) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), m, Options{Streaming: true}, nil)
	require.NoError(t, err)
	return svc
}

func countSystem(msgs []*schema.Message) int {
	n := 0
	for _, msg := range msgs {
		if msg.Role == schema.System {
			n++
		}
	}
	return n
}

func TestForwardedRequestPrependsInstruction(t *testing.T) {
	m := &aitest.Model{Chunks: []string{"We are open 9 to 5."}}
	svc := newTestService(t, m)

	conversation := []chat.Message{
		{ID: "welcome", Role: chat.RoleAssistant, Content: "Hi there! ..."},
		{ID: "u1", Role: chat.RoleUser, Content: "What are your hours?"},
	}

	_, err := svc.GenerateReply(context.Background(), Input{Messages: conversation})
	require.NoError(t, err)

	inputs := m.Inputs()
	require.Len(t, inputs, 1)
	sent := inputs[0]
	require.Len(t, sent, 3)
	require.Equal(t, schema.System, sent[0].Role)
	require.Equal(t, SystemInstruction, sent[0].Content)
	require.Equal(t, schema.Assistant, sent[1].Role)
	require.Equal(t, "Hi there! ...", sent[1].Content)
	require.Equal(t, schema.User, sent[2].Role)
	require.Equal(t, "What are your hours?", sent[2].Content)
}

func TestExactlyOneSystemMessageRegardlessOfLength(t *testing.T) {
	for _, n := range []int{1, 2, 11, 40} {
		t.Run(fmt.Sprintf("len=%d", n), func(t *testing.T) {
			m := &aitest.Model{Chunks: []string{"ok"}}
			svc := newTestService(t, m)

			conversation := make([]chat.Message, 0, n)
			for i := 0; i < n; i++ {
				role := chat.RoleUser
				if i%2 == 1 {
					role = chat.RoleAssistant
				}
				conversation = append(conversation, chat.Message{ID: fmt.Sprint(i), Role: role, Content: fmt.Sprintf("turn %d", i)})
			}

			stream, err := svc.StreamReply(context.Background(), Input{Messages: conversation})
			require.NoError(t, err)
			drain(t, stream)

			sent := m.Inputs()[0]
			require.Equal(t, 1, countSystem(sent))
			require.Equal(t, schema.System, sent[0].Role)
			require.Len(t, sent, n+1)
			for i := 0; i < n; i++ {
				require.Equal(t, fmt.Sprintf("turn %d", i), sent[i+1].Content)
			}
		})
	}
}

func TestStreamedReplyMatchesGenerated(t *testing.T) {
	m := &aitest.Model{Chunks: []string{"Our ", "hours ", "are ", "9am", "-5pm."}}
	svc := newTestService(t, m)
	in := Input{Messages: []chat.Message{{Role: chat.RoleUser, Content: "hours?"}}}

	full, err := svc.GenerateReply(context.Background(), in)
	require.NoError(t, err)

	stream, err := svc.StreamReply(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, full.Content, drain(t, stream))
}

func TestBotContextStaysInSingleSystemMessage(t *testing.T) {
	m := &aitest.Model{Chunks: []string{"ok"}}
	svc := newTestService(t, m)

	bot := &chatbot.Chatbot{ID: "bot-1", Name: "Support Bot", Description: "main site"}
	dataset := &chatbot.Dataset{
		BotID:   "bot-1",
		QAPairs: []chatbot.QAPair{{Question: "Refunds?", Answer: "Within 30 days.", Source: chatbot.SourceManual}},
		Website: &chatbot.Website{URL: "https://example.com", Content: "We sell {curly} widgets."},
	}

	_, err := svc.GenerateReply(context.Background(), Input{
		Bot:      bot,
		Dataset:  dataset,
		Messages: []chat.Message{{Role: chat.RoleUser, Content: "Refunds?"}},
	})
	require.NoError(t, err)

	sent := m.Inputs()[0]
	require.Equal(t, 1, countSystem(sent))
	require.True(t, strings.HasPrefix(sent[0].Content, SystemInstruction))
	require.Contains(t, sent[0].Content, "Q: Refunds?\nA: Within 30 days.")
	require.Contains(t, sent[0].Content, "We sell {curly} widgets.")
}

func TestUpstreamFailurePropagates(t *testing.T) {
	upstream := errors.New("model unavailable")
	svc := newTestService(t, &aitest.Model{Err: upstream})

	_, err := svc.GenerateReply(context.Background(), Input{Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	require.Contains(t, err.Error(), upstream.Error())
}

func TestPromptBuilderTruncatesContext(t *testing.T) {
	pb := NewPromptBuilder(10)
	out := pb.BuildSystemPrompt(nil, &chatbot.Dataset{Website: &chatbot.Website{URL: "u", Content: strings.Repeat("x", 100)}})
	ctxBlock := strings.TrimPrefix(out, SystemInstruction+"\n\nContext:\n")
	require.Len(t, []rune(ctxBlock), 10)

	require.Equal(t, SystemInstruction, pb.BuildSystemPrompt(nil, &chatbot.Dataset{}))
}

func drain(t *testing.T, stream *schema.StreamReader[*schema.Message]) string {
	t.Helper()
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String()
		}
		require.NoError(t, err)
		b.WriteString(chunk.Content)
	}
}
