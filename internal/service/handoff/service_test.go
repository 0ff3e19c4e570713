package handoff

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anasify/dashboard/backend/internal/model/chat"
	"github.com/anasify/dashboard/backend/internal/service/ai/aitest"
)

var history = []chat.Message{
	{ID: "welcome", Role: chat.RoleAssistant, Content: chat.DefaultGreeting},
	{ID: "u1", Role: chat.RoleUser, Content: "Do you ship to Mars?"},
}

func TestAssessWithoutModelUsesHeuristics(t *testing.T) {
	svc, err := NewService(context.Background(), nil, Config{Enabled: true}, nil)
	require.NoError(t, err)
	require.False(t, svc.Enabled())

	got := svc.Assess(context.Background(), history, "I'm not sure. Let me connect you with a human agent.")
	require.Equal(t, "handoff", got.Label)
	require.True(t, got.Suggested)
	require.Equal(t, "fallback", got.Reason)
}

func TestAssessUsesClassifierOutput(t *testing.T) {
	m := &aitest.Model{Chunks: []string{"Sure: ", `{"label":"declined","confidence":0.9,"reason":"no shipping info"}`}}
	svc, err := NewService(context.Background(), m, Config{Enabled: true, HistoryLimit: 2}, nil)
	require.NoError(t, err)
	require.True(t, svc.Enabled())

	got := svc.Assess(context.Background(), history, "We do not ship there.")
	require.Equal(t, "declined", got.Label)
	require.False(t, got.Suggested)
	require.InDelta(t, 0.9, got.Confidence, 0.001)
	require.Equal(t, "no shipping info", got.Reason)

	sent := m.Inputs()[0]
	require.Len(t, sent, 2)
	require.Contains(t, sent[1].Content, "user: Do you ship to Mars?")
}

func TestAssessFallsBackOnBadOutput(t *testing.T) {
	for name, m := range map[string]*aitest.Model{
		"invoke error":  {Err: errors.New("boom")},
		"not json":      {Chunks: []string{"handoff, probably"}},
		"unknown label": {Chunks: []string{`{"label":"maybe"}`}},
	} {
		t.Run(name, func(t *testing.T) {
			svc, err := NewService(context.Background(), m, Config{Enabled: true}, nil)
			require.NoError(t, err)

			got := svc.Assess(context.Background(), history, "We ship worldwide.")
			require.Equal(t, "answered", got.Label)
			require.Equal(t, "fallback", got.Reason)
		})
	}
}

func TestFormatHistoryRespectsLimit(t *testing.T) {
	out := formatHistory(history, 1)
	require.Equal(t, "user: Do you ship to Mars?", out)
	require.Equal(t, "(no history)", formatHistory(nil, 3))
}
