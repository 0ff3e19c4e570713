package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anasify/dashboard/backend/internal/handler"
	"github.com/anasify/dashboard/backend/internal/model/chat"
	"github.com/anasify/dashboard/backend/internal/model/chatbot"
	"github.com/anasify/dashboard/backend/internal/service/ai"
	"github.com/anasify/dashboard/backend/internal/service/ai/aitest"
	chatservice "github.com/anasify/dashboard/backend/internal/service/chat"
	"github.com/anasify/dashboard/backend/internal/service/training"
)

func newServer(t *testing.T, m *aitest.Model) *httptest.Server {
	t.Helper()
	gen, err := ai.NewService(context.Background(), m, ai.Options{Streaming: true}, nil)
	require.NoError(t, err)

	store := chatbot.NewMemoryStore(chatbot.Seed(time.Now().UTC()))
	exchanges := chatservice.NewService(gen, store, nil, chatservice.Options{MaxDuration: time.Second}, nil)
	srv := httptest.NewServer(handler.NewRouter(store, exchanges, training.NewService(store, training.NewHTTPFetcher(time.Second, 1024), nil), nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientStreamsFromProxy(t *testing.T) {
	m := &aitest.Model{Chunks: []string{"Hello", ", ", "friend"}}
	srv := newServer(t, m)

	var events []string
	err := New(srv.URL).Stream(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hi"}}, func(ev chat.Event) {
		events = append(events, ev.Event)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"start", "delta", "delta", "delta", "message", "handoff", "end"}, events)
}

func TestClientStatusError(t *testing.T) {
	srv := newServer(t, &aitest.Model{})

	err := New(srv.URL, WithBot("ghost")).Stream(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hi"}}, nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Code)
	require.Equal(t, chatbot.ErrNotFound.Error(), statusErr.Message)
}

func TestClientExchangeError(t *testing.T) {
	srv := newServer(t, &aitest.Model{Chunks: []string{"par"}, StreamErr: errors.New("upstream reset")})

	var deltas int
	err := New(srv.URL).Stream(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hi"}}, func(ev chat.Event) {
		if ev.Event == chat.EventDelta {
			deltas++
		}
	})
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	require.Contains(t, exErr.Message, "upstream reset")
	require.Equal(t, 1, deltas)
}

func TestReadEventsParsesFrames(t *testing.T) {
	stream := "data: {\"event\":\"start\",\"messageId\":\"m\"}\n\n" +
		": comment\n" +
		"data: {\"event\":\"delta\",\n" +
		"data: \"content\":\"a\"}\r\n\r\n" +
		"data: {\"event\":\"end\",\"finished\":true}"

	var got []chat.Event
	require.NoError(t, readEvents(strings.NewReader(stream), func(ev chat.Event) { got = append(got, ev) }))
	require.Len(t, got, 3)
	require.Equal(t, "a", got[1].Content)
	require.True(t, got[2].Finished)

	err := readEvents(strings.NewReader("data: {\"event\":\"start\"}\n\n"), nil)
	require.ErrorIs(t, err, ErrIncompleteStream)
}

func TestEndpoint(t *testing.T) {
	require.Equal(t, "http://x/api/chat", New("http://x/").Endpoint())
	require.Equal(t, "http://x/api/chatbots/bot-1/chat", New("http://x", WithBot("bot-1")).Endpoint())
}

// scripted 按顺序回放事件，可选地在 gate 关闭前阻塞。
type scripted struct {
	events []chat.Event
	err    error
	gate   chan struct{}

	mu   sync.Mutex
	seen [][]chat.Message
}

func (s *scripted) Stream(_ context.Context, messages []chat.Message, onEvent func(chat.Event)) error {
	s.mu.Lock()
	s.seen = append(s.seen, messages)
	s.mu.Unlock()

	if s.gate != nil {
		<-s.gate
	}
	for _, ev := range s.events {
		onEvent(ev)
	}
	return s.err
}

func replyEvents(parts ...string) []chat.Event {
	events := []chat.Event{{Event: chat.EventStart, MessageID: "a1"}}
	full := ""
	for _, p := range parts {
		events = append(events, chat.Event{Event: chat.EventDelta, MessageID: "a1", Content: p})
		full += p
	}
	return append(events,
		chat.Event{Event: chat.EventMessage, MessageID: "a1", Content: full},
		chat.Event{Event: chat.EventHandoff, Handoff: &chat.Handoff{Label: "answered"}},
		chat.Event{Event: chat.EventEnd, Finished: true},
	)
}

func TestConversationAccumulatesDeltas(t *testing.T) {
	conv := NewConversation("")
	streamer := &scripted{events: replyEvents("We ", "open ", "at 9.")}

	require.NoError(t, conv.Submit(context.Background(), streamer, "  When do you open?  "))

	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, chat.GreetingID, msgs[0].ID)
	require.Equal(t, chat.DefaultGreeting, msgs[0].Content)
	require.Equal(t, chat.Message{ID: msgs[1].ID, Role: chat.RoleUser, Content: "When do you open?"}, msgs[1])
	require.Equal(t, chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "We open at 9."}, msgs[2])
	require.Equal(t, StatusIdle, conv.Status())
	require.Equal(t, "answered", conv.Handoff().Label)

	// the streamer sees the whole conversation including the new user turn
	require.Len(t, streamer.seen[0], 2)
}

func TestConversationSingleExchangeInFlight(t *testing.T) {
	conv := NewConversation("Welcome!")
	gate := make(chan struct{})
	streamer := &scripted{events: replyEvents("ok"), gate: gate}

	done := make(chan error, 1)
	go func() { done <- conv.Submit(context.Background(), streamer, "first") }()

	require.Eventually(t, func() bool { return conv.Status() == StatusLoading }, time.Second, time.Millisecond)

	require.ErrorIs(t, conv.Submit(context.Background(), streamer, "second"), ErrExchangeInFlight)
	require.ErrorIs(t, conv.Reset(), ErrExchangeInFlight)

	close(gate)
	require.NoError(t, <-done)

	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "Welcome!", msgs[0].Content)
	require.Equal(t, "first", msgs[1].Content)
}

func TestConversationFailureAndRecovery(t *testing.T) {
	conv := NewConversation("")
	boom := &ExchangeError{Message: "exchange timed out"}

	err := conv.Submit(context.Background(), &scripted{events: replyEvents()[:1], err: boom}, "hello")
	require.ErrorIs(t, err, boom)
	require.Equal(t, StatusFailed, conv.Status())
	require.ErrorIs(t, conv.Err(), boom)
	require.Len(t, conv.Messages(), 2)

	require.NoError(t, conv.Submit(context.Background(), &scripted{events: replyEvents("fine")}, "again"))
	require.Equal(t, StatusIdle, conv.Status())
	require.NoError(t, conv.Err())
	require.Len(t, conv.Messages(), 4)
}

func TestConversationDropsPartialReplyOnFailure(t *testing.T) {
	conv := NewConversation("")
	partial := replyEvents("We open ", "at")[:3]
	err := conv.Submit(context.Background(), &scripted{events: partial, err: ErrIncompleteStream}, "hours?")
	require.ErrorIs(t, err, ErrIncompleteStream)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, chat.RoleUser, msgs[1].Role)

	next := &scripted{events: replyEvents("9 to 5")}
	require.NoError(t, conv.Submit(context.Background(), next, "hours please"))
	sent := next.seen[0]
	require.Len(t, sent, 3)
	for _, m := range sent {
		require.NotEqual(t, "We open at", m.Content)
	}
}

func TestConversationRejectsEmptyInput(t *testing.T) {
	conv := NewConversation("")
	require.ErrorIs(t, conv.Submit(context.Background(), &scripted{}, "   "), ErrEmptyInput)
	require.Len(t, conv.Messages(), 1)
}

func TestConversationMessageWithoutDeltas(t *testing.T) {
	conv := NewConversation("")
	events := []chat.Event{
		{Event: chat.EventStart, MessageID: "a9"},
		{Event: chat.EventMessage, MessageID: "a9", Content: "whole reply"},
		{Event: chat.EventEnd, Finished: true},
	}
	require.NoError(t, conv.Submit(context.Background(), &scripted{events: events}, "hi"))
	require.Equal(t, "whole reply", conv.Messages()[2].Content)

	require.NoError(t, conv.Reset())
	require.Len(t, conv.Messages(), 1)
}
